package tessdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const downloadTimeout = 30 * time.Minute

// Installer downloads missing traineddata files into a resource directory.
type Installer struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewInstaller builds an installer for variant.
func NewInstaller(variant Variant, logger *zap.Logger) *Installer {
	return NewInstallerWithClient(http.DefaultClient, BaseURL(variant), logger)
}

// NewInstallerWithClient builds an installer against an explicit base URL.
func NewInstallerWithClient(client *http.Client, baseURL string, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{client: client, baseURL: baseURL, logger: logger}
}

// Install downloads every model culture needs that is not yet present in
// resourceDir. It returns the resolved model list.
func (i *Installer) Install(ctx context.Context, resourceDir, culture string) ([]Model, error) {
	models, err := ModelsFor(culture, resourceDir, i.baseURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resourceDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare resource directory: %w", err)
	}

	for idx := range models {
		m := &models[idx]
		if m.Downloaded {
			i.logger.Debug("traineddata present", zap.String("code", m.Code), zap.String("path", m.LocalPath))
			continue
		}
		target := filepath.Join(resourceDir, m.FileName)
		i.logger.Info("downloading traineddata", zap.String("code", m.Code), zap.String("url", m.URL))
		if err := i.download(ctx, target, m.URL); err != nil {
			return models, fmt.Errorf("download %s: %w", m.FileName, err)
		}
		m.Downloaded = true
		m.LocalPath = target
	}
	return models, nil
}

// download streams sourceURL into a temporary sibling and renames it into
// place only after a complete transfer.
func (i *Installer) download(ctx context.Context, destinationPath, sourceURL string) error {
	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ocrbatch")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}
