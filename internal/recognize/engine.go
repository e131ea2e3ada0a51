// Package recognize adapts the OCR engine: per-job initialization against a
// resource directory, repeated recognition over one opened page source, and
// a registry of the output translators linked into the binary.
package recognize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/pages"
)

const (
	stageEngineInit  = "engine-init"
	stageRecognizing = "recognizing"
)

// Options configures one engine lifetime.
type Options struct {
	ResourceDir   string
	Language      string
	DPI           int
	TesseractPath string
	WorkDir       string
	Kinds         []domain.ArtifactKind
	Runner        command.Runner
	Registry      *Registry
	Logger        *zap.Logger
}

// Engine holds the translators of one job. It is not safe for concurrent
// use; callers recognize one artifact at a time.
type Engine struct {
	language    string
	kinds       []domain.ArtifactKind
	translators map[domain.ArtifactKind]Translator
	logger      *zap.Logger
	closed      bool
}

// Initialize validates the resource directory and language data and builds
// the translators for opts.Kinds. Unavailable optional kinds are skipped.
func Initialize(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry
	}

	dir := strings.TrimSpace(opts.ResourceDir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", dir)
		}
		return nil, domain.NewError(domain.ErrorKindEngineInit, stageEngineInit, "resource directory unavailable", err)
	}

	code, err := TesseractLanguage(opts.Language)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindEngineInit, stageEngineInit, "unsupported language", err)
	}
	for _, c := range LanguageCodes(code) {
		data := filepath.Join(dir, c+".traineddata")
		if info, err := os.Stat(data); err != nil || info.Size() == 0 {
			if err == nil {
				err = errors.New("empty file")
			}
			return nil, domain.NewError(domain.ErrorKindEngineInit, stageEngineInit,
				fmt.Sprintf("language data %s.traineddata missing", c), err)
		}
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []domain.ArtifactKind{domain.ArtifactSearchablePDF, domain.ArtifactPlainText, domain.ArtifactLayoutJSON}
	}
	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner()
	}
	cfg := TranslatorConfig{
		ResourceDir:   dir,
		Language:      code,
		DPI:           opts.DPI,
		TesseractPath: opts.TesseractPath,
		WorkDir:       opts.WorkDir,
		Runner:        runner,
		Logger:        logger,
	}

	e := &Engine{
		language:    code,
		translators: make(map[domain.ArtifactKind]Translator, len(kinds)),
		logger:      logger,
	}
	for _, kind := range kinds {
		name, factory, ok := registry.Lookup(kind)
		if !ok {
			if kind.Required() {
				_ = e.Close()
				return nil, domain.NewError(domain.ErrorKindEngineInit, stageEngineInit,
					fmt.Sprintf("no translator registered for %s", kind), nil)
			}
			logger.Debug("optional translator not available", zap.String("artifact", string(kind)))
			continue
		}
		tr, err := factory(cfg)
		if err != nil {
			if kind.Required() {
				closeErr := e.Close()
				return nil, domain.NewError(domain.ErrorKindEngineInit, stageEngineInit,
					fmt.Sprintf("initialize %s translator", name), multierr.Append(err, closeErr))
			}
			logger.Warn("optional translator failed to initialize",
				zap.String("artifact", string(kind)),
				zap.String("translator", name),
				zap.Error(err),
			)
			continue
		}
		e.translators[kind] = tr
		e.kinds = append(e.kinds, kind)
	}
	return e, nil
}

// Language returns the resolved tesseract language code list.
func (e *Engine) Language() string {
	return e.language
}

// Supports reports whether kind can be recognized by this engine.
func (e *Engine) Supports(kind domain.ArtifactKind) bool {
	_, ok := e.translators[kind]
	return ok
}

// Recognize renders src as kind into outputPath. The artifact is written to
// a temporary file next to outputPath and renamed into place, so a failed
// call never leaves a partial artifact.
func (e *Engine) Recognize(ctx context.Context, src pages.Source, kind domain.ArtifactKind, outputPath string) error {
	if e.closed {
		return domain.NewError(domain.ErrorKindRecognition, stageRecognizing, "engine is closed", nil)
	}
	tr, ok := e.translators[kind]
	if !ok {
		return domain.NewError(domain.ErrorKindRecognition, stageRecognizing,
			fmt.Sprintf("no translator for %s", kind), nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	started := time.Now()
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return domain.NewError(domain.ErrorKindIO, stageRecognizing, "create artifact file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := tr.Translate(ctx, src, bw); err != nil {
		return classifyTranslateError(kind, err)
	}
	if err := bw.Flush(); err != nil {
		return domain.NewError(domain.ErrorKindIO, stageRecognizing, "write artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.NewError(domain.ErrorKindIO, stageRecognizing, "close artifact", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return domain.NewError(domain.ErrorKindIO, stageRecognizing, "move artifact into place", err)
	}
	committed = true

	e.logger.Info("artifact written",
		zap.String("artifact", string(kind)),
		zap.String("path", outputPath),
		zap.String("mime", kind.MIMEType()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Close releases translators in reverse initialization order.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var err error
	for i := len(e.kinds) - 1; i >= 0; i-- {
		if c, ok := e.translators[e.kinds[i]].(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

func classifyTranslateError(kind domain.ArtifactKind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pErr *domain.PipelineError
	if errors.As(err, &pErr) {
		return err
	}
	return domain.NewError(domain.ErrorKindRecognition, stageRecognizing,
		fmt.Sprintf("%s recognition failed", kind), err)
}
