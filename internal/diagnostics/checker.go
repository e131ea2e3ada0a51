package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/recognize"
)

// Checker validates external tools and required filesystem paths before a
// batch is dispatched.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all pre-flight checks and returns a combined report.
func (c *Checker) Run(cfg domain.PipelineConfig) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("pdftoppm", cfg.PdftoppmPath),
		c.checkTool("tesseract", cfg.TesseractPath),
		c.checkInputDir(cfg.InputDir),
		c.checkResourceDir(cfg.ResourceDir),
		c.checkTraineddata(cfg.ResourceDir, cfg.Language),
		c.checkWritableDir(domain.CheckOutputDir, "Output directory", cfg.OutputDir),
		c.checkWritableDir(domain.CheckScratchDir, "Scratch directory", cfg.ScratchDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH or at the
// configured location.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	target := strings.TrimSpace(configured)
	if target == "" {
		target = name
	}
	item := domain.DiagnosticItem{ID: "tool_" + name, Name: name}

	path, err := c.lookPath(target)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", target)
		item.Hint = toolHint(name)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

func toolHint(name string) string {
	switch name {
	case "pdftoppm":
		return "Install poppler-utils and ensure pdftoppm is on PATH, or set OCRBATCH_PDFTOPPM."
	default:
		return "Install tesseract-ocr and ensure it is on PATH, or set OCRBATCH_TESSERACT."
	}
}

// checkInputDir validates that the discovery directory exists.
func (c *Checker) checkInputDir(inputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckInputDir, Name: "Input directory"}
	if err := c.requireDir(inputDir); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Point -input at a directory containing PDF documents."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Input directory found: %s", inputDir)
	return item
}

// checkResourceDir validates that the engine resource directory exists.
func (c *Checker) checkResourceDir(resourceDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckResourceDir, Name: "Engine resource directory"}
	if err := c.requireDir(resourceDir); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Set -tessdata or TESSDATA_PREFIX to the tessdata directory."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Resource directory found: %s", resourceDir)
	return item
}

// checkTraineddata validates one traineddata file per configured language.
func (c *Checker) checkTraineddata(resourceDir, culture string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.CheckTraineddata, Name: "Language data"}

	lang, err := recognize.TesseractLanguage(culture)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Use a BCP 47 culture tag such as en-US or de-DE."
		return item
	}

	var missing []string
	for _, code := range recognize.LanguageCodes(lang) {
		if _, err := c.stat(filepath.Join(resourceDir, code+".traineddata")); err != nil {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Missing traineddata for %s in %s", strings.Join(missing, ", "), resourceDir)
		item.Hint = "Run with -install-tessdata or copy the files into the resource directory."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Language data available: %s", lang)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Configure a writable location."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func (c *Checker) requireDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("directory is not configured")
	}
	info, err := c.stat(dir)
	if err != nil {
		if IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return fmt.Errorf("cannot access directory: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// ExitCode maps a failed report to the process exit code. A passing report
// maps to 0.
func ExitCode(report domain.DiagnosticReport) int {
	switch {
	case !report.HasFailures:
		return domain.ExitOK
	case report.Failed(domain.CheckInputDir):
		return domain.ExitInputMissing
	case report.Failed(domain.CheckResourceDir):
		return domain.ExitResourceMissing
	default:
		return domain.ExitSetupFailed
	}
}
