package config

import (
	"os"
	"path/filepath"

	"pdf-ocr-batch/internal/domain"
)

// DefaultConfig returns the baseline configuration before any file,
// environment or flag layer is applied.
func DefaultConfig() domain.PipelineConfig {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.PipelineConfig{
		InputDir:    "input",
		OutputDir:   "output",
		ScratchDir:  os.TempDir(),
		ResourceDir: filepath.Join(homeDir, ".ocrbatch", "tessdata"),
		Language:    domain.DefaultLanguage,
		DPI:         domain.DefaultDPI,
		EmitLayout:  true,
		Concurrency: 1,
		Preprocess:  true,
	}
}
