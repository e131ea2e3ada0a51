package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"pdf-ocr-batch/internal/domain"
)

// Environment variable names.
const (
	EnvInputDir       = "OCRBATCH_INPUT_DIR"
	EnvOutputDir      = "OCRBATCH_OUTPUT_DIR"
	EnvScratchDir     = "OCRBATCH_SCRATCH_DIR"
	EnvResourceDir    = "OCRBATCH_RESOURCE_DIR"
	EnvTessdataPrefix = "TESSDATA_PREFIX"
	EnvLanguage       = "OCRBATCH_LANGUAGE"
	EnvDPI            = "OCRBATCH_DPI"
	EnvEmitLayout     = "OCRBATCH_EMIT_LAYOUT"
	EnvConcurrency    = "OCRBATCH_CONCURRENCY"
	EnvPreprocess     = "OCRBATCH_PREPROCESS"
	EnvTesseract      = "OCRBATCH_TESSERACT"
	EnvPdftoppm       = "OCRBATCH_PDFTOPPM"
)

// Overrides are explicit values, normally from command-line flags. Nil
// fields leave the lower layers untouched.
type Overrides struct {
	InputDir      *string
	OutputDir     *string
	ScratchDir    *string
	ResourceDir   *string
	Language      *string
	DPI           *int
	EmitLayout    *bool
	Concurrency   *int
	Preprocess    *bool
	TesseractPath *string
	PdftoppmPath  *string
}

// LoadOptions selects the layers consulted by Load.
type LoadOptions struct {
	// ConfigPath is an optional YAML file. A missing file is not an error.
	ConfigPath string
	// EnvFile is an optional dotenv file. Process environment wins over it.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Overrides Overrides
}

// Load resolves the pipeline configuration once: defaults, then the YAML
// file, then the environment, then explicit overrides. The result is
// normalized.
func Load(opts LoadOptions) (domain.PipelineConfig, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(opts.ConfigPath) != "" {
		if err := NewYAMLStore(opts.ConfigPath).loadInto(&cfg); err != nil {
			return domain.PipelineConfig{}, err
		}
	}

	lookup, err := envLookup(opts)
	if err != nil {
		return domain.PipelineConfig{}, err
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return domain.PipelineConfig{}, err
	}
	applyOverrides(&cfg, opts.Overrides)

	return Normalize(cfg), nil
}

func envLookup(opts LoadOptions) (func(string) (string, bool), error) {
	base := opts.LookupEnv
	if base == nil {
		base = os.LookupEnv
	}
	if strings.TrimSpace(opts.EnvFile) == "" {
		return base, nil
	}

	fileEnv, err := godotenv.Read(opts.EnvFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("read %s: %w", opts.EnvFile, err)
	}
	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

func applyEnv(cfg *domain.PipelineConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	str(EnvInputDir, &cfg.InputDir)
	str(EnvOutputDir, &cfg.OutputDir)
	str(EnvScratchDir, &cfg.ScratchDir)
	str(EnvTessdataPrefix, &cfg.ResourceDir)
	str(EnvResourceDir, &cfg.ResourceDir)
	str(EnvLanguage, &cfg.Language)
	str(EnvTesseract, &cfg.TesseractPath)
	str(EnvPdftoppm, &cfg.PdftoppmPath)

	var errs []error
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer(EnvDPI, &cfg.DPI)
	integer(EnvConcurrency, &cfg.Concurrency)
	boolean(EnvEmitLayout, &cfg.EmitLayout)
	boolean(EnvPreprocess, &cfg.Preprocess)

	return multierr.Combine(errs...)
}

func applyOverrides(cfg *domain.PipelineConfig, o Overrides) {
	setString(&cfg.InputDir, o.InputDir)
	setString(&cfg.OutputDir, o.OutputDir)
	setString(&cfg.ScratchDir, o.ScratchDir)
	setString(&cfg.ResourceDir, o.ResourceDir)
	setString(&cfg.Language, o.Language)
	setString(&cfg.TesseractPath, o.TesseractPath)
	setString(&cfg.PdftoppmPath, o.PdftoppmPath)
	if o.DPI != nil {
		cfg.DPI = *o.DPI
	}
	if o.Concurrency != nil {
		cfg.Concurrency = *o.Concurrency
	}
	if o.EmitLayout != nil {
		cfg.EmitLayout = *o.EmitLayout
	}
	if o.Preprocess != nil {
		cfg.Preprocess = *o.Preprocess
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Normalize clamps DPI into the supported range, forces a positive
// concurrency degree, trims paths and fills an empty language.
func Normalize(cfg domain.PipelineConfig) domain.PipelineConfig {
	cfg.InputDir = strings.TrimSpace(cfg.InputDir)
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	cfg.ScratchDir = strings.TrimSpace(cfg.ScratchDir)
	cfg.ResourceDir = strings.TrimSpace(cfg.ResourceDir)
	cfg.TesseractPath = strings.TrimSpace(cfg.TesseractPath)
	cfg.PdftoppmPath = strings.TrimSpace(cfg.PdftoppmPath)
	cfg.Language = strings.TrimSpace(cfg.Language)

	if cfg.Language == "" {
		cfg.Language = domain.DefaultLanguage
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	switch {
	case cfg.DPI == 0:
		cfg.DPI = domain.DefaultDPI
	case cfg.DPI < domain.MinDPI:
		cfg.DPI = domain.MinDPI
	case cfg.DPI > domain.MaxDPI:
		cfg.DPI = domain.MaxDPI
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}
