package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pdf-ocr-batch/internal/batch"
	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/config"
	"pdf-ocr-batch/internal/diagnostics"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/recognize"
	"pdf-ocr-batch/internal/tessdata"
)

// tessdataInstaller isolates traineddata downloads behind an interface.
type tessdataInstaller interface {
	Install(ctx context.Context, resourceDir, culture string) ([]tessdata.Model, error)
}

// App wires configuration, diagnostics, the recognition registry and the
// batch runner for one process invocation.
type App struct {
	Config domain.PipelineConfig
	Logger *zap.Logger
	Events *jobs.EventBus

	opts      Options
	checker   batch.Preflight
	registry  *recognize.Registry
	runner    command.Runner
	installer tessdataInstaller
	stdout    io.Writer
}

// New resolves the configuration and builds the production collaborators.
func New(opts Options) (*App, error) {
	logger, err := newLogger(opts.LogFormat, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: opts.ConfigPath,
		EnvFile:    opts.EnvFile,
		Overrides:  opts.Overrides,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Events:    jobs.NewEventBus(0),
		opts:      opts,
		checker:   diagnostics.NewChecker(),
		registry:  recognize.DefaultRegistry,
		runner:    command.NewExecRunner(),
		installer: tessdata.NewInstaller(tessdata.Variant(opts.TessdataVariant), logger),
		stdout:    stdout,
	}, nil
}

// Run executes the selected mode and returns the process exit code.
func (a *App) Run(ctx context.Context) int {
	defer func() { _ = a.Logger.Sync() }()

	a.Logger.Debug("configuration resolved",
		zap.String("input_dir", a.Config.InputDir),
		zap.String("output_dir", a.Config.OutputDir),
		zap.String("scratch_dir", a.Config.ScratchDir),
		zap.String("resource_dir", a.Config.ResourceDir),
		zap.String("language", a.Config.Language),
		zap.Int("dpi", a.Config.DPI),
		zap.Int("concurrency", a.Config.Concurrency),
		zap.Bool("emit_layout", a.Config.EmitLayout),
		zap.Bool("preprocess", a.Config.Preprocess))

	switch {
	case a.opts.WriteConfig != "":
		return a.writeConfig()
	case a.opts.InstallTessdata:
		return a.installTessdata(ctx)
	case a.opts.Diagnose:
		return a.diagnose()
	default:
		return a.runBatch(ctx)
	}
}

func (a *App) runBatch(ctx context.Context) int {
	report := batch.NewRunner(a.Config, batch.Deps{
		Preflight: a.checker,
		Registry:  a.registry,
		Runner:    a.runner,
		Observer:  a.Events,
		Stdout:    a.stdout,
		Logger:    a.Logger,
	}).Run(ctx)

	if a.opts.EventsPath != "" {
		if err := a.dumpEvents(a.opts.EventsPath); err != nil {
			a.Logger.Warn("event dump failed", zap.String("path", a.opts.EventsPath), zap.Error(err))
		}
	}
	return report.ExitCode
}

func (a *App) diagnose() int {
	report := a.checker.Run(a.Config)
	for _, item := range report.Items {
		fmt.Fprintf(a.stdout, "%-4s %-26s %s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status == domain.DiagnosticStatusFail {
			fmt.Fprintf(a.stdout, "     hint: %s\n", item.Hint)
		}
	}
	caps := recognize.Probe(a.registry)
	fmt.Fprintf(a.stdout, "capabilities: searchable-pdf=%t plain-text=%t layout-json=%t\n",
		caps.SearchablePDF, caps.PlainText, caps.Layout)
	return diagnostics.ExitCode(report)
}

func (a *App) installTessdata(ctx context.Context) int {
	models, err := a.installer.Install(ctx, a.Config.ResourceDir, a.Config.Language)
	for _, m := range models {
		state := "missing"
		if m.Downloaded {
			state = "installed"
		}
		fmt.Fprintf(a.stdout, "%-9s %s\n", state, m.FileName)
	}
	if err != nil {
		a.Logger.Error("traineddata install failed", zap.Error(err))
		return domain.ExitSetupFailed
	}
	return domain.ExitOK
}

func (a *App) writeConfig() int {
	if err := config.NewYAMLStore(a.opts.WriteConfig).Save(a.Config); err != nil {
		a.Logger.Error("config not written", zap.String("path", a.opts.WriteConfig), zap.Error(err))
		return domain.ExitSetupFailed
	}
	fmt.Fprintf(a.stdout, "configuration written to %s\n", a.opts.WriteConfig)
	return domain.ExitOK
}

// dumpEvents writes the event history as JSON lines; "-" selects stdout.
func (a *App) dumpEvents(path string) (err error) {
	w := a.stdout
	if path != "-" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	for _, ev := range a.Events.Since(0) {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// newLogger builds the JSON production logger or, for "console", the
// development logger.
func newLogger(format, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	if strings.TrimSpace(level) != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
