// Package batch discovers the input documents of a run, dispatches one
// document job per document and maps the aggregate result to an exit code.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/diagnostics"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/ocrjob"
	"pdf-ocr-batch/internal/raster"
	"pdf-ocr-batch/internal/recognize"
)

// Preflight validates the environment before any document is dispatched.
type Preflight interface {
	Run(cfg domain.PipelineConfig) domain.DiagnosticReport
}

// Deps are the collaborators of a Runner. Zero values select production
// implementations.
type Deps struct {
	Preflight Preflight
	Registry  *recognize.Registry
	Runner    command.Runner
	Counter   raster.PageCounter
	Observer  jobs.Observer
	Stdout    io.Writer
	Logger    *zap.Logger
}

// Report is the result of one batch run.
type Report struct {
	RunID        string                  `json:"runId"`
	ExitCode     int                     `json:"exitCode"`
	Diagnostics  domain.DiagnosticReport `json:"diagnostics"`
	Capabilities recognize.Capabilities  `json:"capabilities"`
	Outcomes     []domain.JobOutcome     `json:"outcomes"`
	Duration     time.Duration           `json:"duration"`
}

// Runner executes a batch over one input directory.
type Runner struct {
	cfg      domain.PipelineConfig
	deps     Deps
	logger   *zap.Logger
	stdoutMu sync.Mutex
}

// NewRunner builds a runner for cfg, which must already be normalized.
func NewRunner(cfg domain.PipelineConfig, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Preflight == nil {
		deps.Preflight = diagnostics.NewChecker()
	}
	if deps.Registry == nil {
		deps.Registry = recognize.DefaultRegistry
	}
	if deps.Runner == nil {
		deps.Runner = command.NewExecRunner()
	}
	if deps.Observer == nil {
		deps.Observer = jobs.Discard
	}
	if deps.Stdout == nil {
		deps.Stdout = io.Discard
	}
	return &Runner{cfg: cfg, deps: deps, logger: deps.Logger}
}

// Run validates the environment, processes every discovered document and
// returns the report. An empty input directory succeeds before pre-flight
// runs. Setup failures abort before any dispatch. Individual
// document failures never stop the batch; only ctx cancellation prevents
// further documents from starting.
func (r *Runner) Run(ctx context.Context) Report {
	started := time.Now()
	report := Report{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	// An existing but empty input directory is a successful run even when
	// the tools or engine resources are not installed.
	entries, discoverErr := discover(r.cfg.InputDir)
	if discoverErr == nil && len(entries) == 0 {
		logger.Info("no documents found", zap.String("input_dir", r.cfg.InputDir))
		r.printf("no PDF documents found in %s\n", r.cfg.InputDir)
		report.ExitCode = domain.ExitOK
		return r.done(logger, report, started)
	}

	report.Diagnostics = r.deps.Preflight.Run(r.cfg)
	if report.Diagnostics.HasFailures {
		for _, item := range report.Diagnostics.Failures() {
			logger.Error("pre-flight check failed",
				zap.String("check", item.ID),
				zap.String("message", item.Message),
				zap.String("hint", item.Hint))
			r.printf("setup: %s: %s\n", item.Name, item.Message)
		}
		report.ExitCode = diagnostics.ExitCode(report.Diagnostics)
		return r.done(logger, report, started)
	}

	if discoverErr != nil {
		logger.Error("input discovery failed", zap.String("input_dir", r.cfg.InputDir), zap.Error(discoverErr))
		r.printf("setup: cannot read input directory %s: %v\n", r.cfg.InputDir, discoverErr)
		report.ExitCode = domain.ExitSetupFailed
		if errors.Is(discoverErr, os.ErrNotExist) {
			report.ExitCode = domain.ExitInputMissing
		}
		return r.done(logger, report, started)
	}

	if err := raster.SetResolution(r.cfg.DPI); err != nil {
		logger.Error("rasterizer resolution rejected", zap.Int("dpi", r.cfg.DPI), zap.Error(err))
		r.printf("setup: %v\n", err)
		report.ExitCode = domain.ExitSetupFailed
		return r.done(logger, report, started)
	}
	unlock := raster.LockResolution()
	defer unlock()

	report.Capabilities = recognize.Probe(r.deps.Registry)
	logger.Info("batch started",
		zap.Int("documents", len(entries)),
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Int("dpi", r.cfg.DPI),
		zap.Bool("preprocess", r.cfg.Preprocess),
		zap.Bool("layout_available", report.Capabilities.Layout))

	tracker := jobs.NewTracker()
	report.Outcomes = r.dispatch(ctx, entries, r.executor(report.Capabilities, tracker))
	if n := tracker.Active(); n > 0 {
		logger.Warn("jobs finished without a terminal state", zap.Int("jobs", n))
	}
	r.stdoutMu.Lock()
	fmt.Fprintln(r.deps.Stdout)
	WriteSummary(r.deps.Stdout, report.Outcomes)
	r.stdoutMu.Unlock()

	report.ExitCode = domain.ExitOK
	if c := Count(report.Outcomes); c.Failed+c.Cancelled > 0 {
		report.ExitCode = domain.ExitDocumentsFailed
	}
	return r.done(logger, report, started)
}

func (r *Runner) executor(caps recognize.Capabilities, tracker *jobs.Tracker) *ocrjob.Executor {
	rasterizer := raster.NewRasterizer(r.cfg.PdftoppmPath, r.deps.Runner, r.deps.Counter, r.logger)
	return ocrjob.New(ocrjob.ConfigFrom(r.cfg, caps), ocrjob.Deps{
		Rasterizer: rasterizer,
		Runner:     r.deps.Runner,
		Registry:   r.deps.Registry,
		Tracker:    tracker,
		Observer:   r.deps.Observer,
		Logger:     r.logger,
	})
}

// dispatch runs the jobs sequentially when the concurrency degree is 1 and
// over a bounded pool otherwise. Outcomes keep the input order.
func (r *Runner) dispatch(ctx context.Context, entries []entry, exec *ocrjob.Executor) []domain.JobOutcome {
	outcomes := make([]domain.JobOutcome, len(entries))
	runOne := func(i int) {
		outcomes[i] = r.runEntry(ctx, entries[i], exec)
		r.stdoutMu.Lock()
		WriteOutcome(r.deps.Stdout, outcomes[i])
		r.stdoutMu.Unlock()
	}

	if r.cfg.Concurrency <= 1 {
		for i := range entries {
			runOne(i)
		}
		return outcomes
	}

	// Jobs never return errors to the group, so one failure cannot cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range entries {
		i := i
		g.Go(func() error {
			runOne(i)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) runEntry(ctx context.Context, e entry, exec *ocrjob.Executor) domain.JobOutcome {
	if e.rejected != "" {
		r.logger.Warn("document rejected", zap.String("document", e.doc.Name), zap.String("reason", e.rejected))
		return domain.JobOutcome{
			JobID:     uuid.NewString(),
			Document:  e.doc,
			State:     domain.JobStateFailed,
			ErrorKind: domain.ErrorKindSetup,
			Message:   e.rejected,
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.JobOutcome{
			JobID:     uuid.NewString(),
			Document:  e.doc,
			State:     domain.JobStateCancelled,
			ErrorKind: domain.ErrorKindCancelled,
			Message:   "not started: " + err.Error(),
		}
	}
	return exec.Run(ctx, e.doc)
}

func (r *Runner) done(logger *zap.Logger, report Report, started time.Time) Report {
	report.Duration = time.Since(started)
	c := Count(report.Outcomes)
	logger.Info("batch finished",
		zap.Int("exit_code", report.ExitCode),
		zap.Int("succeeded", c.Succeeded),
		zap.Int("failed", c.Failed),
		zap.Int("cancelled", c.Cancelled),
		zap.Duration("elapsed", report.Duration))
	return report
}

func (r *Runner) printf(format string, args ...any) {
	r.stdoutMu.Lock()
	defer r.stdoutMu.Unlock()
	fmt.Fprintf(r.deps.Stdout, format, args...)
}
