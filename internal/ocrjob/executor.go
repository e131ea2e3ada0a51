// Package ocrjob runs one document end to end: scratch workspace, optional
// preprocessing, the three recognition stages, and outcome reporting.
package ocrjob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/pages"
	"pdf-ocr-batch/internal/preprocess"
	"pdf-ocr-batch/internal/raster"
	"pdf-ocr-batch/internal/recognize"
)

const (
	stageWorkspace   = "workspace"
	intermediateName = "preprocessed.tif"
)

// Config is the per-run job configuration. LayoutSupported is the cached
// result of the startup capability probe.
type Config struct {
	OutputDir       string
	ScratchDir      string
	ResourceDir     string
	Language        string
	EmitLayout      bool
	LayoutSupported bool
	Preprocess      bool
	TesseractPath   string
}

// ConfigFrom derives the job configuration from the resolved pipeline config.
func ConfigFrom(cfg domain.PipelineConfig, caps recognize.Capabilities) Config {
	return Config{
		OutputDir:       cfg.OutputDir,
		ScratchDir:      cfg.ScratchDir,
		ResourceDir:     cfg.ResourceDir,
		Language:        cfg.Language,
		EmitLayout:      cfg.EmitLayout,
		LayoutSupported: caps.Layout,
		Preprocess:      cfg.Preprocess,
		TesseractPath:   cfg.TesseractPath,
	}
}

// Deps are the collaborators shared by every job of a run.
type Deps struct {
	Rasterizer   *raster.Rasterizer
	Preprocessor *preprocess.Pipeline
	Runner       command.Runner
	Registry     *recognize.Registry
	Tracker      *jobs.Tracker
	Observer     jobs.Observer
	Logger       *zap.Logger
}

// Executor runs document jobs. One Executor serves every worker of a run;
// all per-job state lives on the stack of Run.
type Executor struct {
	cfg          Config
	rasterizer   *raster.Rasterizer
	preprocessor *preprocess.Pipeline
	runner       command.Runner
	registry     *recognize.Registry
	tracker      *jobs.Tracker
	observer     jobs.Observer
	logger       *zap.Logger

	newID     func() string
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
}

// New constructs the production executor.
func New(cfg Config, deps Deps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = jobs.Discard
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = jobs.NewTracker()
	}
	runner := deps.Runner
	if runner == nil {
		runner = command.NewExecRunner()
	}
	registry := deps.Registry
	if registry == nil {
		registry = recognize.DefaultRegistry
	}
	rasterizer := deps.Rasterizer
	if rasterizer == nil {
		rasterizer = raster.NewRasterizer("", runner, nil, logger)
	}
	pre := deps.Preprocessor
	if pre == nil {
		pre = preprocess.New(rasterizer, nil, nil, observer, logger)
	}
	return &Executor{
		cfg:          cfg,
		rasterizer:   rasterizer,
		preprocessor: pre,
		runner:       runner,
		registry:     registry,
		tracker:      tracker,
		observer:     observer,
		logger:       logger,
		newID:        uuid.NewString,
		mkdirTemp:    os.MkdirTemp,
		removeAll:    os.RemoveAll,
	}
}

// Run processes doc and converts every failure into the returned outcome.
// It never panics on pipeline errors and never returns an error.
func (e *Executor) Run(ctx context.Context, doc domain.Document) domain.JobOutcome {
	started := time.Now()
	jobID := e.newID()
	logger := e.logger.With(zap.String("job_id", jobID), zap.String("document", doc.Name))
	outcome := domain.JobOutcome{JobID: jobID, Document: doc, State: domain.JobStateCreated}

	if err := e.tracker.Start(jobID, doc.Name); err != nil {
		logger.Warn("job not tracked", zap.Error(err))
	}
	e.publishState(jobID, doc, domain.JobStateCreated)

	if err := ctx.Err(); err != nil {
		return e.finish(logger, &outcome, started, err)
	}

	err := e.withWorkspace(ctx, jobID, doc, logger, func(ws workspace) error {
		return e.runStages(ctx, jobID, doc, ws, logger, &outcome)
	})
	return e.finish(logger, &outcome, started, err)
}

// workspace is the job-scoped scratch directory.
type workspace struct {
	dir          string
	intermediate string
}

// withWorkspace creates a fresh scratch directory, runs fn and removes the
// directory on every exit path. Removal failures are logged only.
func (e *Executor) withWorkspace(ctx context.Context, jobID string, doc domain.Document, logger *zap.Logger, fn func(workspace) error) (err error) {
	dir, mkErr := e.mkdirTemp(e.cfg.ScratchDir, doc.Name+"_*")
	if mkErr != nil {
		e.transition(logger, jobID, doc, domain.JobStateCleanup)
		return domain.NewError(domain.ErrorKindIO, stageWorkspace,
			fmt.Sprintf("cannot create scratch directory in %s", e.cfg.ScratchDir), mkErr)
	}
	ws := workspace{dir: dir, intermediate: filepath.Join(dir, intermediateName)}
	logger.Debug("scratch workspace created", zap.String("path", dir))

	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.ErrorKindIO, stageWorkspace, fmt.Sprintf("job panicked: %v", r), nil)
		}
		e.transition(logger, jobID, doc, domain.JobStateCleanup)
		if rmErr := e.removeAll(dir); rmErr != nil {
			logger.Warn("scratch workspace not removed", zap.String("path", dir), zap.Error(rmErr))
		}
	}()
	return fn(ws)
}

// runStages initializes the engine, selects the page source and runs the
// recognition stages in order. Handles are released in reverse order.
func (e *Executor) runStages(ctx context.Context, jobID string, doc domain.Document, ws workspace, logger *zap.Logger, outcome *domain.JobOutcome) error {
	engine, err := recognize.Initialize(recognize.Options{
		ResourceDir:   e.cfg.ResourceDir,
		Language:      e.cfg.Language,
		DPI:           raster.Resolution(),
		TesseractPath: e.cfg.TesseractPath,
		WorkDir:       ws.dir,
		Kinds:         e.engineKinds(),
		Runner:        e.runner,
		Registry:      e.registry,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			logger.Warn("engine release failed", zap.Error(closeErr))
		}
	}()

	src, err := e.openSource(ctx, jobID, doc, ws, logger, outcome)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.Warn("page source release failed", zap.Error(closeErr))
		}
	}()

	for _, stage := range recognitionStages {
		if stage.kind == domain.ArtifactLayoutJSON {
			if reason, skip := e.skipLayout(engine); skip {
				e.recordSkipped(jobID, doc, outcome, stage.kind, reason)
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.transition(logger, jobID, doc, stage.state)

		path := domain.ArtifactPath(e.cfg.OutputDir, doc, stage.kind)
		if err := engine.Recognize(ctx, src, stage.kind, path); err != nil {
			outcome.Artifacts = append(outcome.Artifacts, domain.ArtifactResult{
				Kind:    stage.kind,
				Path:    path,
				Status:  domain.ArtifactFailed,
				Message: err.Error(),
			})
			if stage.kind.Required() || domain.KindOf(err) == domain.ErrorKindCancelled {
				return err
			}
			logger.Warn("optional artifact failed", zap.String("artifact", string(stage.kind)), zap.Error(err))
			e.observer.Publish(jobs.Event{
				JobID:     jobID,
				Document:  doc.Name,
				Type:      jobs.EventTypeError,
				Artifact:  stage.kind,
				ErrorKind: domain.KindOf(err),
				Message:   err.Error(),
			})
			continue
		}

		outcome.Artifacts = append(outcome.Artifacts, domain.ArtifactResult{
			Kind:   stage.kind,
			Path:   path,
			Status: domain.ArtifactWritten,
		})
		e.observer.Publish(jobs.Event{
			JobID:    jobID,
			Document: doc.Name,
			Type:     jobs.EventTypeArtifactWritten,
			Artifact: stage.kind,
			Path:     path,
		})
	}
	return nil
}

var recognitionStages = []struct {
	state domain.JobState
	kind  domain.ArtifactKind
}{
	{domain.JobStateRecognizingPDF, domain.ArtifactSearchablePDF},
	{domain.JobStateRecognizingText, domain.ArtifactPlainText},
	{domain.JobStateRecognizingLayout, domain.ArtifactLayoutJSON},
}

// openSource builds the page source for the configured pipeline variant.
func (e *Executor) openSource(ctx context.Context, jobID string, doc domain.Document, ws workspace, logger *zap.Logger, outcome *domain.JobOutcome) (pages.Source, error) {
	if !e.cfg.Preprocess {
		d, err := e.rasterizer.Open(ctx, doc.Path)
		if err != nil {
			return nil, err
		}
		outcome.PageCount = d.PageCount()
		return pages.NewDirect(d), nil
	}

	e.transition(logger, jobID, doc, domain.JobStatePreprocessing)
	res, err := e.preprocessor.BuildCleanedImageSequence(ctx, preprocess.Request{
		JobID:      jobID,
		Document:   doc,
		OutputPath: ws.intermediate,
	})
	if err != nil {
		return nil, err
	}
	outcome.PageCount = res.Pages
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := pages.OpenTIFF(res.Path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (e *Executor) engineKinds() []domain.ArtifactKind {
	kinds := []domain.ArtifactKind{domain.ArtifactSearchablePDF, domain.ArtifactPlainText}
	if e.cfg.EmitLayout && e.cfg.LayoutSupported {
		kinds = append(kinds, domain.ArtifactLayoutJSON)
	}
	return kinds
}

func (e *Executor) skipLayout(engine *recognize.Engine) (string, bool) {
	switch {
	case !e.cfg.EmitLayout:
		return "layout output disabled", true
	case !e.cfg.LayoutSupported || !engine.Supports(domain.ArtifactLayoutJSON):
		return "layout capability unavailable", true
	default:
		return "", false
	}
}

func (e *Executor) recordSkipped(jobID string, doc domain.Document, outcome *domain.JobOutcome, kind domain.ArtifactKind, reason string) {
	outcome.Artifacts = append(outcome.Artifacts, domain.ArtifactResult{
		Kind:    kind,
		Path:    domain.ArtifactPath(e.cfg.OutputDir, doc, kind),
		Status:  domain.ArtifactSkipped,
		Message: reason,
	})
	e.observer.Publish(jobs.Event{
		JobID:    jobID,
		Document: doc.Name,
		Type:     jobs.EventTypeArtifactSkipped,
		Artifact: kind,
		Message:  reason,
	})
}

// finish maps err to the terminal state and completes the outcome.
func (e *Executor) finish(logger *zap.Logger, outcome *domain.JobOutcome, started time.Time, err error) domain.JobOutcome {
	state := domain.JobStateSucceeded
	if err != nil {
		outcome.ErrorKind = domain.KindOf(err)
		outcome.Message = err.Error()
		state = domain.JobStateFailed
		if outcome.ErrorKind == domain.ErrorKindCancelled {
			state = domain.JobStateCancelled
		}
	}
	e.transition(logger, outcome.JobID, outcome.Document, state)
	outcome.State = state
	outcome.Duration = time.Since(started)
	if rec, ok := e.tracker.Current(outcome.JobID); ok {
		outcome.History = rec.History
	}

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.Strings("states", statePath(outcome.History)),
		zap.Int("pages", outcome.PageCount),
		zap.Duration("elapsed", outcome.Duration),
	}
	switch state {
	case domain.JobStateSucceeded:
		logger.Info("document processed", fields...)
	case domain.JobStateCancelled:
		logger.Warn("document cancelled", fields...)
	default:
		logger.Error("document failed", append(fields, zap.String("error_kind", string(outcome.ErrorKind)), zap.Error(err))...)
		e.observer.Publish(jobs.Event{
			JobID:     outcome.JobID,
			Document:  outcome.Document.Name,
			Type:      jobs.EventTypeError,
			ErrorKind: outcome.ErrorKind,
			Message:   outcome.Message,
		})
	}
	return *outcome
}

func statePath(history []domain.Transition) []string {
	if len(history) == 0 {
		return nil
	}
	path := []string{string(history[0].From)}
	for _, tr := range history {
		path = append(path, string(tr.To))
	}
	return path
}

func (e *Executor) transition(logger *zap.Logger, jobID string, doc domain.Document, state domain.JobState) {
	if err := e.tracker.Transition(jobID, state); err != nil {
		logger.Warn("state transition rejected", zap.String("state", string(state)), zap.Error(err))
	}
	e.publishState(jobID, doc, state)
}

func (e *Executor) publishState(jobID string, doc domain.Document, state domain.JobState) {
	e.observer.Publish(jobs.Event{
		JobID:    jobID,
		Document: doc.Name,
		Type:     jobs.EventTypeStatus,
		State:    state,
	})
}
