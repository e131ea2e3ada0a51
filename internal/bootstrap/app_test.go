package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/config"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/recognize"
	"pdf-ocr-batch/internal/tessdata"
)

// fakeChecker returns a fixed diagnostics report.
type fakeChecker struct {
	report domain.DiagnosticReport
	calls  int
}

// Run returns the preconfigured report.
func (c *fakeChecker) Run(domain.PipelineConfig) domain.DiagnosticReport {
	c.calls++
	return c.report
}

// fakeInstaller records install requests.
type fakeInstaller struct {
	err     error
	culture string
}

// Install reports one installed model for the requested culture.
func (i *fakeInstaller) Install(ctx context.Context, resourceDir, culture string) ([]tessdata.Model, error) {
	i.culture = culture
	return []tessdata.Model{{Code: "eng", FileName: "eng.traineddata", Downloaded: i.err == nil}}, i.err
}

func newTestApp(t *testing.T, cfg domain.PipelineConfig, opts Options) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &App{
		Config:    cfg,
		Logger:    zaptest.NewLogger(t),
		Events:    jobs.NewEventBus(0),
		opts:      opts,
		checker:   &fakeChecker{},
		registry:  recognize.NewRegistry(),
		runner:    &command.FakeRunner{},
		installer: &fakeInstaller{},
		stdout:    out,
	}, out
}

func emptyBatchConfig(t *testing.T) domain.PipelineConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.Normalize(domain.PipelineConfig{
		InputDir:    filepath.Join(root, "in"),
		OutputDir:   filepath.Join(root, "out"),
		ScratchDir:  filepath.Join(root, "scratch"),
		ResourceDir: filepath.Join(root, "tessdata"),
	})
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return cfg
}

// TestParseArgsOnlyExplicitFlagsOverride checks unset flags keep lower layers.
func TestParseArgsOnlyExplicitFlagsOverride(t *testing.T) {
	opts, err := ParseArgs([]string{"-dpi", "400", "-layout=false", "-concurrency", "4"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	o := opts.Overrides
	if o.DPI == nil || *o.DPI != 400 {
		t.Fatalf("dpi override = %v", o.DPI)
	}
	if o.EmitLayout == nil || *o.EmitLayout {
		t.Fatalf("layout override = %v", o.EmitLayout)
	}
	if o.Concurrency == nil || *o.Concurrency != 4 {
		t.Fatalf("concurrency override = %v", o.Concurrency)
	}
	if o.InputDir != nil || o.Preprocess != nil || o.Language != nil {
		t.Fatalf("unexpected overrides: %+v", o)
	}
}

// TestParseArgsPositionalInput accepts the input directory as an argument.
func TestParseArgsPositionalInput(t *testing.T) {
	opts, err := ParseArgs([]string{"-lang", "de-DE", "/scans"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Overrides.InputDir == nil || *opts.Overrides.InputDir != "/scans" {
		t.Fatalf("input = %v", opts.Overrides.InputDir)
	}
	if *opts.Overrides.Language != "de-DE" {
		t.Fatalf("language = %s", *opts.Overrides.Language)
	}
}

// TestParseArgsRejectsUnknownFlag checks flag errors surface.
func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	if _, err := ParseArgs([]string{"-bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}

// TestRunEmptyBatch runs the default mode end to end over no documents.
func TestRunEmptyBatch(t *testing.T) {
	cfg := emptyBatchConfig(t)
	app, out := newTestApp(t, cfg, Options{})

	if code := app.Run(context.Background()); code != domain.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "no PDF documents found") {
		t.Fatalf("stdout = %q", out.String())
	}
}

// TestRunBatchPreflightFailure maps the report to its exit code.
func TestRunBatchPreflightFailure(t *testing.T) {
	cfg := emptyBatchConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.InputDir, "a.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	app, _ := newTestApp(t, cfg, Options{})
	app.checker = &fakeChecker{report: domain.DiagnosticReport{
		HasFailures: true,
		Items: []domain.DiagnosticItem{{
			ID: domain.CheckResourceDir, Name: "Engine resource directory", Status: domain.DiagnosticStatusFail,
		}},
	}}

	if code := app.Run(context.Background()); code != domain.ExitResourceMissing {
		t.Fatalf("exit code = %d, want %d", code, domain.ExitResourceMissing)
	}
}

// TestRunDiagnose prints the report without running a batch.
func TestRunDiagnose(t *testing.T) {
	cfg := emptyBatchConfig(t)
	app, out := newTestApp(t, cfg, Options{Diagnose: true})
	app.checker = &fakeChecker{report: domain.DiagnosticReport{
		HasFailures: true,
		Items: []domain.DiagnosticItem{
			{ID: "tool_tesseract", Name: "tesseract", Status: domain.DiagnosticStatusFail, Message: "Tool not found: tesseract", Hint: "install it"},
			{ID: domain.CheckInputDir, Name: "Input directory", Status: domain.DiagnosticStatusPass, Message: "ok"},
		},
	}}

	if code := app.Run(context.Background()); code != domain.ExitSetupFailed {
		t.Fatalf("exit code = %d, want %d", code, domain.ExitSetupFailed)
	}
	text := out.String()
	for _, want := range []string{"Tool not found: tesseract", "hint: install it", "layout-json=false"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output %q missing %q", text, want)
		}
	}
}

// TestRunInstallTessdata passes the configured culture to the installer.
func TestRunInstallTessdata(t *testing.T) {
	cfg := emptyBatchConfig(t)
	cfg.Language = "en-GB"
	app, out := newTestApp(t, cfg, Options{InstallTessdata: true})
	installer := &fakeInstaller{}
	app.installer = installer

	if code := app.Run(context.Background()); code != domain.ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if installer.culture != "en-GB" || !strings.Contains(out.String(), "installed eng.traineddata") {
		t.Fatalf("culture = %q, out = %q", installer.culture, out.String())
	}

	installer.err = errors.New("offline")
	if code := app.Run(context.Background()); code != domain.ExitSetupFailed {
		t.Fatalf("exit code = %d, want %d", code, domain.ExitSetupFailed)
	}
}

// TestRunWriteConfig saves the resolved configuration.
func TestRunWriteConfig(t *testing.T) {
	cfg := emptyBatchConfig(t)
	path := filepath.Join(t.TempDir(), "conf", "ocrbatch.yaml")
	app, _ := newTestApp(t, cfg, Options{WriteConfig: path})

	if code := app.Run(context.Background()); code != domain.ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	got, err := config.NewYAMLStore(path).Load()
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if got != cfg {
		t.Fatalf("config = %+v, want %+v", got, cfg)
	}
}

// TestRunDumpsEvents writes the event history as JSON lines.
func TestRunDumpsEvents(t *testing.T) {
	cfg := emptyBatchConfig(t)
	path := filepath.Join(t.TempDir(), "events.jsonl")
	app, _ := newTestApp(t, cfg, Options{EventsPath: path})
	app.Events.Publish(jobs.Event{JobID: "job-1", Type: jobs.EventTypeStatus, State: domain.JobStateCreated})

	if code := app.Run(context.Background()); code != domain.ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %v", lines)
	}
	var ev jobs.Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.JobID != "job-1" || ev.State != domain.JobStateCreated {
		t.Fatalf("event = %+v", ev)
	}
}

// TestNewLogger checks format and level selection.
func TestNewLogger(t *testing.T) {
	if _, err := newLogger("console", "debug"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := newLogger("json", ""); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := newLogger("json", "loud"); err == nil {
		t.Fatal("expected invalid level error")
	}
}
