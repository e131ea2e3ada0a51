package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pdf-ocr-batch/internal/domain"
)

func foundTools(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func realChecker(lookPath func(string) (string, error)) *Checker {
	return NewCheckerForTests(lookPath, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
}

// validConfig lays out a complete environment under a temp dir.
func validConfig(t *testing.T) domain.PipelineConfig {
	t.Helper()
	root := t.TempDir()
	cfg := domain.PipelineConfig{
		InputDir:    filepath.Join(root, "in"),
		OutputDir:   filepath.Join(root, "out"),
		ScratchDir:  filepath.Join(root, "scratch"),
		ResourceDir: filepath.Join(root, "tessdata"),
		Language:    "en-US+de",
	}
	for _, dir := range []string{cfg.InputDir, cfg.ResourceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for _, code := range []string{"eng", "deu"} {
		if err := os.WriteFile(filepath.Join(cfg.ResourceDir, code+".traineddata"), []byte("stub"), 0o644); err != nil {
			t.Fatalf("write traineddata: %v", err)
		}
	}
	return cfg
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	cfg := validConfig(t)
	report := realChecker(foundTools).Run(cfg)
	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Failures())
	}
	if _, err := os.Stat(cfg.OutputDir); err != nil {
		t.Fatalf("output dir not created: %v", err)
	}
	if code := ExitCode(report); code != domain.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := realChecker(func(string) (string, error) { return "", errors.New("not found") })

	report := checker.Run(domain.PipelineConfig{
		InputDir:    "/path/that/does/not/exist",
		ResourceDir: "/another/missing/path",
		Language:    "en-US",
	})
	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_pdftoppm", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_tesseract", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckInputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckResourceDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckTraineddata, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckOutputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckScratchDir, domain.DiagnosticStatusFail)
}

// TestCheckerUsesConfiguredToolPath checks explicit tool locations.
func TestCheckerUsesConfiguredToolPath(t *testing.T) {
	cfg := validConfig(t)
	cfg.TesseractPath = "/opt/tesseract/bin/tesseract"
	var looked []string
	report := realChecker(func(name string) (string, error) {
		looked = append(looked, name)
		return name, nil
	}).Run(cfg)
	if report.HasFailures {
		t.Fatalf("unexpected failures: %+v", report.Failures())
	}
	if len(looked) != 2 || looked[0] != "pdftoppm" || looked[1] != cfg.TesseractPath {
		t.Fatalf("looked up %v", looked)
	}
}

// TestCheckerMissingTraineddata validates per-language data checks.
func TestCheckerMissingTraineddata(t *testing.T) {
	cfg := validConfig(t)
	cfg.Language = "en-US+fr"
	report := realChecker(foundTools).Run(cfg)

	assertStatusByID(t, report, domain.CheckResourceDir, domain.DiagnosticStatusPass)
	assertStatusByID(t, report, domain.CheckTraineddata, domain.DiagnosticStatusFail)
	if code := ExitCode(report); code != domain.ExitSetupFailed {
		t.Fatalf("exit code = %d, want %d", code, domain.ExitSetupFailed)
	}
}

// TestCheckerInputIsFile validates directory type checks.
func TestCheckerInputIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(file, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.InputDir = file
	report := realChecker(foundTools).Run(cfg)
	assertStatusByID(t, report, domain.CheckInputDir, domain.DiagnosticStatusFail)
}

// TestCheckerUnwritableOutput validates write probing.
func TestCheckerUnwritableOutput(t *testing.T) {
	cfg := validConfig(t)
	checker := NewCheckerForTests(foundTools, os.Stat, os.MkdirAll,
		func(dir, pattern string) (*os.File, error) {
			if dir == cfg.OutputDir {
				return nil, os.ErrPermission
			}
			return os.CreateTemp(dir, pattern)
		},
		os.Remove,
	)
	report := checker.Run(cfg)
	assertStatusByID(t, report, domain.CheckOutputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.CheckScratchDir, domain.DiagnosticStatusPass)
}

// TestExitCodePrecedence checks the input directory outranks other failures.
func TestExitCodePrecedence(t *testing.T) {
	fail := func(ids ...string) domain.DiagnosticReport {
		r := domain.DiagnosticReport{HasFailures: true}
		for _, id := range ids {
			r.Items = append(r.Items, domain.DiagnosticItem{ID: id, Status: domain.DiagnosticStatusFail})
		}
		return r
	}
	cases := []struct {
		report domain.DiagnosticReport
		want   int
	}{
		{fail(domain.CheckResourceDir, domain.CheckInputDir), domain.ExitInputMissing},
		{fail(domain.CheckResourceDir, domain.CheckTraineddata), domain.ExitResourceMissing},
		{fail("tool_tesseract"), domain.ExitSetupFailed},
		{domain.DiagnosticReport{}, domain.ExitOK},
	}
	for i, tc := range cases {
		if got := ExitCode(tc.report); got != tc.want {
			t.Fatalf("case %d: exit code = %d, want %d", i, got, tc.want)
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
