package command

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

// TestExecRunnerPipesStdin checks stdin and stdout capture.
func TestExecRunnerPipesStdin(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	res, err := NewExecRunner().Run(context.Background(), strings.NewReader("page bytes"), "cat")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "page bytes" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

// TestExecRunnerReportsExitCode checks non-zero exit handling.
func TestExecRunnerReportsExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	res, err := NewExecRunner().Run(context.Background(), nil, "sh", "-c", "echo broken >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stderr) != "broken" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

// TestExecRunnerCancelledContext checks context errors win.
func TestExecRunnerCancelledContext(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExecRunner().Run(ctx, nil, "sleep", "5")
	if err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

// TestLogKeepsStderrTail checks stderr truncation for reports.
func TestLogKeepsStderrTail(t *testing.T) {
	stderr := strings.Repeat("x", maxStderr) + "tail"
	log := Log("tesseract", []string{"stdin", "stdout"}, Result{Stderr: stderr, ExitCode: 1})
	if len(log.Stderr) != maxStderr {
		t.Fatalf("stderr len = %d, want %d", len(log.Stderr), maxStderr)
	}
	if !strings.HasSuffix(log.Stderr, "tail") {
		t.Fatal("expected stderr tail to be kept")
	}
	if log.Command != "tesseract" || log.ExitCode != 1 || len(log.Args) != 2 {
		t.Fatalf("log = %+v", log)
	}
}

// TestFakeRunnerRecordsCalls checks recorded stdin and args.
func TestFakeRunnerRecordsCalls(t *testing.T) {
	f := &FakeRunner{}
	if _, err := f.Run(context.Background(), strings.NewReader("png"), "tesseract", "stdin", "stdout"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	calls := f.Calls()
	if len(calls) != 1 || calls[0].Name != "tesseract" || string(calls[0].Stdin) != "png" {
		t.Fatalf("calls = %+v", calls)
	}
}
