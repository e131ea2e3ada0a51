package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/pdftest"
)

// TestSetResolutionRejectedWhileLocked checks the run-scoped DPI lock.
func TestSetResolutionRejectedWhileLocked(t *testing.T) {
	if err := SetResolution(200); err != nil {
		t.Fatalf("SetResolution(200) error = %v", err)
	}
	unlock := LockResolution()
	if err := SetResolution(400); !errors.Is(err, ErrResolutionLocked) {
		t.Fatalf("SetResolution while locked error = %v, want ErrResolutionLocked", err)
	}
	if got := Resolution(); got != 200 {
		t.Fatalf("Resolution() = %d, want 200", got)
	}
	unlock()
	unlock()
	if err := SetResolution(domain.DefaultDPI); err != nil {
		t.Fatalf("SetResolution after unlock error = %v", err)
	}
}

// TestSetResolutionRejectsOutOfRange checks DPI bounds.
func TestSetResolutionRejectsOutOfRange(t *testing.T) {
	for _, dpi := range []int{0, domain.MinDPI - 1, domain.MaxDPI + 1} {
		if err := SetResolution(dpi); err == nil {
			t.Fatalf("SetResolution(%d) expected error", dpi)
		}
	}
}

// TestPDFCounterCountsPages checks pdfcpu page counting on a valid file.
func TestPDFCounterCountsPages(t *testing.T) {
	path := pdftest.WriteBlank(t, t.TempDir(), "three.pdf", 3)
	n, err := PDFCounter{}.CountPages(path)
	if err != nil {
		t.Fatalf("CountPages() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("pages = %d, want 3", n)
	}
}

// TestOpenMalformedDocumentReturnsRasterizationError checks invalid input.
func TestOpenMalformedDocumentReturnsRasterizationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRasterizer("", &command.FakeRunner{}, nil, zaptest.NewLogger(t))
	_, err := r.Open(context.Background(), path)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := domain.KindOf(err); kind != domain.ErrorKindRasterization {
		t.Fatalf("kind = %s, want rasterization", kind)
	}
}

// TestPageRendersOnePageAtCapturedDPI checks pdftoppm arguments and decoding.
func TestPageRendersOnePageAtCapturedDPI(t *testing.T) {
	if err := SetResolution(150); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	t.Cleanup(func() { _ = SetResolution(domain.DefaultDPI) })

	var gotName string
	var gotArgs []string
	runner := &command.FakeRunner{
		RunFunc: func(ctx context.Context, stdin io.Reader, name string, args ...string) (command.Result, error) {
			gotName = name
			gotArgs = append([]string{}, args...)
			return command.Result{Stdout: pngBytes(t, 4, 3)}, nil
		},
	}
	counter := PageCounterFunc(func(string) (int, error) { return 2, nil })
	r := NewRasterizer("pdftoppm-custom", runner, counter, zaptest.NewLogger(t))

	doc, err := r.Open(context.Background(), "/in/doc.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	if err := SetResolution(300); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	img, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("bounds = %v, want 4x3", img.Bounds())
	}
	if gotName != "pdftoppm-custom" {
		t.Fatalf("command = %q", gotName)
	}
	want := []string{"-f", "2", "-l", "2", "-r", "150", "-gray", "-png", "-singlefile", "/in/doc.pdf"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}

// TestPageFailureCarriesCommandLog checks rasterizer failure classification.
func TestPageFailureCarriesCommandLog(t *testing.T) {
	runner := &command.FakeRunner{
		RunFunc: func(ctx context.Context, stdin io.Reader, name string, args ...string) (command.Result, error) {
			return command.Result{Stderr: "Syntax Error", ExitCode: 99}, errors.New("exit status 99")
		},
	}
	counter := PageCounterFunc(func(string) (int, error) { return 1, nil })
	doc, err := NewRasterizer("", runner, counter, nil).Open(context.Background(), "/in/doc.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, err = doc.Page(context.Background(), 0)
	var pErr *domain.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if pErr.Kind != domain.ErrorKindRasterization {
		t.Fatalf("kind = %s", pErr.Kind)
	}
	if pErr.CommandLog.Command != "pdftoppm" || pErr.CommandLog.ExitCode != 99 {
		t.Fatalf("command log = %+v", pErr.CommandLog)
	}
}

// TestPageRejectsOutOfRangeIndex checks page bounds.
func TestPageRejectsOutOfRangeIndex(t *testing.T) {
	counter := PageCounterFunc(func(string) (int, error) { return 1, nil })
	doc, err := NewRasterizer("", &command.FakeRunner{}, counter, nil).Open(context.Background(), "/in/doc.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := doc.Page(context.Background(), 1); err == nil {
		t.Fatal("expected out of range error")
	}
}

// TestToGrayConvertsColor checks conversion of non-gray decodes.
func TestToGrayConvertsColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.White)
	src.Set(1, 0, color.Black)
	g := ToGray(src)
	if g.GrayAt(0, 0).Y != 255 || g.GrayAt(1, 0).Y != 0 {
		t.Fatalf("gray pixels = %v %v", g.GrayAt(0, 0), g.GrayAt(1, 0))
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
