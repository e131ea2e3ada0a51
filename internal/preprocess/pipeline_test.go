package preprocess

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap/zaptest"

	"pdf-ocr-batch/internal/cleanup"
	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/raster"
	"pdf-ocr-batch/internal/tiffstack"
)

// pageRunner renders page N as a white PNG that is 40+N pixels wide.
func pageRunner(t *testing.T, hook func(page int) error) *command.FakeRunner {
	t.Helper()
	return &command.FakeRunner{
		RunFunc: func(ctx context.Context, stdin io.Reader, name string, args ...string) (command.Result, error) {
			page, err := strconv.Atoi(argValue(args, "-f"))
			if err != nil {
				t.Fatalf("bad -f arg: %v", args)
			}
			if hook != nil {
				if err := hook(page); err != nil {
					return command.Result{Stderr: "render failed", ExitCode: 1}, err
				}
			}
			img := image.NewGray(image.Rect(0, 0, 40+page, 30))
			for i := range img.Pix {
				img.Pix[i] = 255
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				t.Fatalf("encode: %v", err)
			}
			return command.Result{Stdout: buf.Bytes()}, nil
		},
	}
}

func newPipeline(t *testing.T, runner command.Runner, pages int, writer PageWriter, observer jobs.Observer) *Pipeline {
	t.Helper()
	counter := raster.PageCounterFunc(func(string) (int, error) { return pages, nil })
	r := raster.NewRasterizer("pdftoppm", runner, counter, zaptest.NewLogger(t))
	return New(r, nil, writer, observer, zaptest.NewLogger(t))
}

// TestBuildCleanedImageSequenceKeepsPageOrder checks N pages in order.
func TestBuildCleanedImageSequenceKeepsPageOrder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preprocessed.tif")
	bus := jobs.NewEventBus(0)
	p := newPipeline(t, pageRunner(t, nil), 4, nil, bus)

	res, err := p.BuildCleanedImageSequence(context.Background(), Request{
		JobID:      "job-1",
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("BuildCleanedImageSequence() error = %v", err)
	}
	if res.Pages != 4 || res.Path != out {
		t.Fatalf("result = %+v", res)
	}

	r, err := tiffstack.Open(out)
	if err != nil {
		t.Fatalf("open intermediate: %v", err)
	}
	defer r.Close()
	if r.PageCount() != 4 {
		t.Fatalf("intermediate pages = %d, want 4", r.PageCount())
	}
	for i := 0; i < 4; i++ {
		img, err := r.Page(i)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if img.Bounds().Dx() != 41+i {
			t.Fatalf("page %d width = %d, want %d", i, img.Bounds().Dx(), 41+i)
		}
	}

	var rasterized, cleaned int
	for _, ev := range bus.Since(0) {
		if ev.JobID != "job-1" {
			continue
		}
		switch ev.Type {
		case jobs.EventTypePageRasterized:
			rasterized++
		case jobs.EventTypePageCleaned:
			cleaned++
		}
	}
	if rasterized != 4 || cleaned != 4 {
		t.Fatalf("events rasterized=%d cleaned=%d, want 4/4", rasterized, cleaned)
	}
}

// TestBuildCleanedImageSequenceChecksCancellationPerPage checks page-boundary cancellation.
func TestBuildCleanedImageSequenceChecksCancellationPerPage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preprocessed.tif")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := pageRunner(t, func(page int) error {
		if page == 2 {
			cancel()
		}
		return nil
	})
	p := newPipeline(t, runner, 5, nil, nil)
	_, err := p.BuildCleanedImageSequence(ctx, Request{
		JobID:      "job-1",
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: out,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls := len(runner.Calls()); calls != 2 {
		t.Fatalf("rasterizer calls = %d, want 2", calls)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial intermediate should be removed, stat err = %v", statErr)
	}
}

// TestBuildCleanedImageSequenceRasterFailure checks failure classification and cleanup.
func TestBuildCleanedImageSequenceRasterFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preprocessed.tif")
	runner := pageRunner(t, func(page int) error {
		if page == 3 {
			return errors.New("exit status 1")
		}
		return nil
	})
	p := newPipeline(t, runner, 4, nil, nil)
	_, err := p.BuildCleanedImageSequence(context.Background(), Request{
		JobID:      "job-1",
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: out,
	})
	if kind := domain.KindOf(err); kind != domain.ErrorKindRasterization {
		t.Fatalf("kind = %s, want rasterization (err=%v)", kind, err)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial intermediate should be removed, stat err = %v", statErr)
	}
}

// TestBuildCleanedImageSequenceCleanupFailure checks filter errors abort the document.
func TestBuildCleanedImageSequenceCleanupFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preprocessed.tif")
	counter := raster.PageCounterFunc(func(string) (int, error) { return 2, nil })
	r := raster.NewRasterizer("pdftoppm", pageRunner(t, nil), counter, nil)
	p := New(r, cleanup.Chain{brokenFilter{}}, nil, nil, zaptest.NewLogger(t))

	_, err := p.BuildCleanedImageSequence(context.Background(), Request{
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: out,
	})
	if kind := domain.KindOf(err); kind != domain.ErrorKindCleanup {
		t.Fatalf("kind = %s, want cleanup (err=%v)", kind, err)
	}
}

// TestBuildCleanedImageSequenceWriterFailure checks write errors are IO errors.
func TestBuildCleanedImageSequenceWriterFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing-dir", "preprocessed.tif")
	p := newPipeline(t, pageRunner(t, nil), 2, nil, nil)
	_, err := p.BuildCleanedImageSequence(context.Background(), Request{
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: out,
	})
	if kind := domain.KindOf(err); kind != domain.ErrorKindIO {
		t.Fatalf("kind = %s, want io (err=%v)", kind, err)
	}
}

// TestBuildCleanedImageSequenceCreatesThenAppends checks writer call order.
func TestBuildCleanedImageSequenceCreatesThenAppends(t *testing.T) {
	w := &recordingWriter{}
	p := newPipeline(t, pageRunner(t, nil), 3, w, nil)
	if _, err := p.BuildCleanedImageSequence(context.Background(), Request{
		Document:   domain.NewDocument("/in/report.pdf"),
		OutputPath: "/scratch/preprocessed.tif",
	}); err != nil {
		t.Fatalf("BuildCleanedImageSequence() error = %v", err)
	}
	want := []string{"create", "append", "append"}
	if len(w.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", w.ops, want)
	}
	for i := range want {
		if w.ops[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q", i, w.ops[i], want[i])
		}
	}
}

type recordingWriter struct {
	ops []string
}

func (w *recordingWriter) Create(string, image.Image) error {
	w.ops = append(w.ops, "create")
	return nil
}

func (w *recordingWriter) Append(string, image.Image) error {
	w.ops = append(w.ops, "append")
	return nil
}

type brokenFilter struct{}

func (brokenFilter) Name() string { return "broken" }

func (brokenFilter) Apply(*image.Gray) (*image.Gray, error) {
	return nil, errors.New("filter exploded")
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}
