// Package raster turns a PDF into an ordered sequence of grayscale page images
// at the process-wide resolution.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
)

const stageRasterizing = "rasterizing"

var disableConfigDir sync.Once

// PageCounter validates a PDF and reports its page count.
type PageCounter interface {
	CountPages(path string) (int, error)
}

// PageCounterFunc adapts a function to PageCounter.
type PageCounterFunc func(path string) (int, error)

// CountPages calls f.
func (f PageCounterFunc) CountPages(path string) (int, error) {
	return f(path)
}

// PDFCounter counts pages with pdfcpu under relaxed validation.
type PDFCounter struct{}

// CountPages reads the cross-reference table and page tree of path.
func (PDFCounter) CountPages(path string) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}

// Rasterizer renders PDF pages through poppler's pdftoppm.
type Rasterizer struct {
	binary  string
	runner  command.Runner
	counter PageCounter
	logger  *zap.Logger
}

// NewRasterizer builds a rasterizer. Empty binary means pdftoppm on PATH.
func NewRasterizer(binary string, runner command.Runner, counter PageCounter, logger *zap.Logger) *Rasterizer {
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	if runner == nil {
		runner = command.NewExecRunner()
	}
	if counter == nil {
		counter = PDFCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{binary: binary, runner: runner, counter: counter, logger: logger}
}

// Open validates path and returns its page accessor. The DPI is captured
// from the process-wide setting at open time.
func (r *Rasterizer) Open(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := r.counter.CountPages(path)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindRasterization, stageRasterizing, "cannot open document", err)
	}
	if n <= 0 {
		return nil, domain.NewError(domain.ErrorKindRasterization, stageRasterizing, "document has no pages", nil)
	}
	return &Document{r: r, path: path, pages: n, dpi: Resolution()}, nil
}

// Document is an opened PDF. Pages are rendered on demand, one at a time.
type Document struct {
	r     *Rasterizer
	path  string
	pages int
	dpi   int
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// DPI returns the resolution pages are rendered at.
func (d *Document) DPI() int {
	return d.dpi
}

// Page renders the zero-based page index as 8-bit grayscale.
func (d *Document) Page(ctx context.Context, index int) (*image.Gray, error) {
	if index < 0 || index >= d.pages {
		return nil, domain.NewError(domain.ErrorKindRasterization, stageRasterizing,
			fmt.Sprintf("page %d out of range [0, %d)", index, d.pages), nil)
	}

	args := buildPdftoppmArgs(d.path, index+1, d.dpi)
	res, err := d.r.runner.Run(ctx, nil, d.r.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pErr := domain.NewError(domain.ErrorKindRasterization, stageRasterizing,
			fmt.Sprintf("render page %d failed", index+1), err)
		pErr.CommandLog = command.Log(d.r.binary, args, res)
		return nil, pErr
	}

	img, err := png.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindRasterization, stageRasterizing,
			fmt.Sprintf("decode page %d", index+1), err)
	}
	d.r.logger.Debug("page rasterized",
		zap.String("path", d.path),
		zap.Int("page", index),
		zap.Int("dpi", d.dpi),
		zap.Int("bytes", len(res.Stdout)),
	)
	return ToGray(img), nil
}

// Close releases the document. Rendering holds no open handles between pages.
func (d *Document) Close() error {
	return nil
}

// ToGray returns img as *image.Gray, converting when needed.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// buildPdftoppmArgs renders exactly one page as a grayscale PNG on stdout.
func buildPdftoppmArgs(path string, page, dpi int) []string {
	p := strconv.Itoa(page)
	return []string{
		"-f", p,
		"-l", p,
		"-r", strconv.Itoa(dpi),
		"-gray",
		"-png",
		"-singlefile",
		path,
	}
}
