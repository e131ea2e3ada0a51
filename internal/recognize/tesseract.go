package recognize

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/pages"
)

var disableConfigDir sync.Once

func init() {
	Register(domain.ArtifactSearchablePDF, "tesseract-pdf", NewCLIFactory("pdf"))
	Register(domain.ArtifactPlainText, "tesseract-txt", NewCLIFactory("txt"))
}

// NewCLIFactory returns a factory for the tesseract command-line renderer
// with the given config name ("pdf" or "txt").
func NewCLIFactory(format string) Factory {
	return func(cfg TranslatorConfig) (Translator, error) {
		if format != "pdf" && format != "txt" {
			return nil, fmt.Errorf("unsupported tesseract output %q", format)
		}
		binary := strings.TrimSpace(cfg.TesseractPath)
		if binary == "" {
			binary = "tesseract"
		}
		runner := cfg.Runner
		if runner == nil {
			runner = command.NewExecRunner()
		}
		logger := cfg.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		return &cliTranslator{cfg: cfg, binary: binary, format: format, runner: runner, logger: logger}, nil
	}
}

// cliTranslator runs tesseract once per page with the PNG on stdin.
type cliTranslator struct {
	cfg    TranslatorConfig
	binary string
	format string
	runner command.Runner
	logger *zap.Logger
}

// Translate implements Translator. Text pages are concatenated as emitted
// (tesseract ends each page with a form feed); PDF pages are merged.
func (t *cliTranslator) Translate(ctx context.Context, src pages.Source, w io.Writer) error {
	n := src.PageCount()
	if n == 0 {
		return fmt.Errorf("page source is empty")
	}

	var pagePDFs []string
	defer func() {
		for _, p := range pagePDFs {
			_ = os.Remove(p)
		}
	}()

	for i := 0; i < n; i++ {
		out, err := t.recognizePage(ctx, src, i)
		if err != nil {
			return err
		}
		if t.format == "txt" {
			if _, err := w.Write(out); err != nil {
				return domain.NewError(domain.ErrorKindIO, stageRecognizing, "write text", err)
			}
			continue
		}
		path, err := t.spool(out)
		if err != nil {
			return domain.NewError(domain.ErrorKindIO, stageRecognizing, "spool page pdf", err)
		}
		pagePDFs = append(pagePDFs, path)
	}

	if t.format == "pdf" {
		return mergePDFs(pagePDFs, w)
	}
	return nil
}

func (t *cliTranslator) recognizePage(ctx context.Context, src pages.Source, index int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := src.Page(ctx, index)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.NewError(domain.ErrorKindRecognition, stageRecognizing,
			fmt.Sprintf("encode page %d", index+1), err)
	}

	args := buildTesseractArgs(t.cfg.Language, t.cfg.ResourceDir, t.cfg.DPI, t.format)
	res, err := t.runner.Run(ctx, &buf, t.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pErr := domain.NewError(domain.ErrorKindRecognition, stageRecognizing,
			fmt.Sprintf("tesseract %s failed on page %d", t.format, index+1), err)
		pErr.CommandLog = command.Log(t.binary, args, res)
		return nil, pErr
	}
	t.logger.Debug("page recognized",
		zap.String("format", t.format),
		zap.Int("page", index),
		zap.Int("bytes", len(res.Stdout)),
	)
	return res.Stdout, nil
}

// spool writes one page PDF into the work directory.
func (t *cliTranslator) spool(data []byte) (string, error) {
	f, err := os.CreateTemp(t.cfg.WorkDir, "page-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// mergePDFs concatenates page PDFs in order with pdfcpu.
func mergePDFs(paths []string, w io.Writer) (err error) {
	if len(paths) == 1 {
		f, err := os.Open(paths[0])
		if err != nil {
			return domain.NewError(domain.ErrorKindIO, stageRecognizing, "read page pdf", err)
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return domain.NewError(domain.ErrorKindIO, stageRecognizing, "write pdf", err)
		}
		return nil
	}

	disableConfigDir.Do(api.DisableConfigDir)
	readers := make([]io.ReadSeeker, 0, len(paths))
	defer func() {
		for _, r := range readers {
			err = multierr.Append(err, r.(*os.File).Close())
		}
	}()
	for _, p := range paths {
		f, openErr := os.Open(p)
		if openErr != nil {
			return domain.NewError(domain.ErrorKindIO, stageRecognizing, "read page pdf", openErr)
		}
		readers = append(readers, f)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if mergeErr := api.MergeRaw(readers, w, false, conf); mergeErr != nil {
		return domain.NewError(domain.ErrorKindRecognition, stageRecognizing, "merge page pdfs", mergeErr)
	}
	return nil
}

// buildTesseractArgs reads the page from stdin and writes the rendered
// output to stdout.
func buildTesseractArgs(lang, tessdataDir string, dpi int, format string) []string {
	args := []string{"stdin", "stdout", "-l", lang}
	if tessdataDir != "" {
		args = append(args, "--tessdata-dir", tessdataDir)
	}
	if dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(dpi))
	}
	return append(args, format)
}
