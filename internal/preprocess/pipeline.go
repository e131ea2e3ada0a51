// Package preprocess turns a PDF into a cleaned multi-page image file, one
// page at a time.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"go.uber.org/zap"

	"pdf-ocr-batch/internal/cleanup"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/jobs"
	"pdf-ocr-batch/internal/raster"
	"pdf-ocr-batch/internal/tiffstack"
)

const stagePreprocessing = "preprocessing"

// PageWriter materializes pages into a growing multi-page file.
type PageWriter interface {
	Create(path string, page image.Image) error
	Append(path string, page image.Image) error
}

// Request describes one preprocessing run.
type Request struct {
	JobID      string
	Document   domain.Document
	OutputPath string
}

// Result describes the produced intermediate file.
type Result struct {
	Path  string
	Pages int
}

// Pipeline composes the rasterizer, the cleanup chain and the page writer.
type Pipeline struct {
	rasterizer *raster.Rasterizer
	chain      cleanup.Chain
	writer     PageWriter
	observer   jobs.Observer
	logger     *zap.Logger
	remove     func(string) error
}

// New builds a pipeline. A nil chain uses the canonical cleanup order and a
// nil writer uses the TIFF writer.
func New(rasterizer *raster.Rasterizer, chain cleanup.Chain, writer PageWriter, observer jobs.Observer, logger *zap.Logger) *Pipeline {
	if chain == nil {
		chain = cleanup.Canonical()
	}
	if writer == nil {
		writer = tiffstack.NewWriter()
	}
	if observer == nil {
		observer = jobs.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		rasterizer: rasterizer,
		chain:      chain,
		writer:     writer,
		observer:   observer,
		logger:     logger,
		remove:     os.Remove,
	}
}

// BuildCleanedImageSequence rasterizes every page in ascending order, cleans
// it and appends it to req.OutputPath. Cancellation is checked before each
// page. On any failure the partial file is removed.
func (p *Pipeline) BuildCleanedImageSequence(ctx context.Context, req Request) (result Result, err error) {
	started := time.Now()
	logger := p.logger.With(zap.String("job_id", req.JobID), zap.String("document", req.Document.Name))

	doc, err := p.rasterizer.Open(ctx, req.Document.Path)
	if err != nil {
		return Result{}, err
	}
	defer doc.Close()

	defer func() {
		if err == nil {
			return
		}
		if rmErr := p.remove(req.OutputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("partial intermediate file not removed", zap.String("path", req.OutputPath), zap.Error(rmErr))
		}
	}()

	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := p.processPage(ctx, doc, i, req); err != nil {
			return Result{}, err
		}
	}

	logger.Info("preprocessing complete",
		zap.Int("pages", doc.PageCount()),
		zap.Int("dpi", doc.DPI()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return Result{Path: req.OutputPath, Pages: doc.PageCount()}, nil
}

// processPage keeps each page's buffers scoped to one iteration.
func (p *Pipeline) processPage(ctx context.Context, doc *raster.Document, index int, req Request) error {
	pageStart := time.Now()
	page, err := doc.Page(ctx, index)
	if err != nil {
		return err
	}
	p.observer.Publish(jobs.Event{
		JobID:      req.JobID,
		Document:   req.Document.Name,
		Type:       jobs.EventTypePageRasterized,
		PageNumber: index + 1,
		Elapsed:    time.Since(pageStart),
	})

	cleanStart := time.Now()
	cleaned, err := p.chain.Apply(page)
	if err != nil {
		return err
	}
	p.observer.Publish(jobs.Event{
		JobID:      req.JobID,
		Document:   req.Document.Name,
		Type:       jobs.EventTypePageCleaned,
		PageNumber: index + 1,
		Elapsed:    time.Since(cleanStart),
	})

	if index == 0 {
		err = p.writer.Create(req.OutputPath, cleaned)
	} else {
		err = p.writer.Append(req.OutputPath, cleaned)
	}
	if err != nil {
		return domain.NewError(domain.ErrorKindIO, stagePreprocessing,
			fmt.Sprintf("write page %d to intermediate file", index+1), err)
	}
	return nil
}
