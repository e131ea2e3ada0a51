// Package pages selects where recognition reads page images from: the
// cleaned intermediate file, or the source document rasterized on demand.
package pages

import (
	"context"
	"fmt"
	"image"

	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/raster"
	"pdf-ocr-batch/internal/tiffstack"
)

// Source is an opened, ordered page sequence. It can be iterated any number
// of times until closed. It is not safe for concurrent use.
type Source interface {
	PageCount() int
	Page(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// TIFFSource reads pages from a cleaned multi-page TIFF.
type TIFFSource struct {
	r *tiffstack.Reader
}

// OpenTIFF opens the intermediate file produced by preprocessing.
func OpenTIFF(path string) (*TIFFSource, error) {
	r, err := tiffstack.Open(path)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindIO, "recognizing", "open preprocessed image", err)
	}
	return &TIFFSource{r: r}, nil
}

// PageCount implements Source.
func (s *TIFFSource) PageCount() int {
	return s.r.PageCount()
}

// Page implements Source.
func (s *TIFFSource) Page(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.r.Page(index)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindIO, "recognizing", "read preprocessed page", err)
	}
	return img, nil
}

// Close implements Source.
func (s *TIFFSource) Close() error {
	return s.r.Close()
}

// DirectSource rasterizes the source document page by page, uncleaned.
type DirectSource struct {
	doc *raster.Document
}

// NewDirect wraps an opened document.
func NewDirect(doc *raster.Document) *DirectSource {
	return &DirectSource{doc: doc}
}

// PageCount implements Source.
func (s *DirectSource) PageCount() int {
	return s.doc.PageCount()
}

// Page implements Source.
func (s *DirectSource) Page(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.doc.Page(ctx, index)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Close implements Source.
func (s *DirectSource) Close() error {
	return s.doc.Close()
}

// Images is an in-memory Source, mainly for tests and small inputs.
type Images []image.Image

// PageCount implements Source.
func (s Images) PageCount() int { return len(s) }

// Page implements Source.
func (s Images) Page(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s) {
		return nil, fmt.Errorf("page %d out of range [0, %d)", index, len(s))
	}
	return s[index], nil
}

// Close implements Source.
func (Images) Close() error { return nil }
