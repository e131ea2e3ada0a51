// Package cleanup implements the page image filters applied before
// recognition and the fixed chain that composes them.
package cleanup

import (
	"errors"
	"fmt"
	"image"

	"pdf-ocr-batch/internal/domain"
)

const stageCleanup = "cleanup"

// Filter transforms one page image. Implementations never modify their input.
type Filter interface {
	Name() string
	Apply(img *image.Gray) (*image.Gray, error)
}

// Chain applies filters in order.
type Chain []Filter

// Canonical returns the production chain: deskew, binarize, despeckle.
func Canonical() Chain {
	return Chain{NewDeskew(), Binarize{}, NewDespeckle()}
}

// Names lists the filter names in application order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c))
	for _, f := range c {
		names = append(names, f.Name())
	}
	return names
}

// Apply runs every filter over img. A failing filter aborts the chain with a
// cleanup error naming the filter.
func (c Chain) Apply(img *image.Gray) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, domain.NewError(domain.ErrorKindCleanup, stageCleanup, "empty page image", nil)
	}
	out := img
	for _, f := range c {
		next, err := f.Apply(out)
		if err != nil {
			var pErr *domain.PipelineError
			if errors.As(err, &pErr) {
				return nil, err
			}
			return nil, domain.NewError(domain.ErrorKindCleanup, stageCleanup, fmt.Sprintf("%s failed", f.Name()), err)
		}
		if next == nil {
			return nil, domain.NewError(domain.ErrorKindCleanup, stageCleanup, fmt.Sprintf("%s returned no image", f.Name()), nil)
		}
		out = next
	}
	return out, nil
}

// normalized copies img into a new zero-origin gray image.
func normalized(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:b.Dx()])
	}
	return out
}

// histogram counts gray levels.
func histogram(img *image.Gray) [256]int {
	var h [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):][:b.Dx()]
		for _, v := range row {
			h[v]++
		}
	}
	return h
}
