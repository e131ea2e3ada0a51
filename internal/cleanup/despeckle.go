package cleanup

import "image"

const (
	// DefaultMaxSpeckArea is the largest black component removed as noise.
	DefaultMaxSpeckArea = 4
	// despeckleThreshold splits non-bilevel input before component search.
	despeckleThreshold = 128
)

// Despeckle whitens small 8-connected black components. The output is
// always bilevel; non-bilevel input is first split at a fixed threshold.
type Despeckle struct {
	MaxArea int
}

// NewDespeckle returns a despeckle filter with the default speck size.
func NewDespeckle() Despeckle {
	return Despeckle{MaxArea: DefaultMaxSpeckArea}
}

// Name implements Filter.
func (Despeckle) Name() string { return "despeckle" }

// Apply implements Filter.
func (d Despeckle) Apply(img *image.Gray) (*image.Gray, error) {
	out := normalized(img)
	if !isBilevel(out) {
		for i, v := range out.Pix {
			if v < despeckleThreshold {
				out.Pix[i] = 0
			} else {
				out.Pix[i] = 255
			}
		}
	}

	maxArea := d.MaxArea
	if maxArea <= 0 {
		return out, nil
	}

	w, h := out.Rect.Dx(), out.Rect.Dy()
	seen := make([]bool, w*h)
	var stack, component []int
	for start := 0; start < w*h; start++ {
		if seen[start] || out.Pix[pixIndex(out, start, w)] != 0 {
			continue
		}
		component = component[:0]
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, p)
			px, py := p%w, p/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					q := ny*w + nx
					if seen[q] || out.Pix[pixIndex(out, q, w)] != 0 {
						continue
					}
					seen[q] = true
					stack = append(stack, q)
				}
			}
		}
		if len(component) <= maxArea {
			for _, p := range component {
				out.Pix[pixIndex(out, p, w)] = 255
			}
		}
	}
	return out, nil
}

func pixIndex(img *image.Gray, p, w int) int {
	return (p/w)*img.Stride + p%w
}

func isBilevel(img *image.Gray) bool {
	for _, v := range img.Pix {
		if v != 0 && v != 255 {
			return false
		}
	}
	return true
}
