package cleanup

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	defaultMaxSkew   = 5.0
	defaultSkewStep  = 0.25
	analysisMaxWidth = 800
)

// Deskew estimates the dominant text-line angle with a projection profile
// search and rotates the page so lines become horizontal.
type Deskew struct {
	// MaxAngle bounds the search in degrees, both directions.
	MaxAngle float64
	// Step is the search resolution in degrees. Angles smaller than one
	// step are left uncorrected.
	Step float64
}

// NewDeskew returns a deskew filter searching ±5° in 0.25° steps.
func NewDeskew() Deskew {
	return Deskew{MaxAngle: defaultMaxSkew, Step: defaultSkewStep}
}

// Name implements Filter.
func (Deskew) Name() string { return "deskew" }

// Apply implements Filter.
func (d Deskew) Apply(img *image.Gray) (*image.Gray, error) {
	angle := EstimateSkew(img, d.MaxAngle, d.Step)
	if math.Abs(angle) < d.step() {
		return normalized(img), nil
	}
	return rotate(img, angle), nil
}

func (d Deskew) step() float64 {
	if d.Step <= 0 {
		return defaultSkewStep
	}
	return d.Step
}

// EstimateSkew returns the angle in degrees of text lines running down to
// the right (positive) or up to the right (negative). Pages without ink
// report zero.
func EstimateSkew(img *image.Gray, maxAngle, step float64) float64 {
	if maxAngle <= 0 {
		maxAngle = defaultMaxSkew
	}
	maxAngle = math.Min(maxAngle, 45)
	if step <= 0 {
		step = defaultSkewStep
	}

	a := analysisImage(img)
	t := OtsuThreshold(a)
	w, h := a.Rect.Dx(), a.Rect.Dy()
	var xs, ys []float64
	for y := 0; y < h; y++ {
		row := a.Pix[y*a.Stride:][:w]
		for x, v := range row {
			if v <= t {
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
			}
		}
	}
	if len(xs) == 0 || len(xs) == w*h {
		return 0
	}

	bins := make([]int, h+2*w+2)
	bestAngle, bestScore := 0.0, -1.0
	n := int(math.Round(2 * maxAngle / step))
	for i := 0; i <= n; i++ {
		deg := -maxAngle + float64(i)*step
		rad := deg * math.Pi / 180
		sin, cos := math.Sincos(rad)
		for j := range bins {
			bins[j] = 0
		}
		for k := range xs {
			yp := ys[k]*cos - xs[k]*sin
			bins[int(math.Round(yp))+w]++
		}
		score := 0.0
		for _, c := range bins {
			score += float64(c) * float64(c)
		}
		if score > bestScore || (score == bestScore && math.Abs(deg) < math.Abs(bestAngle)) {
			bestScore = score
			bestAngle = deg
		}
	}
	return bestAngle
}

// analysisImage returns a zero-origin copy at most analysisMaxWidth wide.
func analysisImage(img *image.Gray) *image.Gray {
	b := img.Bounds()
	if b.Dx() <= analysisMaxWidth {
		return normalized(img)
	}
	scale := float64(analysisMaxWidth) / float64(b.Dx())
	h := int(math.Max(1, math.Round(float64(b.Dy())*scale)))
	out := image.NewGray(image.Rect(0, 0, analysisMaxWidth, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// rotate turns img by -angle degrees around its centre on a white background.
func rotate(img *image.Gray, angle float64) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)

	src := normalized(img)
	rad := angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	m := f64.Aff3{
		cos, sin, cx - (cos*cx + sin*cy),
		-sin, cos, cy - (-sin*cx + cos*cy),
	}
	draw.BiLinear.Transform(out, m, src, src.Bounds(), draw.Over, nil)
	return out
}
