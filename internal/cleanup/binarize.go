package cleanup

import "image"

// uniformThreshold is used when the histogram has a single level.
const uniformThreshold = 127

// Binarize maps every pixel to black or white around Otsu's threshold.
type Binarize struct{}

// Name implements Filter.
func (Binarize) Name() string { return "binarize" }

// Apply implements Filter. Pixels at or below the threshold become black.
func (Binarize) Apply(img *image.Gray) (*image.Gray, error) {
	t := OtsuThreshold(img)
	out := normalized(img)
	for i, v := range out.Pix {
		if v <= t {
			out.Pix[i] = 0
		} else {
			out.Pix[i] = 255
		}
	}
	return out, nil
}

// OtsuThreshold returns the first level maximising between-class variance.
func OtsuThreshold(img *image.Gray) uint8 {
	h := histogram(img)
	total := 0
	sumAll := 0.0
	for i, n := range h {
		total += n
		sumAll += float64(i * n)
	}

	var (
		wB, sumB float64
		best     float64
		found    bool
		t        int
	)
	for i := 0; i < 256; i++ {
		wB += float64(h[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * h[i])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = i
			found = true
		}
	}
	if !found {
		return uniformThreshold
	}
	return uint8(t)
}
