package recognition

import (
	"fmt"
	"image"
)

// QualityChecker assesses whether an image is worth spending embedding cost on.
type QualityChecker interface {
	Assess(img image.Image) (acceptable bool, reason string)
}

// GateChecker rejects images below minimum resolution, brightness, or
// sharpness. Zero-value fields disable the corresponding check.
type GateChecker struct {
	MinWidth      int
	MinHeight     int
	MinBrightness float64
	MinSharpness  float64
}

// Assess runs the gates in cost order: resolution first, then brightness and
// sharpness over a grayscale projection.
func (g *GateChecker) Assess(img image.Image) (bool, string) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if (g.MinWidth > 0 && w < g.MinWidth) || (g.MinHeight > 0 && h < g.MinHeight) {
		return false, fmt.Sprintf("image resolution too low: %dx%d (minimum %dx%d)",
			w, h, g.MinWidth, g.MinHeight)
	}
	if g.MinBrightness <= 0 && g.MinSharpness <= 0 {
		return true, "image quality acceptable"
	}

	gray := grayscale(img)
	if g.MinBrightness > 0 {
		if mean := meanBrightness(gray, w, h); mean < g.MinBrightness {
			return false, fmt.Sprintf("image too dark (brightness: %.1f)", mean)
		}
	}
	if g.MinSharpness > 0 {
		if v := laplacianVariance(gray, w, h); v < g.MinSharpness {
			return false, fmt.Sprintf("image too blurry (sharpness: %.1f)", v)
		}
	}
	return true, "image quality acceptable"
}

// grayscale projects img to a row-major luminance plane.
func grayscale(img image.Image) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma, scaled to 0..255.
			out[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
		}
	}
	return out
}

func meanBrightness(gray []float64, w, h int) float64 {
	if w*h == 0 {
		return 0
	}
	var sum float64
	for _, v := range gray {
		sum += v
	}
	return sum / float64(w*h)
}

// laplacianVariance measures sharpness as the variance of the 4-neighbor
// Laplacian response. Blurry images have uniformly small responses.
func laplacianVariance(gray []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	n := (w - 2) * (h - 2)
	responses := make([]float64, 0, n)
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := gray[(y-1)*w+x] + gray[(y+1)*w+x] + gray[y*w+x-1] + gray[y*w+x+1] - 4*gray[y*w+x]
			responses = append(responses, v)
			sum += v
		}
	}
	mean := sum / float64(n)
	var variance float64
	for _, v := range responses {
		d := v - mean
		variance += d * d
	}
	return variance / float64(n)
}
