package embedding

import (
	"bytes"
	"fmt"
	"image"

	// Decoders for the cover formats the service accepts.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	xdraw "golang.org/x/image/draw"
)

// InputSize is the square input resolution of the CLIP visual encoder.
const InputSize = 224

// CLIP normalization constants (per RGB channel), from the reference
// preprocessing pipeline of the ViT-B/32 model.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Decode decodes raw upload bytes into an image. JPEG, PNG, and BMP are
// supported; anything else is an input error.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess resizes img to InputSize x InputSize with bilinear filtering and
// returns the CHW float32 tensor data the CLIP visual encoder expects
// (channel-planar, mean/std normalized).
func Preprocess(img image.Image) []float32 {
	scaled := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	out := make([]float32, 3*InputSize*InputSize)
	plane := InputSize * InputSize
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			i := scaled.PixOffset(x, y)
			r := float32(scaled.Pix[i]) / 255
			g := float32(scaled.Pix[i+1]) / 255
			b := float32(scaled.Pix[i+2]) / 255
			p := y*InputSize + x
			out[p] = (r - clipMean[0]) / clipStd[0]
			out[plane+p] = (g - clipMean[1]) / clipStd[1]
			out[2*plane+p] = (b - clipMean[2]) / clipStd[2]
		}
	}
	return out
}
