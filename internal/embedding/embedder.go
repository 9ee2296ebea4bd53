// Package embedding provides image embedding via ONNX and the recognition cache.
package embedding

import (
	"context"
	"image"
)

// Embedder produces vector embeddings for cover images. Implementations must
// be deterministic for a given model version, return vectors of the fixed
// configured dimension, and surface model failures as errors rather than
// zero vectors.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}
