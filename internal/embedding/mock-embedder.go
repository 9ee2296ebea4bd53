package embedding

import (
	"context"
	"hash/fnv"
	"image"
	"math"
)

// MockEmbedder is a deterministic embedder for tests. It derives a
// fixed-dimension vector from sampled pixel values so that the same image
// always gets the same embedding and different images usually differ.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic unit-normalized embedding derived from a pixel sample hash.
func (e *MockEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	h := hashImage(img)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h)*float64(i+1))*0.1 + 0.01)
	}
	// Normalize to unit length for cosine similarity
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// hashImage hashes the image bounds and a coarse grid of pixel samples.
func hashImage(img image.Image) uint32 {
	h := fnv.New32a()
	b := img.Bounds()
	buf := []byte{
		byte(b.Dx()), byte(b.Dx() >> 8),
		byte(b.Dy()), byte(b.Dy() >> 8),
	}
	_, _ = h.Write(buf)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			px := b.Min.X + b.Dx()*x/8
			py := b.Min.Y + b.Dy()*y/8
			r, g, bl, _ := img.At(px, py).RGBA()
			_, _ = h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)})
		}
	}
	return h.Sum32()
}
