package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// fixtureBook pairs catalog metadata with a synthetic cover image.
type fixtureBook struct {
	Title  string
	Author string
	ISBN   string
	Cover  []byte
}

// coverImage renders a deterministic synthetic cover. seed drives the palette
// so every book gets a visually distinct image and the mock embedder produces
// a distinct embedding for it.
func coverImage(seed int) ([]byte, error) {
	const w, h = 96, 128
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	base := color.RGBA{
		R: uint8(37 * seed % 256),
		G: uint8(91 * seed % 256),
		B: uint8(173 * seed % 256),
		A: 255,
	}
	stripe := color.RGBA{
		R: 255 - base.R,
		G: 255 - base.G,
		B: 255 - base.B,
		A: 255,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := base
			if (x/8+y/8+seed)%3 == 0 {
				c = stripe
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildFixtures creates n books with distinct synthetic covers.
func buildFixtures(n int) ([]*fixtureBook, error) {
	books := make([]*fixtureBook, 0, n)
	for i := 0; i < n; i++ {
		cover, err := coverImage(i + 1)
		if err != nil {
			return nil, err
		}
		books = append(books, &fixtureBook{
			Title:  fmt.Sprintf("Fixture Book %d", i+1),
			Author: fmt.Sprintf("Author %d", i+1),
			ISBN:   fmt.Sprintf("978000000%04d", i+1),
			Cover:  cover,
		})
	}
	return books, nil
}
