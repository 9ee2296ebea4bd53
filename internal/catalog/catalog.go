// Package catalog defines the persistence interface for the book catalog of record.
package catalog

import (
	"context"
	"errors"

	"github.com/hyperjump/mikke/internal/models"
)

// ErrNotFound is returned when the requested book does not exist.
var ErrNotFound = errors.New("book not found")

// Catalog defines book persistence operations. The catalog is authoritative
// for book metadata and cover paths; the vector index holds only the numeric
// projection and is rebuilt from here.
type Catalog interface {
	Add(ctx context.Context, book *models.Book) error
	Get(ctx context.Context, id string) (*models.Book, error)
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]*models.Book, error)
	List(ctx context.Context, offset, limit int) ([]*models.Book, error)
	Count(ctx context.Context) (int64, error)

	// Embeddings returns the stored cover embeddings keyed by book ID.
	// Books whose cover has not been embedded yet are absent from the map.
	Embeddings(ctx context.Context) (map[string][]float32, error)
	// UpdateEmbedding stores the cover embedding for a book so the next
	// reindex does not have to re-run the model for it.
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error

	// SearchText finds books whose title or author contains q.
	SearchText(ctx context.Context, q string, limit int) ([]*models.Book, error)

	Close() error
}
