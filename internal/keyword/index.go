// Package keyword provides keyword search over book metadata (title, author).
package keyword

import (
	"context"

	"github.com/hyperjump/mikke/internal/models"
)

// Index defines metadata search operations.
type Index interface {
	Index(ctx context.Context, book *models.Book) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of books in the index.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}
