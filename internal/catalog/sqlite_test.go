package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/mikke/internal/models"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	cat, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestSQLiteCatalog_addGetDelete(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	book := &models.Book{
		ID:        "9780134190440",
		Title:     "The Go Programming Language",
		Author:    "Donovan & Kernighan",
		ISBN:      "9780134190440",
		ImagePath: "/covers/gopl.jpg",
	}
	if err := cat.Add(ctx, book); err != nil {
		t.Fatal(err)
	}

	got, err := cat.Get(ctx, book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != book.Title || got.Author != book.Author {
		t.Errorf("got %+v", got)
	}

	if err := cat.Delete(ctx, book.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.Get(ctx, book.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteCatalog_deleteMissing(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteCatalog_listAndCount(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	for _, id := range []string{"b1", "b2", "b3"} {
		if err := cat.Add(ctx, &models.Book{ID: id, Title: "T " + id, Author: "A", ImagePath: "/c/" + id}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := cat.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	page, err := cat.List(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("page len = %d, want 2", len(page))
	}
	all, err := cat.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("All len = %d, want 3", len(all))
	}
}

func TestSQLiteCatalog_embeddingRoundTrip(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	if err := cat.Add(ctx, &models.Book{ID: "b1", Title: "T", Author: "A", ImagePath: "/c/b1"}); err != nil {
		t.Fatal(err)
	}

	embs, err := cat.Embeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 0 {
		t.Errorf("fresh book should have no embedding, got %v", embs)
	}

	vec := []float32{0.25, -0.5, 1.0}
	if err := cat.UpdateEmbedding(ctx, "b1", vec); err != nil {
		t.Fatal(err)
	}
	embs, err = cat.Embeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := embs["b1"]
	if !ok {
		t.Fatal("expected embedding for b1")
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}

	if err := cat.UpdateEmbedding(ctx, "missing", vec); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteCatalog_searchText(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	books := []*models.Book{
		{ID: "b1", Title: "Snow Country", Author: "Kawabata", ImagePath: "/c/1"},
		{ID: "b2", Title: "Kafka on the Shore", Author: "Murakami", ImagePath: "/c/2"},
		{ID: "b3", Title: "Norwegian Wood", Author: "Murakami", ImagePath: "/c/3"},
	}
	for _, b := range books {
		if err := cat.Add(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := cat.SearchText(ctx, "Murakami", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}
	hits, err = cat.SearchText(ctx, "Snow", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "b1" {
		t.Errorf("unexpected hits: %+v", hits)
	}
}
