// Package catalog provides the SQLite implementation of the Catalog interface.
package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mikke/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		book_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT,
		publisher TEXT,
		image_path TEXT NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);
	CREATE INDEX IF NOT EXISTS idx_books_author ON books(author);
	`
	_, err := db.Exec(schema)
	return err
}

// Add inserts a book. The embedding starts empty and is filled on reindex.
func (s *SQLiteCatalog) Add(ctx context.Context, book *models.Book) error {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (book_id, title, author, isbn, publisher, image_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Publisher, book.ImagePath,
		book.CreatedAt, book.UpdatedAt,
	)
	return err
}

// Get returns a book by ID.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT book_id, title, author, COALESCE(isbn, ''), COALESCE(publisher, ''),
		        image_path, created_at, updated_at
		 FROM books WHERE book_id = ?`, id)
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return book, err
}

// Delete removes a book by ID.
func (s *SQLiteCatalog) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// All returns every book in the catalog.
func (s *SQLiteCatalog) All(ctx context.Context) ([]*models.Book, error) {
	return s.query(ctx,
		`SELECT book_id, title, author, COALESCE(isbn, ''), COALESCE(publisher, ''),
		        image_path, created_at, updated_at
		 FROM books ORDER BY created_at`)
}

// List returns books with pagination, newest first.
func (s *SQLiteCatalog) List(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	return s.query(ctx,
		`SELECT book_id, title, author, COALESCE(isbn, ''), COALESCE(publisher, ''),
		        image_path, created_at, updated_at
		 FROM books ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

// Count returns the number of books.
func (s *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n)
	return n, err
}

// Embeddings returns stored cover embeddings keyed by book ID.
func (s *SQLiteCatalog) Embeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, embedding FROM books WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		if len(blob) == 0 || len(blob)%4 != 0 {
			continue
		}
		out[id] = bytesToFloat32Slice(blob)
	}
	return out, rows.Err()
}

// UpdateEmbedding stores the cover embedding for a book.
func (s *SQLiteCatalog) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET embedding = ?, updated_at = ? WHERE book_id = ?`,
		float32SliceToBytes(embedding), time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchText finds books whose title or author contains q (case-insensitive).
func (s *SQLiteCatalog) SearchText(ctx context.Context, q string, limit int) ([]*models.Book, error) {
	pattern := "%" + q + "%"
	return s.query(ctx,
		`SELECT book_id, title, author, COALESCE(isbn, ''), COALESCE(publisher, ''),
		        image_path, created_at, updated_at
		 FROM books WHERE title LIKE ? OR author LIKE ?
		 ORDER BY title LIMIT ?`, pattern, pattern, limit)
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

func (s *SQLiteCatalog) query(ctx context.Context, stmt string, args ...interface{}) ([]*models.Book, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row scanner) (*models.Book, error) {
	var book models.Book
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &book.Publisher,
		&book.ImagePath, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Embedding BLOB format: float32 components, little-endian, no header.

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
