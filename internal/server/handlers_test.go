package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mikke/internal/catalog"
	"github.com/hyperjump/mikke/internal/config"
	"github.com/hyperjump/mikke/internal/embedding"
	"github.com/hyperjump/mikke/internal/keyword"
	"github.com/hyperjump/mikke/internal/recognition"
	"github.com/hyperjump/mikke/internal/vector"
)

const testDims = 8

func testConfig(dir string) *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "books.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "keyword.bleve")
	cfg.Storage.CoversDir = filepath.Join(dir, "covers")
	cfg.Embedding.Dimensions = testDims
	// Quality gates off so small synthetic covers pass.
	cfg.Recognition.MinWidth = 0
	cfg.Recognition.MinHeight = 0
	cfg.Recognition.MinBrightness = 0
	cfg.Recognition.MinSharpness = 0
	return cfg
}

type testEnv struct {
	srv     *Server
	svc     *recognition.Service
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t.TempDir())

	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatalf("failed to open keyword index: %v", err)
	}
	t.Cleanup(func() { kw.Close() })

	embedder := embedding.NewMockEmbedder(testDims)
	cache := embedding.NewCache(cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)
	coord := vector.NewCoordinator(vector.Options{
		Dimensions:      testDims,
		ApproxThreshold: cfg.Index.ApproxThreshold,
	})

	svc := recognition.NewService(cat, embedder, cache, coord, &cfg.Recognition, zap.NewNop())
	t.Cleanup(func() { svc.Close() })

	srv := NewServer(svc, cat, kw, cfg, zap.NewNop())
	return &testEnv{srv: srv, svc: svc, handler: srv.Routes()}
}

func coverPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func bookForm(t *testing.T, fields map[string]string, cover []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	fw, err := mw.CreateFormFile("file", "cover.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(cover); err != nil {
		t.Fatalf("failed to write cover: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addBook(t *testing.T, title, author string, cover []byte) string {
	t.Helper()
	body, ct := bookForm(t, map[string]string{"title": title, "author": author}, cover)
	w := e.do(t, http.MethodPost, "/api/v1/books", ct, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("add book returned %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	id, ok := resp["book_id"].(string)
	if !ok || id == "" {
		t.Fatalf("missing book_id in response: %v", resp)
	}
	return id
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", resp["status"])
	}
}

func TestAddAndRecognize(t *testing.T) {
	env := newTestEnv(t)

	cover := coverPNG(t, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	other := coverPNG(t, color.RGBA{R: 10, G: 180, B: 220, A: 255})
	id := env.addBook(t, "The Go Programming Language", "Donovan", cover)
	env.addBook(t, "Unrelated Title", "Someone Else", other)

	if err := env.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/v1/recognize", "image/png", bytes.NewBuffer(cover))
	if w.Code != http.StatusOK {
		t.Fatalf("recognize returned %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "match" {
		t.Fatalf("expected match, got %v: %s", resp["status"], w.Body.String())
	}
	candidates, ok := resp["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		t.Fatalf("expected candidates, got %v", resp["candidates"])
	}
	top := candidates[0].(map[string]interface{})
	if top["book_id"] != id {
		t.Errorf("expected top candidate %s, got %v", id, top["book_id"])
	}
}

func TestRecognizeMultipartUpload(t *testing.T) {
	env := newTestEnv(t)

	cover := coverPNG(t, color.RGBA{R: 90, G: 90, B: 200, A: 255})
	env.addBook(t, "Multipart Book", "Author", cover)
	if err := env.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}

	body, ct := bookForm(t, nil, cover)
	w := env.do(t, http.MethodPost, "/api/v1/recognize", ct, body)
	if w.Code != http.StatusOK {
		t.Fatalf("recognize returned %d: %s", w.Code, w.Body.String())
	}
}

func TestRecognizeInvalidImage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/recognize", "image/png", bytes.NewBufferString("not an image"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRecognizeEmptyBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/recognize", "image/png", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAddBookValidation(t *testing.T) {
	env := newTestEnv(t)

	cover := coverPNG(t, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	body, ct := bookForm(t, map[string]string{"title": "No Author"}, cover)
	w := env.do(t, http.MethodPost, "/api/v1/books", ct, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing author, got %d", w.Code)
	}
}

func TestAddDuplicateISBN(t *testing.T) {
	env := newTestEnv(t)

	cover := coverPNG(t, color.RGBA{R: 50, G: 50, B: 50, A: 255})
	body, ct := bookForm(t, map[string]string{"title": "First", "author": "A", "isbn": "9781234567890"}, cover)
	if w := env.do(t, http.MethodPost, "/api/v1/books", ct, body); w.Code != http.StatusCreated {
		t.Fatalf("first add returned %d", w.Code)
	}
	body, ct = bookForm(t, map[string]string{"title": "Second", "author": "B", "isbn": "9781234567890"}, cover)
	if w := env.do(t, http.MethodPost, "/api/v1/books", ct, body); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate isbn, got %d", w.Code)
	}
}

func TestGetAndDeleteBook(t *testing.T) {
	env := newTestEnv(t)

	cover := coverPNG(t, color.RGBA{R: 120, G: 30, B: 90, A: 255})
	id := env.addBook(t, "Delete Me", "Author", cover)

	w := env.do(t, http.MethodGet, "/api/v1/books/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get returned %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/books/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/books/"+id, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/books/"+id, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", w.Code)
	}
}

func TestListBooks(t *testing.T) {
	env := newTestEnv(t)

	env.addBook(t, "Book One", "Author One", coverPNG(t, color.RGBA{R: 10, A: 255}))
	env.addBook(t, "Book Two", "Author Two", coverPNG(t, color.RGBA{G: 10, A: 255}))

	w := env.do(t, http.MethodGet, "/api/v1/books?limit=1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list returned %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["total"].(float64) != 2 {
		t.Errorf("expected total 2, got %v", resp["total"])
	}
	if books := resp["books"].([]interface{}); len(books) != 1 {
		t.Errorf("expected 1 book with limit=1, got %d", len(books))
	}
}

func TestSearchBooks(t *testing.T) {
	env := newTestEnv(t)

	env.addBook(t, "Effective Concurrency", "Rob Pike", coverPNG(t, color.RGBA{R: 77, A: 255}))
	env.addBook(t, "Database Internals", "Alex Petrov", coverPNG(t, color.RGBA{B: 77, A: 255}))

	w := env.do(t, http.MethodGet, "/api/v1/search?q=concurrency", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	results := resp["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	hit := results[0].(map[string]interface{})
	if hit["title"] != "Effective Concurrency" {
		t.Errorf("unexpected hit: %v", hit)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/search", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", w.Code)
	}
}

func TestReindexEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/reindex", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/reindex/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status returned %d", w.Code)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if _, ok := status["running"]; !ok {
		t.Errorf("status missing running field: %v", status)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.addBook(t, "Stat Book", "Author", coverPNG(t, color.RGBA{R: 5, G: 5, B: 5, A: 255}))
	if err := env.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats returned %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["total_books"].(float64) != 1 {
		t.Errorf("expected total_books 1, got %v", resp["total_books"])
	}
	if resp["index_size"].(float64) != 1 {
		t.Errorf("expected index_size 1, got %v", resp["index_size"])
	}
	if resp["search_algorithm"] != "flat" {
		t.Errorf("expected flat strategy, got %v", resp["search_algorithm"])
	}
}
