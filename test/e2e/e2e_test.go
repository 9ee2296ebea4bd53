package e2e

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/hyperjump/mikke/internal/models"
	"github.com/hyperjump/mikke/internal/recognition"
	"github.com/hyperjump/mikke/internal/server"
	"github.com/hyperjump/mikke/internal/vector"
)

const (
	e2eDimensions = 16
	// Low enough that the fixture set crosses into the approximate strategy.
	e2eApproxThreshold = 10
	e2eBookCount       = 12
)

type stack struct {
	svc     *recognition.Service
	handler http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "books.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "keyword.bleve")
	cfg.Storage.CoversDir = filepath.Join(dir, "covers")
	cfg.Embedding.Dimensions = e2eDimensions
	cfg.Index.ApproxThreshold = e2eApproxThreshold
	// Fixture covers are smaller than real cover photos.
	cfg.Recognition.MinWidth = 0
	cfg.Recognition.MinHeight = 0
	cfg.Recognition.MinBrightness = 0
	cfg.Recognition.MinSharpness = 0

	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kw.Close() })

	embedder := embedding.NewMockEmbedder(e2eDimensions)
	cache := embedding.NewCache(cfg.Embedding.CacheSize,
		time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)
	coord := vector.NewCoordinator(vector.Options{
		Dimensions:      e2eDimensions,
		ApproxThreshold: cfg.Index.ApproxThreshold,
		HNSWM:           cfg.Index.HNSWM,
		EfConstruction:  cfg.Index.EfConstruction,
		EfSearch:        cfg.Index.EfSearch,
	})

	svc := recognition.NewService(cat, embedder, cache, coord, &cfg.Recognition, zap.NewNop())
	t.Cleanup(func() { svc.Close() })

	srv := server.NewServer(svc, cat, kw, cfg, zap.NewNop())
	return &stack{svc: svc, handler: srv.Routes()}
}

func (s *stack) do(t *testing.T, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *stack) addBook(t *testing.T, b *fixtureBook) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"title": b.Title, "author": b.Author, "isbn": b.ISBN} {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", "cover.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(b.Cover); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/books", mw.FormDataContentType(), &buf); w.Code != http.StatusCreated {
		t.Fatalf("add %s returned %d: %s", b.ISBN, w.Code, w.Body.String())
	}
}

func (s *stack) recognize(t *testing.T, cover []byte) *models.RecognitionResult {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/recognize", "image/png", bytes.NewBuffer(cover))
	if w.Code != http.StatusOK {
		t.Fatalf("recognize returned %d: %s", w.Code, w.Body.String())
	}
	var result models.RecognitionResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid recognize response: %v", err)
	}
	return &result
}

func TestE2E_RecognitionLifecycle(t *testing.T) {
	s := newStack(t)
	books, err := buildFixtures(e2eBookCount)
	if err != nil {
		t.Fatal(err)
	}

	for _, b := range books {
		s.addBook(t, b)
	}
	if err := s.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if got := s.svc.IndexSize(); got != e2eBookCount {
		t.Fatalf("index size = %d, want %d", got, e2eBookCount)
	}
	if got := s.svc.IndexStrategy(); got != vector.StrategyHNSW {
		t.Fatalf("strategy = %q, want %q above the approx threshold", got, vector.StrategyHNSW)
	}

	// Every stored cover recognizes as its own book.
	for _, b := range books {
		result := s.recognize(t, b.Cover)
		if result.Status != models.StatusMatch {
			t.Errorf("%s: status = %q, want match (top similarity %.4f)", b.ISBN, result.Status, result.TopSimilarity)
			continue
		}
		if result.Candidates[0].BookID != b.ISBN {
			t.Errorf("%s: top candidate = %s", b.ISBN, result.Candidates[0].BookID)
		}
		if result.Candidates[0].Similarity < 0.99 {
			t.Errorf("%s: self similarity = %.4f", b.ISBN, result.Candidates[0].Similarity)
		}
	}
}

func TestE2E_KeywordSearchAndDelete(t *testing.T) {
	s := newStack(t)
	books, err := buildFixtures(4)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range books {
		s.addBook(t, b)
	}
	if err := s.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}

	w := s.do(t, http.MethodGet, "/api/v1/search?q=%22Author+3%22", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", w.Code, w.Body.String())
	}
	var searchResp struct {
		Results []struct {
			BookID string `json:"book_id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &searchResp); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range searchResp.Results {
		if r.BookID == books[2].ISBN {
			found = true
		}
	}
	if !found {
		t.Errorf("search did not return %s: %s", books[2].ISBN, w.Body.String())
	}

	// Delete one book and make sure its cover no longer resolves to it.
	target := books[1]
	if w := s.do(t, http.MethodDelete, "/api/v1/books/"+target.ISBN, "", nil); w.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", w.Code, w.Body.String())
	}
	if err := s.svc.ReindexNow(context.Background()); err != nil {
		t.Fatalf("reindex after delete failed: %v", err)
	}
	result := s.recognize(t, target.Cover)
	for _, c := range result.Candidates {
		if c.BookID == target.ISBN {
			t.Errorf("deleted book still in candidates: %+v", c)
		}
	}

	w = s.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats returned %d", w.Code)
	}
	var stats struct {
		TotalBooks int `json:"total_books"`
		IndexSize  int `json:"index_size"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalBooks != 3 || stats.IndexSize != 3 {
		t.Errorf("stats after delete = %+v, want 3/3", stats)
	}
}
