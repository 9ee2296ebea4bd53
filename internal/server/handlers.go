package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mikke/internal/catalog"
	"github.com/hyperjump/mikke/internal/models"
	"github.com/hyperjump/mikke/internal/recognition"
)

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.svc.Recognize(r.Context(), data)
	if err != nil {
		switch {
		case errors.Is(err, recognition.ErrInvalidImage):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, recognition.ErrProviderUnavailable):
			s.logger.Error("recognition provider failure", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("recognition failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// readUpload accepts either a multipart form with a "file" field or a raw
// image body, capped at the configured upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxBytes := s.config.Recognition.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, errors.New("invalid multipart form")
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("missing file field")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.Recognition.MaxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	title := r.FormValue("title")
	author := r.FormValue("author")
	if title == "" || author == "" {
		s.respondError(w, http.StatusBadRequest, "title and author are required")
		return
	}
	isbn := r.FormValue("isbn")

	f, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing cover image file")
		return
	}
	defer f.Close()

	bookID := isbn
	if bookID == "" {
		bookID = "BOOK_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	if _, err := s.catalog.Get(r.Context(), bookID); err == nil {
		s.respondError(w, http.StatusConflict, "book "+bookID+" already exists")
		return
	}

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	if err := os.MkdirAll(s.config.Storage.CoversDir, 0755); err != nil {
		s.logger.Error("failed to create covers dir", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store cover")
		return
	}
	imagePath := filepath.Join(s.config.Storage.CoversDir, bookID+ext)
	out, err := os.Create(imagePath)
	if err != nil {
		s.logger.Error("failed to create cover file", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store cover")
		return
	}
	if _, err := io.Copy(out, f); err != nil {
		_ = out.Close()
		_ = os.Remove(imagePath)
		s.respondError(w, http.StatusInternalServerError, "failed to store cover")
		return
	}
	_ = out.Close()

	book := &models.Book{
		ID:        bookID,
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Publisher: r.FormValue("publisher"),
		ImagePath: imagePath,
	}
	if err := s.catalog.Add(r.Context(), book); err != nil {
		_ = os.Remove(imagePath)
		s.logger.Error("failed to add book", zap.String("book_id", bookID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.keyword.Index(r.Context(), book); err != nil {
		s.logger.Warn("keyword indexing failed", zap.String("book_id", bookID), zap.Error(err))
	}

	s.svc.RequestReindex()
	total, _ := s.catalog.Count(r.Context())
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"book_id":     bookID,
		"status":      "added",
		"total_books": total,
		"note":        "index rebuild queued in the background",
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "book not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if book.ImagePath != "" {
		if err := os.Remove(book.ImagePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove cover file", zap.String("path", book.ImagePath), zap.Error(err))
		}
	}
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.String("book_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.keyword.Delete(r.Context(), id); err != nil {
		s.logger.Warn("keyword delete failed", zap.String("book_id", id), zap.Error(err))
	}

	s.svc.RequestReindex()
	total, _ := s.catalog.Count(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "deleted",
		"book_id":     id,
		"total_books": total,
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	books, err := s.catalog.List(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.catalog.Count(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if books == nil {
		books = []*models.Book{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"books":  books,
	})
}

// bookHit is a search result with its keyword relevance score.
type bookHit struct {
	*models.Book
	Score float64 `json:"score"`
}

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := queryInt(r, "limit", 10)

	hits, err := s.keyword.Search(r.Context(), q, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]*bookHit, 0, len(hits))
	for _, hit := range hits {
		book, err := s.catalog.Get(r.Context(), hit.ID)
		if err != nil {
			continue
		}
		results = append(results, &bookHit{Book: book, Score: hit.Score})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	s.svc.RequestReindex()
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "reindex queued",
	})
}

func (s *Server) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, err := s.catalog.Count(r.Context())
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"books_indexed":     total,
		"index_size":        s.svc.IndexSize(),
		"search_algorithm":  s.svc.IndexStrategy(),
		"similarity_metric": "cosine",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.catalog.Count(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	keywordDocs, _ := s.keyword.DocCount()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_books":          total,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"index_size":           s.svc.IndexSize(),
		"search_algorithm":     s.svc.IndexStrategy(),
		"confidence_threshold": s.svc.Threshold(),
		"cache_size":           s.svc.CacheLen(),
		"cache_capacity":       s.config.Embedding.CacheSize,
		"keyword_docs":         keywordDocs,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
