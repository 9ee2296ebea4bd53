package recognition

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mikke/internal/catalog"
	"github.com/hyperjump/mikke/internal/config"
	"github.com/hyperjump/mikke/internal/embedding"
	"github.com/hyperjump/mikke/internal/models"
	"github.com/hyperjump/mikke/internal/vector"
)

// Service runs the recognition pipeline and owns the background reindex
// worker. Recognize is read-only with respect to shared state and safe from
// any number of goroutines; Reindex requests are serialized through the
// worker with at most one request queued behind the in-flight one.
type Service struct {
	catalog   catalog.Catalog
	embedder  embedding.Embedder
	cache     *embedding.Cache
	coord     *vector.Coordinator
	scorer    *Scorer
	quality   QualityChecker
	logger    *zap.Logger
	topK      int
	maxUpload int64

	loadCover func(path string) (image.Image, error)

	reindexCh chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	statusMu sync.Mutex
	status   models.ReindexStatus
}

// Option configures a Service.
type Option func(*Service)

// WithQualityChecker replaces the default gate checker.
func WithQualityChecker(q QualityChecker) Option {
	return func(s *Service) { s.quality = q }
}

// WithCoverLoader replaces how cover images are loaded from the configured
// image paths during reindex.
func WithCoverLoader(load func(path string) (image.Image, error)) Option {
	return func(s *Service) { s.loadCover = load }
}

// NewService creates the recognition service. cache may be nil to disable
// embedding caching (every request recomputes).
func NewService(
	cat catalog.Catalog,
	embedder embedding.Embedder,
	cache *embedding.Cache,
	coord *vector.Coordinator,
	cfg *config.RecognitionConfig,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:  cat,
		embedder: embedder,
		cache:    cache,
		coord:    coord,
		scorer:   NewScorer(cfg.Threshold),
		quality: &GateChecker{
			MinWidth:      cfg.MinWidth,
			MinHeight:     cfg.MinHeight,
			MinBrightness: cfg.MinBrightness,
			MinSharpness:  cfg.MinSharpness,
		},
		logger:    logger,
		topK:      cfg.TopK,
		maxUpload: cfg.MaxUploadBytes,
		loadCover: loadCoverFile,
		reindexCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the reindex worker. It runs until ctx is cancelled or Close
// is called.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.reindexCh:
				s.runReindex(ctx)
			}
		}
	}()
}

// Close stops the reindex worker.
func (s *Service) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

// Recognize identifies the book on an uploaded cover photo. Quality failures
// produce a "rejected" result, an empty index a "no_match" result; only
// invalid input and provider failures return errors.
func (s *Service) Recognize(ctx context.Context, raw []byte) (*models.RecognitionResult, error) {
	if s.maxUpload > 0 && int64(len(raw)) > s.maxUpload {
		return nil, fmt.Errorf("%w: file too large (%d bytes, max %d)", ErrInvalidImage, len(raw), s.maxUpload)
	}
	img, err := embedding.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if ok, reason := s.quality.Assess(img); !ok {
		return &models.RecognitionResult{
			Status:     models.StatusRejected,
			Candidates: []*models.Candidate{},
			Threshold:  s.scorer.Threshold(),
			Suggestion: reason + "; please provide a clearer, well-lit image",
		}, nil
	}

	fingerprint := Fingerprint(raw)
	emb, cached := s.cache.Get(fingerprint)
	if !cached {
		emb, err = s.embedder.Embed(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("%w: embed: %v", ErrProviderUnavailable, err)
		}
		s.cache.Put(fingerprint, emb)
	} else {
		s.logger.Debug("using cached embedding", zap.String("fingerprint", fingerprint[:12]))
	}

	query := make([]float32, len(emb))
	copy(query, emb)
	if !vector.Normalize(query) {
		return nil, fmt.Errorf("%w: zero-norm embedding", ErrInvalidImage)
	}

	snap := s.coord.Snapshot()
	hits := snap.Search(query, s.topK)

	result := &models.RecognitionResult{
		Status:     models.StatusNoMatch,
		Candidates: make([]*models.Candidate, 0, len(hits)),
		Threshold:  s.scorer.Threshold(),
	}
	for i, hit := range hits {
		tier, quality := s.scorer.Score(hit.Score)
		cand := &models.Candidate{
			BookID:         hit.ID,
			Similarity:     hit.Score,
			ConfidenceTier: tier,
			MatchQuality:   quality,
			Rank:           i + 1,
		}
		// Metadata enrichment is best-effort: an entry deleted between
		// rebuilds still returns its ID and score.
		if book, err := s.catalog.Get(ctx, hit.ID); err == nil {
			cand.Title = book.Title
			cand.Author = book.Author
			cand.ImagePath = book.ImagePath
		}
		result.Candidates = append(result.Candidates, cand)
	}
	if len(hits) > 0 {
		result.TopSimilarity = hits[0].Score
	}
	if s.scorer.IsMatch(result.TopSimilarity) {
		result.Status = models.StatusMatch
	} else {
		result.Suggestion = "book may not be in the catalog or image quality is insufficient"
	}
	return result, nil
}

// RequestReindex queues a background reindex and returns immediately. A
// request while one is already queued coalesces into it.
func (s *Service) RequestReindex() {
	select {
	case s.reindexCh <- struct{}{}:
	default:
	}
}

// ReindexNow rebuilds the index synchronously. Used at startup and by tests;
// the HTTP path goes through RequestReindex.
func (s *Service) ReindexNow(ctx context.Context) error {
	return s.runReindex(ctx)
}

// IndexSize returns the number of entries in the live snapshot.
func (s *Service) IndexSize() int {
	return s.coord.Snapshot().Size()
}

// IndexStrategy returns the live snapshot's build strategy.
func (s *Service) IndexStrategy() string {
	return s.coord.Snapshot().Strategy()
}

// CacheLen returns the number of live embedding cache entries.
func (s *Service) CacheLen() int {
	return s.cache.Len()
}

// Threshold returns the accept threshold in use.
func (s *Service) Threshold() float64 {
	return s.scorer.Threshold()
}

// Status reports the state of the reindex worker.
func (s *Service) Status() models.ReindexStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status
	st.Pending = len(s.reindexCh) > 0
	return st
}

// runReindex pulls the full catalog, embeds covers that have no stored
// embedding, and publishes a new snapshot. Per-item embedding failures are
// logged and skipped so one broken cover cannot keep the index stale.
func (s *Service) runReindex(ctx context.Context) error {
	start := time.Now()
	s.statusMu.Lock()
	s.status.Running = true
	s.status.LastStarted = start.UTC().Format(time.RFC3339)
	s.statusMu.Unlock()

	indexed, failed, err := s.rebuild(ctx)

	s.statusMu.Lock()
	s.status.Running = false
	s.status.LastDone = time.Now().UTC().Format(time.RFC3339)
	s.status.Indexed = indexed
	s.status.Failed = failed
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	s.statusMu.Unlock()

	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	s.logger.Info("reindex complete",
		zap.Int("indexed", indexed),
		zap.Int("failed", failed),
		zap.String("strategy", s.coord.Snapshot().Strategy()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *Service) rebuild(ctx context.Context) (indexed, failed int, err error) {
	books, err := s.catalog.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: catalog: %v", ErrProviderUnavailable, err)
	}
	stored, err := s.catalog.Embeddings(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: catalog: %v", ErrProviderUnavailable, err)
	}

	dims := s.embedder.Dimensions()
	entries := make([]vector.Entry, 0, len(books))
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		vec, ok := stored[book.ID]
		if !ok || !usableVector(vec, dims) {
			vec, err = s.embedCover(ctx, book.ID, book.ImagePath)
			if err != nil {
				s.logger.Warn("skipping book: cover embedding failed",
					zap.String("book_id", book.ID),
					zap.String("image_path", book.ImagePath),
					zap.Error(err),
				)
				failed++
				continue
			}
		}
		entries = append(entries, vector.Entry{ID: book.ID, Vector: vec})
	}

	if err := s.coord.Rebuild(entries); err != nil {
		return len(entries), failed, err
	}
	return len(entries), failed, nil
}

// usableVector reports whether vec can be published to the index: right
// dimensionality and nonzero norm. A stored blob that fails this is
// re-embedded instead of failing the whole rebuild.
func usableVector(vec []float32, dims int) bool {
	return len(vec) == dims && vector.L2Norm(vec) > 0
}

func (s *Service) embedCover(ctx context.Context, id, path string) ([]float32, error) {
	img, err := s.loadCover(path)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, img)
	if err != nil {
		return nil, err
	}
	if !usableVector(vec, s.embedder.Dimensions()) {
		return nil, fmt.Errorf("embedder returned unusable vector for %q (len %d, need %d nonzero)",
			id, len(vec), s.embedder.Dimensions())
	}
	// Persist so the next reindex skips the model for this cover. Failure
	// here only costs a future re-embed.
	if err := s.catalog.UpdateEmbedding(ctx, id, vec); err != nil {
		s.logger.Warn("failed to store cover embedding", zap.String("book_id", id), zap.Error(err))
	}
	return vec, nil
}

func loadCoverFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return embedding.Decode(data)
}
