// Package watcher watches drop folders for new cover photos and runs each one
// through recognition as it appears, optionally writing a result file per image.
package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/mikke/internal/models"
)

// Files are often still being written when the create event fires; wait for
// writes to settle before reading.
const defaultSettle = 500 * time.Millisecond

const recognizeTimeout = 30 * time.Second

// Recognizer identifies the book on a cover photo.
type Recognizer interface {
	Recognize(ctx context.Context, raw []byte) (*models.RecognitionResult, error)
}

// Watcher watches drop directories for new cover images.
type Watcher struct {
	roots      []string
	extensions []string
	recognizer Recognizer
	resultsDir string
	settle     time.Duration
	logger     *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timers   map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithResultsDir sets a directory where a JSON result file is written for each
// processed image. Empty disables result files.
func WithResultsDir(dir string) Option {
	return func(w *Watcher) { w.resultsDir = dir }
}

// WithSettle overrides how long the watcher waits for writes to settle before
// processing a file.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// NewWatcher creates a watcher over the given drop directories. extensions
// filters which files are processed (empty = all).
func NewWatcher(roots, extensions []string, rec Recognizer, logger *zap.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recognizer: rec,
		settle:     defaultSettle,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Drop directories that do not exist yet are created.
// It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, root := range w.roots {
		root = filepath.Clean(root)
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		if err := watcher.Add(root); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	if w.resultsDir != "" {
		if err := os.MkdirAll(w.resultsDir, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop folders",
		zap.Strings("directories", w.roots),
		zap.Strings("extensions", w.extensions))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		if matchExtension(path, w.extensions) {
			w.scheduleProcess(ctx, path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelPending(path)
	}
}

// scheduleProcess arms (or re-arms) the settle timer for path, so a file being
// written in several chunks is processed once.
func (w *Watcher) scheduleProcess(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.processImage(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) processImage(ctx context.Context, path string) {
	w.logger.Info("new image detected", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read dropped image", zap.String("path", path), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, recognizeTimeout)
	defer cancel()
	result, err := w.recognizer.Recognize(ctx, data)
	if err != nil {
		w.logger.Warn("recognition failed", zap.String("path", path), zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("path", path),
		zap.String("status", result.Status),
		zap.Float64("top_similarity", result.TopSimilarity),
	}
	if len(result.Candidates) > 0 {
		fields = append(fields,
			zap.String("book_id", result.Candidates[0].BookID),
			zap.String("title", result.Candidates[0].Title))
	}
	w.logger.Info("image processed", fields...)

	if w.resultsDir != "" {
		if err := w.writeResult(path, result); err != nil {
			w.logger.Warn("failed to write result file", zap.String("path", path), zap.Error(err))
		}
	}
}

// writeResult saves the recognition outcome next to the results directory as
// <stem>_result.json.
func (w *Watcher) writeResult(imagePath string, result *models.RecognitionResult) error {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(w.resultsDir, stem+"_result.json")

	data, err := json.MarshalIndent(map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"image":     imagePath,
		"result":    result,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Directories returns the watched drop directories.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
