// Package main is the Mikke CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/mikke/internal/catalog"
	"github.com/hyperjump/mikke/internal/cli"
	"github.com/hyperjump/mikke/internal/config"
	"github.com/hyperjump/mikke/internal/embedding"
	"github.com/hyperjump/mikke/internal/keyword"
	"github.com/hyperjump/mikke/internal/models"
	"github.com/hyperjump/mikke/internal/recognition"
	"github.com/hyperjump/mikke/internal/server"
	"github.com/hyperjump/mikke/internal/vector"
	"github.com/hyperjump/mikke/internal/watcher"
	"github.com/hyperjump/mikke/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mikke/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "mikke server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "recognize":
		runRecognize()
	case "add":
		runAdd()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("mikke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	svcCtx, svcCancel := context.WithCancel(context.Background())
	defer svcCancel()
	components.Service.Start(svcCtx)

	// Build the vector index from the catalog before serving traffic so the
	// first request does not see an empty index.
	if n, countErr := components.Catalog.Count(svcCtx); countErr == nil && n > 0 {
		if err := components.Service.ReindexNow(svcCtx); err != nil {
			logger.Warn("initial index build failed", zap.Error(err))
		} else {
			logger.Info("vector index built",
				zap.Int("size", components.Service.IndexSize()),
				zap.String("strategy", components.Service.IndexStrategy()))
		}
	}

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watcher.Option{}
		if cfg.Watch.ResultsDir != "" {
			watchOpts = append(watchOpts, watcher.WithResultsDir(cfg.Watch.ResultsDir))
		}
		watchSvc = watcher.NewWatcher(cfg.Watch.Directories, cfg.Watch.Extensions,
			components.Service, logger, watchOpts...)
		if err := watchSvc.Start(svcCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(
		components.Service,
		components.Catalog,
		components.Keyword,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	svcCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runRecognize() {
	fs := flag.NewFlagSet("recognize", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mikke recognize [flags] <image> [image...]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	exitCode := 0
	for _, path := range fs.Args() {
		result, err := recognizeViaHTTP(*serverURL, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		if err := cli.WriteRecognitionResult(os.Stdout, path, result, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func recognizeViaHTTP(serverURL, path string) (*models.RecognitionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(serverURL+"/api/v1/recognize", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.RecognitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	title := fs.String("title", "", "book title (required)")
	author := fs.String("author", "", "book author (required)")
	isbn := fs.String("isbn", "", "ISBN (used as book id when set)")
	publisher := fs.String("publisher", "", "publisher")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *title == "" || *author == "" {
		fmt.Println("Usage: mikke add --title <title> --author <author> [flags] <cover-image>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open cover: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":     *title,
		"author":    *author,
		"isbn":      *isbn,
		"publisher": *publisher,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			fmt.Fprintf(os.Stderr, "Request build failed: %v\n", err)
			os.Exit(1)
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request build failed: %v\n", err)
		os.Exit(1)
	}
	if _, err := io.Copy(fw, f); err != nil {
		fmt.Fprintf(os.Stderr, "Request build failed: %v\n", err)
		os.Exit(1)
	}
	_ = mw.Close()

	resp, err := http.Post(*serverURL+"/api/v1/books", mw.FormDataContentType(), &buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		fmt.Fprintf(os.Stderr, "Add failed (%d): %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}
	var out struct {
		BookID     string `json:"book_id"`
		TotalBooks int    `json:"total_books"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added %s (%d book(s) total); index rebuild queued\n", out.BookID, out.TotalBooks)
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	wait := fs.Bool("wait", false, "poll until the rebuild finishes")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(*serverURL+"/api/v1/reindex", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		fmt.Fprintf(os.Stderr, "Reindex failed (%d)\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("Reindex queued")

	if !*wait {
		return
	}
	for {
		time.Sleep(500 * time.Millisecond)
		status, err := reindexStatusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		if !status.Running && !status.Pending {
			if status.LastError != "" {
				fmt.Fprintf(os.Stderr, "Reindex finished with error: %s\n", status.LastError)
				os.Exit(1)
			}
			fmt.Printf("Reindex done: %d indexed, %d failed\n", status.Indexed, status.Failed)
			return
		}
	}
}

func reindexStatusViaHTTP(serverURL string) (*models.ReindexStatus, error) {
	resp, err := http.Get(serverURL + "/api/v1/reindex/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var status models.ReindexStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var stats struct {
		TotalBooks          int     `json:"total_books"`
		EmbeddingDimensions int     `json:"embedding_dimensions"`
		IndexSize           int     `json:"index_size"`
		SearchAlgorithm     string  `json:"search_algorithm"`
		ConfidenceThreshold float64 `json:"confidence_threshold"`
		CacheSize           int     `json:"cache_size"`
		CacheCapacity       int     `json:"cache_capacity"`
		KeywordDocs         uint64  `json:"keyword_docs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
	case "text":
		fmt.Printf("total_books:           %d\n", stats.TotalBooks)
		fmt.Printf("index_size:            %d\n", stats.IndexSize)
		fmt.Printf("search_algorithm:      %s\n", stats.SearchAlgorithm)
		fmt.Printf("embedding_dims:        %d\n", stats.EmbeddingDimensions)
		fmt.Printf("confidence_threshold:  %.2f\n", stats.ConfidenceThreshold)
		fmt.Printf("cache:                 %d/%d\n", stats.CacheSize, stats.CacheCapacity)
		fmt.Printf("keyword_docs:          %d\n", stats.KeywordDocs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Catalog  catalog.Catalog
	Keyword  keyword.Index
	Embedder embedding.Embedder
	Cache    *embedding.Cache
	Coord    *vector.Coordinator
	Service  *recognition.Service
}

func (c *Components) Close() {
	if c.Service != nil {
		_ = c.Service.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embeddings",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	cache := embedding.NewCache(cfg.Embedding.CacheSize,
		time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)

	coord := vector.NewCoordinator(vector.Options{
		Dimensions:      cfg.Embedding.Dimensions,
		ApproxThreshold: cfg.Index.ApproxThreshold,
		HNSWM:           cfg.Index.HNSWM,
		EfConstruction:  cfg.Index.EfConstruction,
		EfSearch:        cfg.Index.EfSearch,
	})

	svc := recognition.NewService(cat, embedder, cache, coord, &cfg.Recognition, logger)

	return &Components{
		Catalog:  cat,
		Keyword:  kw,
		Embedder: embedder,
		Cache:    cache,
		Coord:    coord,
		Service:  svc,
	}, nil
}

func printUsage() {
	fmt.Println(`mikke - Book cover recognition server

Usage:
  mikke server [flags]                Start the HTTP server
  mikke recognize [flags] <image>...  Recognize cover photos via a running server
  mikke add [flags] <cover-image>     Register a book with its cover
  mikke reindex [flags]               Queue a vector index rebuild
  mikke status [flags]                Show catalog/index statistics
  mikke version                       Show version
  mikke help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mikke/config.yaml)
  --debug            Enable debug logging

Recognize Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Add Flags:
  --server string      Server URL (default: http://localhost:8080)
  --title string       Book title (required)
  --author string      Book author (required)
  --isbn string        ISBN, used as the book id when set
  --publisher string   Publisher

Reindex Flags:
  --server string    Server URL (default: http://localhost:8080)
  --wait             Poll until the rebuild finishes

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  mikke server
  mikke add --title "Snow Country" --author "Yasunari Kawabata" covers/snow_country.jpg
  mikke recognize photo.jpg
  mikke recognize --output json shelf/*.jpg
  mikke reindex --wait
  mikke status`)
}
