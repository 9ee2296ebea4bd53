// Package config provides configuration loading and structs for the Mikke server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Index       IndexConfig       `yaml:"index"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database, keyword index, and cover images.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	CoversDir      string `yaml:"covers_dir"`
}

// EmbeddingConfig holds ONNX embedder and embedding cache settings.
type EmbeddingConfig struct {
	ModelPath       string `yaml:"model_path"`
	Dimensions      int    `yaml:"dimensions"`
	CacheSize       int    `yaml:"cache_size"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// RecognitionConfig holds the similarity threshold, result depth, and
// image quality gate settings.
type RecognitionConfig struct {
	Threshold      float64 `yaml:"threshold"`
	TopK           int     `yaml:"top_k"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
	MinWidth       int     `yaml:"min_width"`
	MinHeight      int     `yaml:"min_height"`
	MinBrightness  float64 `yaml:"min_brightness"`
	MinSharpness   float64 `yaml:"min_sharpness"`
}

// IndexConfig holds vector index build settings. Catalogs below
// ApproxThreshold entries are searched exhaustively; larger catalogs use the
// HNSW graph. Higher M / EfConstruction / EfSearch raise recall at the cost
// of memory, build time, and query time respectively.
type IndexConfig struct {
	ApproxThreshold int `yaml:"approx_threshold"`
	HNSWM           int `yaml:"hnsw_m"`
	EfConstruction  int `yaml:"hnsw_ef_construction"`
	EfSearch        int `yaml:"hnsw_ef_search"`
}

// WatchConfig holds drop-folder watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	ResultsDir  string   `yaml:"results_dir"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.CoversDir = expandPath(cfg.Storage.CoversDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	if cfg.Watch.ResultsDir != "" {
		cfg.Watch.ResultsDir = expandPath(cfg.Watch.ResultsDir, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
