package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/mikke/data/db/books.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/mikke/data/indices/bleve"
	}
	if cfg.Storage.CoversDir == "" {
		cfg.Storage.CoversDir = "/usr/local/var/mikke/data/covers"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/mikke/data/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.CacheTTLSeconds == 0 {
		cfg.Embedding.CacheTTLSeconds = 3600
	}
	if cfg.Recognition.Threshold == 0 {
		cfg.Recognition.Threshold = 0.65
	}
	if cfg.Recognition.TopK == 0 {
		cfg.Recognition.TopK = 5
	}
	if cfg.Recognition.MaxUploadBytes == 0 {
		cfg.Recognition.MaxUploadBytes = 20 << 20
	}
	if cfg.Recognition.MinWidth == 0 {
		cfg.Recognition.MinWidth = 100
	}
	if cfg.Recognition.MinHeight == 0 {
		cfg.Recognition.MinHeight = 100
	}
	if cfg.Recognition.MinBrightness == 0 {
		cfg.Recognition.MinBrightness = 20
	}
	if cfg.Recognition.MinSharpness == 0 {
		cfg.Recognition.MinSharpness = 50
	}
	if cfg.Index.ApproxThreshold == 0 {
		cfg.Index.ApproxThreshold = 100
	}
	if cfg.Index.HNSWM == 0 {
		cfg.Index.HNSWM = 32
	}
	if cfg.Index.EfConstruction == 0 {
		cfg.Index.EfConstruction = 40
	}
	if cfg.Index.EfSearch == 0 {
		cfg.Index.EfSearch = 16
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".bmp"}
	}
}
