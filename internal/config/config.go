// Package config provides configuration for the chunk store tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/chunkstore/internal/logger"
	"github.com/arkilian/chunkstore/internal/query"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration of a chunk store instance.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Logging configuration
	Logging logger.Config `json:"logging" yaml:"logging"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Archive configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// PartSizeMB is the multipart upload part size in megabytes
	PartSizeMB int `json:"part_size_mb" yaml:"part_size_mb"`

	// MaxRetries bounds retries of a failed request
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ArchiveConfig holds chunk archive configuration.
type ArchiveConfig struct {
	// Prefix is the object key prefix chunks are stored under
	Prefix string `json:"prefix" yaml:"prefix"`

	// Concurrency is the number of parallel object transfers
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// CacheDir caches downloaded chunks on local disk; empty disables caching
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// QueryConfig holds query configuration.
type QueryConfig struct {
	// SparseFill is the default sparse fill strategy: none, latest_at_local
	SparseFill string `json:"sparse_fill" yaml:"sparse_fill"`

	// BatchSize is the number of rows per output batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// StatsWindow is how long column access statistics are retained
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/chunkstore",
		Logging: logger.NewConfig(),
		Storage: StorageConfig{
			Type: StorageLocal,
			S3: S3Config{
				Region:     "us-east-1",
				PartSizeMB: 5,
				MaxRetries: 3,
			},
		},
		Archive: ArchiveConfig{
			Prefix:      "chunks",
			Concurrency: 8,
		},
		Query: QueryConfig{
			SparseFill:  "none",
			BatchSize:   1024,
			StatsWindow: time.Hour,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/chunkstore"
	}

	if c.Storage.Type == StorageLocal && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	c.Archive.Prefix = strings.Trim(c.Archive.Prefix, "/")
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// SparseFillStrategy returns the parsed default sparse fill strategy.
func (c *Config) SparseFillStrategy() (query.SparseFillStrategy, error) {
	return query.ParseSparseFillStrategy(c.Query.SparseFill)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}

	if c.Storage.Type != StorageLocal && c.Storage.Type != StorageS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == StorageS3 {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when storage type is s3")
		}
		if c.Storage.S3.PartSizeMB < 5 {
			return fmt.Errorf("s3.part_size_mb must be at least 5, got %d", c.Storage.S3.PartSizeMB)
		}
		if c.Storage.S3.MaxRetries < 0 {
			return fmt.Errorf("s3.max_retries must not be negative, got %d", c.Storage.S3.MaxRetries)
		}
	}

	if c.Archive.Concurrency < 1 {
		return fmt.Errorf("archive.concurrency must be positive, got %d", c.Archive.Concurrency)
	}

	if _, err := c.SparseFillStrategy(); err != nil {
		return fmt.Errorf("query.sparse_fill: %w", err)
	}

	if c.Query.BatchSize < 1 {
		return fmt.Errorf("query.batch_size must be positive, got %d", c.Query.BatchSize)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides to cfg.
// Environment variables use the CHUNKSTORE_ prefix.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("CHUNKSTORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Logging configuration
	if v := os.Getenv("CHUNKSTORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CHUNKSTORE_LOG_LEVEL"); v != "" {
		level, err := zapcore.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("CHUNKSTORE_LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	// Storage configuration
	if v := os.Getenv("CHUNKSTORE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CHUNKSTORE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CHUNKSTORE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("CHUNKSTORE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("CHUNKSTORE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("CHUNKSTORE_S3_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("CHUNKSTORE_S3_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNKSTORE_S3_MAX_RETRIES: %w", err)
		}
		cfg.Storage.S3.MaxRetries = n
	}

	// Archive configuration
	if v := os.Getenv("CHUNKSTORE_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("CHUNKSTORE_ARCHIVE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNKSTORE_ARCHIVE_CONCURRENCY: %w", err)
		}
		cfg.Archive.Concurrency = n
	}
	if v := os.Getenv("CHUNKSTORE_ARCHIVE_CACHE_DIR"); v != "" {
		cfg.Archive.CacheDir = v
	}

	// Query configuration
	if v := os.Getenv("CHUNKSTORE_QUERY_SPARSE_FILL"); v != "" {
		cfg.Query.SparseFill = v
	}
	if v := os.Getenv("CHUNKSTORE_QUERY_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHUNKSTORE_QUERY_BATCH_SIZE: %w", err)
		}
		cfg.Query.BatchSize = n
	}

	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Archive.CacheDir,
	}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
