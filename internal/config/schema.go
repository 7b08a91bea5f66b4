package config

import (
	"fmt"
	"time"
)

// Config holds deedflow configuration.
type Config struct {
	Database  DatabaseCfg  `mapstructure:"database" yaml:"database"`
	Blob      BlobCfg      `mapstructure:"blob" yaml:"blob"`
	Queue     QueueCfg     `mapstructure:"queue" yaml:"queue"`
	Inference InferenceCfg `mapstructure:"inference" yaml:"inference"`
	Workers   WorkersCfg   `mapstructure:"workers" yaml:"workers"`
}

// DatabaseCfg configures the Postgres connection shared by the job
// store, document store, dedup ledger and the postgres queue backend.
type DatabaseCfg struct {
	URL string `mapstructure:"url" yaml:"url"` // Connection string (supports ${ENV_VAR} syntax)
}

// BlobCfg configures page-image and artifact storage.
type BlobCfg struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "minio" or "memory"
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"` // Supports ${ENV_VAR} syntax
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"` // Supports ${ENV_VAR} syntax
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// QueueCfg configures message transport between the pipeline stages.
type QueueCfg struct {
	Backend            string `mapstructure:"backend" yaml:"backend"` // "postgres" or "memory"
	VisibilitySeconds  int    `mapstructure:"visibility_seconds" yaml:"visibility_seconds"`
	ReceiveWaitSeconds int    `mapstructure:"receive_wait_seconds" yaml:"receive_wait_seconds"`
}

// Visibility returns the redelivery timeout as a duration.
func (q QueueCfg) Visibility() time.Duration {
	return time.Duration(q.VisibilitySeconds) * time.Second
}

// ReceiveWait returns the long-poll window as a duration.
func (q QueueCfg) ReceiveWait() time.Duration {
	return time.Duration(q.ReceiveWaitSeconds) * time.Second
}

// InferenceCfg configures the vision model used for stamp detection
// and fact extraction.
type InferenceCfg struct {
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Model          string  `mapstructure:"model" yaml:"model"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout as a duration.
func (i InferenceCfg) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// WorkersCfg sets per-stage consumer counts and batch sizes.
type WorkersCfg struct {
	BookProcessors      int `mapstructure:"book_processors" yaml:"book_processors"`
	Extractors          int `mapstructure:"extractors" yaml:"extractors"`
	Persisters          int `mapstructure:"persisters" yaml:"persisters"`
	DetectionBatchSize  int `mapstructure:"detection_batch_size" yaml:"detection_batch_size"`
	ExtractionBatchSize int `mapstructure:"extraction_batch_size" yaml:"extraction_batch_size"`
}

// Validate checks the configuration for values that would make the
// workers misbehave at runtime.
func (c *Config) Validate() error {
	switch c.Blob.Backend {
	case "minio":
		if c.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required for the minio backend")
		}
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the minio backend")
		}
	case "memory":
	default:
		return fmt.Errorf("blob.backend must be \"minio\" or \"memory\", got %q", c.Blob.Backend)
	}

	switch c.Queue.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("queue.backend must be \"postgres\" or \"memory\", got %q", c.Queue.Backend)
	}
	if c.Queue.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres queue backend")
	}

	if c.Queue.VisibilitySeconds <= 0 {
		return fmt.Errorf("queue.visibility_seconds must be positive, got %d", c.Queue.VisibilitySeconds)
	}
	if c.Inference.RateLimit <= 0 {
		return fmt.Errorf("inference.rate_limit must be positive, got %v", c.Inference.RateLimit)
	}
	if c.Workers.BookProcessors <= 0 || c.Workers.Extractors <= 0 || c.Workers.Persisters <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.Workers.ExtractionBatchSize <= 0 {
		return fmt.Errorf("workers.extraction_batch_size must be positive, got %d", c.Workers.ExtractionBatchSize)
	}
	return nil
}
