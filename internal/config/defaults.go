package config

// DefaultConfig returns configuration with sensible defaults. The
// memory backends keep a fresh checkout runnable without external
// services; production deployments point database.url and the minio
// section at real infrastructure.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseCfg{
			URL: "${DEEDFLOW_DATABASE_URL}",
		},
		Blob: BlobCfg{
			Backend:   "memory",
			Endpoint:  "localhost:9000",
			AccessKey: "${MINIO_ACCESS_KEY}",
			SecretKey: "${MINIO_SECRET_KEY}",
			Bucket:    "deedflow",
			UseSSL:    false,
		},
		Queue: QueueCfg{
			Backend:            "memory",
			VisibilitySeconds:  300,
			ReceiveWaitSeconds: 5,
		},
		Inference: InferenceCfg{
			APIKey:         "${OPENAI_API_KEY}",
			Model:          "gpt-4o",
			RateLimit:      2.0,
			MaxRetries:     3,
			TimeoutSeconds: 120,
		},
		Workers: WorkersCfg{
			BookProcessors:      1,
			Extractors:          4,
			Persisters:          2,
			DetectionBatchSize:  1,
			ExtractionBatchSize: 10,
		},
	}
}
