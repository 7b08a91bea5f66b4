package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/config"
	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
)

// deps holds the shared runtime dependencies behind every command
// that touches the pipeline. Memory backends are substituted when no
// database URL is configured, which keeps a fresh checkout runnable.
type deps struct {
	pool   *pgxpool.Pool // nil for memory backends
	jobs   store.JobStore
	docs   store.DocumentStore
	ledger queue.Ledger
	queue  queue.Queue
	blobs  blob.Store
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	dsn := config.ResolveEnvVars(cfg.Database.URL)
	if dsn != "" {
		pool, err := store.Open(ctx, store.PostgresConfig{DSN: dsn}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		pg := store.NewPostgresStore(pool, logger)
		d.pool = pool
		d.jobs = pg
		d.docs = pg
		d.ledger = pg
	} else {
		logger.Warn("no database configured, using in-memory job store")
		mem := store.NewMemoryStore()
		d.jobs = mem
		d.docs = mem
		d.ledger = mem
	}

	switch cfg.Queue.Backend {
	case "postgres":
		if d.pool == nil {
			return nil, fmt.Errorf("postgres queue backend requires database.url")
		}
		d.queue = queue.NewPostgresQueue(d.pool, cfg.Queue.Visibility())
	default:
		d.queue = queue.NewMemoryQueue(cfg.Queue.Visibility())
	}

	switch cfg.Blob.Backend {
	case "minio":
		blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: config.ResolveEnvVars(cfg.Blob.AccessKey),
			SecretKey: config.ResolveEnvVars(cfg.Blob.SecretKey),
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.blobs = blobs
	default:
		logger.Warn("no object store configured, using in-memory blobs")
		d.blobs = blob.NewMemoryStore()
	}

	return d, nil
}

func (d *deps) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}
