package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
)

// Worker consumes merged fact sets and applies them with an
// idempotent upsert: fact columns keyed by document id, export flag
// promoted to 2, one party row per grantor/grantee name. Reapplying
// the same message never double-inserts parties or regresses the
// flag, so the dedup ledger plus these writes give effective-once
// semantics under at-least-once delivery.
type Worker struct {
	docs   store.DocumentStore
	jobs   store.JobStore
	logger *slog.Logger
}

// NewWorker creates a persistence worker.
func NewWorker(docs store.DocumentStore, jobs store.JobStore, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		docs:   docs,
		jobs:   jobs,
		logger: logger.With("component", "persist-worker"),
	}
}

// HandleMessage applies one persistence delivery. Errors leave the
// message for redelivery.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	var req queue.PersistenceRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		w.logger.Warn("discarding malformed persistence request", "error", err)
		return nil
	}
	log := w.logger.With("document_id", req.DocumentID, "prserv", req.PRSERV)

	if err := w.docs.UpsertExtractedFacts(ctx, req.DocumentID, req.Facts); err != nil {
		return fmt.Errorf("failed to persist document %d: %w", req.DocumentID, err)
	}

	switch {
	case req.BookID != "":
		if err := w.jobs.AddDocumentsDBUpdated(ctx, req.BookID, 1); err != nil {
			return err
		}
	case req.BatchID != "":
		if err := w.jobs.AddBatchDBUpdated(ctx, req.BatchID, 1); err != nil {
			return err
		}
	}

	log.Info("document persisted",
		"grantors", len(req.Facts.Grantor),
		"grantees", len(req.Facts.Grantee),
	)
	return nil
}
