package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/inference"
	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

// DefaultBatchSize is how many artifact pages go into one structured
// extraction call.
const DefaultBatchSize = 10

// Worker consumes artifact-ready messages, runs structured extraction
// over the artifact's pages in bounded batches, merges the partial
// results and forwards the merged fact set to the persistence queue.
type Worker struct {
	blobs     blob.Store
	svc       inference.Service
	jobs      store.JobStore
	q         queue.Queue
	batchSize int
	logger    *slog.Logger
}

// WorkerConfig wires an extraction worker.
type WorkerConfig struct {
	Blobs     blob.Store
	Inference inference.Service
	Jobs      store.JobStore
	Queue     queue.Queue
	BatchSize int // default 10
	Logger    *slog.Logger
}

// NewWorker creates an extraction worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Worker{
		blobs:     cfg.Blobs,
		svc:       cfg.Inference,
		jobs:      cfg.Jobs,
		q:         cfg.Queue,
		batchSize: batchSize,
		logger:    logger.With("component", "extract-worker"),
	}
}

// HandleMessage processes one extraction delivery. Batch-level
// failures are logged and omitted from the merge; only infrastructure
// failures (queue, counters) surface as errors for redelivery.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	var req queue.ExtractionRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		w.logger.Warn("discarding malformed extraction request", "error", err)
		return nil
	}
	log := w.logger.With("document_id", req.DocumentID, "prserv", req.PRSERV)

	pageKeys, err := w.blobs.List(ctx, req.ArtifactKey+"/pages/")
	if err != nil {
		return fmt.Errorf("failed to list artifact pages: %w", err)
	}
	if len(pageKeys) == 0 {
		log.Warn("artifact has no pages, discarding", "artifact_key", req.ArtifactKey)
		return nil
	}

	var parts []types.DocumentFacts
	for start := 0; start < len(pageKeys); start += w.batchSize {
		end := start + w.batchSize
		if end > len(pageKeys) {
			end = len(pageKeys)
		}
		facts, ok := w.extractBatch(ctx, log, pageKeys[start:end])
		if ok {
			parts = append(parts, facts)
		}
	}

	merged := Merge(parts)
	log.Info("extraction merged",
		"pages", len(pageKeys),
		"batches_ok", len(parts),
		"grantors", len(merged.Grantor),
		"grantees", len(merged.Grantee),
	)

	body, err := json.Marshal(queue.PersistenceRequest{
		DocumentID: req.DocumentID,
		PRSERV:     req.PRSERV,
		CountyID:   req.CountyID,
		CountyName: req.CountyName,
		BookID:     req.BookID,
		BatchID:    req.BatchID,
		Facts:      merged,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal persistence request: %w", err)
	}
	if err := w.q.Send(ctx, queue.Persistence, body); err != nil {
		return fmt.Errorf("failed to enqueue persistence: %w", err)
	}

	switch {
	case req.BookID != "":
		if err := w.jobs.AddDocumentsAIProcessed(ctx, req.BookID, 1); err != nil {
			return err
		}
	case req.BatchID != "":
		if err := w.jobs.AddBatchAIProcessed(ctx, req.BatchID, 1); err != nil {
			return err
		}
	}
	return nil
}

// extractBatch runs one structured call over a page batch. Any
// failure degrades to "batch omitted": the document still gets
// best-effort coverage from the remaining batches.
func (w *Worker) extractBatch(ctx context.Context, log *slog.Logger, pageKeys []string) (types.DocumentFacts, bool) {
	images := make([][]byte, 0, len(pageKeys))
	for _, key := range pageKeys {
		data, err := w.blobs.Get(ctx, key)
		if err != nil {
			log.Warn("batch omitted: page fetch failed", "page_key", key, "error", err)
			return types.DocumentFacts{}, false
		}
		images = append(images, data)
	}

	payload, err := w.svc.Infer(ctx, inference.Request{
		Instructions: factsInstructions,
		Prompt: fmt.Sprintf("Extract the recording facts from these %d page(s) of one instrument.",
			len(pageKeys)),
		Images:     images,
		SchemaName: factsSchemaName,
		Schema:     json.RawMessage(factsSchema),
	})
	if err != nil {
		log.Warn("batch omitted: inference failed", "error", err)
		return types.DocumentFacts{}, false
	}

	// JSON nulls leave the zero values untouched, which is exactly
	// the "unknown" representation Merge expects.
	var facts types.DocumentFacts
	if err := json.Unmarshal(payload, &facts); err != nil {
		log.Warn("batch omitted: response decode failed", "error", err)
		return types.DocumentFacts{}, false
	}
	return facts, true
}
