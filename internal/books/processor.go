package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

// PageKeyPrefix returns the blob prefix holding a book's page images.
func PageKeyPrefix(bookID string) string {
	return fmt.Sprintf("books/%s/pages/", bookID)
}

var pageNumRe = regexp.MustCompile(`(\d+)\.[A-Za-z]+$`)

// Processor consumes book-processing messages and drives the full
// split: boundary detection per page batch, incremental slice
// planning, and artifact assembly per closed document.
type Processor struct {
	jobs      store.JobStore
	blobs     blob.Store
	detector  *Detector
	assembler *Assembler
	batchSize int
	logger    *slog.Logger
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Jobs      store.JobStore
	Blobs     blob.Store
	Detector  *Detector
	Assembler *Assembler
	BatchSize int // detection batch size, default 1
	Logger    *slog.Logger
}

// NewProcessor creates a book processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultDetectorBatchSize
	}
	return &Processor{
		jobs:      cfg.Jobs,
		blobs:     cfg.Blobs,
		detector:  cfg.Detector,
		assembler: cfg.Assembler,
		batchSize: batchSize,
		logger:    logger.With("component", "book-processor"),
	}
}

// HandleMessage processes one book-processing delivery. Returning an
// error leaves the message for redelivery; a redelivered book whose
// job already left pending is absorbed, since mid-book planner state
// is not checkpointed and a restart must come from an operator
// resubmission.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.Message) error {
	var req queue.BookRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		p.logger.Warn("discarding malformed book request", "error", err)
		return nil
	}
	if req.BookID == "" {
		p.logger.Warn("discarding book request without bookId")
		return nil
	}
	log := p.logger.With("book_id", req.BookID, "county", req.CountyName)

	if _, err := p.jobs.GetBookJob(ctx, req.BookID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := p.jobs.CreateBookJob(ctx, req.BookID, req.CountyID, req.CountyName); err != nil {
			return err
		}
	}

	if err := p.jobs.SetBookStatus(ctx, req.BookID, store.StatusProcessing, ""); err != nil {
		if errors.Is(err, store.ErrIllegalTransition) {
			log.Info("book already claimed or finished, absorbing delivery")
			return nil
		}
		return err
	}

	pages, err := p.listPages(ctx, req.BookID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		log.Warn("book has no pages")
		return p.jobs.SetBookStatus(ctx, req.BookID, store.StatusFailed,
			fmt.Sprintf("no page images found under %s", PageKeyPrefix(req.BookID)))
	}
	if err := p.jobs.SetPagesTotal(ctx, req.BookID, len(pages)); err != nil {
		return err
	}
	log.Info("book processing started", "pages", len(pages))

	// Detection may batch, but the planner is strictly sequential:
	// results are fed page by page, in book order.
	planner := NewPlanner()
	for start := 0; start < len(pages); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pages) {
			end = len(pages)
		}
		result, err := p.detector.DetectBatch(ctx, req.BookID, pages[start:end])
		if err != nil {
			return err
		}
		if result.Skipped {
			log.Warn("detection batch skipped", "reason", result.Reason, "first_page", pages[start].Number)
			for _, page := range pages[start:end] {
				if err := p.planAndAssemble(ctx, req, planner, page, nil); err != nil {
					return err
				}
			}
			continue
		}
		for _, pd := range result.Pages {
			if err := p.planAndAssemble(ctx, req, planner, pd.Page, pd.Stamps); err != nil {
				return err
			}
		}
	}

	if discarded := planner.Finish(); discarded {
		log.Info("trailing undelimited content discarded")
	}

	if planner.StampsSeen() == 0 {
		// A book without a single stamp means detection fundamentally
		// failed, not that the book was empty.
		log.Warn("no filing stamps detected, failing job")
		return p.jobs.SetBookStatus(ctx, req.BookID, store.StatusFailed,
			fmt.Sprintf("no filing stamps detected across %d pages", len(pages)))
	}

	if err := p.jobs.SetDocumentsTotal(ctx, req.BookID, planner.DocumentsEmitted()); err != nil {
		return err
	}
	if err := p.jobs.SetBookStatus(ctx, req.BookID, store.StatusCompleted, ""); err != nil {
		return err
	}

	log.Info("book processing completed",
		"pages", len(pages),
		"documents", planner.DocumentsEmitted(),
	)
	return nil
}

func (p *Processor) planAndAssemble(ctx context.Context, req queue.BookRequest, planner *Planner, page types.PageRef, stamps []types.StampDetection) error {
	for _, doc := range planner.ObservePage(page, stamps) {
		if _, err := p.assembler.Assemble(ctx, req, doc); err != nil {
			return err
		}
	}
	return nil
}

// listPages resolves and orders a book's page images from the blob
// store. Page numbers come from the numeric suffix of each key.
func (p *Processor) listPages(ctx context.Context, bookID string) ([]types.PageRef, error) {
	keys, err := p.blobs.List(ctx, PageKeyPrefix(bookID))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages for book %s: %w", bookID, err)
	}

	pages := make([]types.PageRef, 0, len(keys))
	for _, key := range keys {
		num, ok := parsePageNumber(key)
		if !ok {
			p.logger.Warn("ignoring page key without numeric suffix", "key", key)
			continue
		}
		pages = append(pages, types.PageRef{Key: key, Number: num})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func parsePageNumber(key string) (int, bool) {
	m := pageNumRe.FindStringSubmatch(path.Base(key))
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
