package store

import (
	"context"
	"errors"
	"time"

	"github.com/landrecs/deedflow/internal/types"
)

// ErrNotFound is returned when a job or document does not exist.
var ErrNotFound = errors.New("not found")

// BookJob is the durable state of one book-processing job. Counters
// are monotonic; concurrent workers update them only through atomic
// increments, never read-modify-write.
type BookJob struct {
	BookID     string
	CountyID   string
	CountyName string
	Status     Status

	PagesTotal     *int // nil until page discovery
	PagesProcessed int

	DocumentsTotal       *int // nil until the whole page stream is consumed
	DocumentsCreated     int
	DocumentsQueuedForAI int
	DocumentsAIProcessed int
	DocumentsDBUpdated   int

	Error     string
	UpdatedAt time.Time
}

// BatchJob tracks an extraction batch of individually uploaded
// documents. Same monotonic-counter rules as BookJob.
type BatchJob struct {
	BatchID              string
	DocumentsTotal       int
	DocumentsAIProcessed int
	DocumentsDBUpdated   int
	UpdatedAt            time.Time
}

// StatusView is the job-status read model polled by external callers.
// Fields are present only once known; absence is not zero.
type StatusView struct {
	Status               Status  `json:"status"`
	PagesTotal           *int    `json:"pagesTotal,omitempty"`
	PagesProcessed       *int    `json:"pagesProcessed,omitempty"`
	DocumentsTotal       *int    `json:"documentsTotal,omitempty"`
	DocumentsCreated     *int    `json:"documentsCreated,omitempty"`
	DocumentsQueuedForAI *int    `json:"documentsQueuedForAi,omitempty"`
	DocumentsAIProcessed *int    `json:"documentsAiProcessed,omitempty"`
	DocumentsDBUpdated   *int    `json:"documentsDbUpdated,omitempty"`
	Error                *string `json:"error,omitempty"`
}

// JobStore is the durable job state machine. Status changes validate
// the pending -> processing -> {completed|failed} path and counter
// updates are atomic on the stored row.
type JobStore interface {
	CreateBookJob(ctx context.Context, bookID, countyID, countyName string) error
	GetBookJob(ctx context.Context, bookID string) (*BookJob, error)
	BookJobStatus(ctx context.Context, bookID string) (*StatusView, error)

	// SetBookStatus performs a compare-and-set transition; errMsg is
	// recorded (truncated) on failure transitions.
	SetBookStatus(ctx context.Context, bookID string, to Status, errMsg string) error

	SetPagesTotal(ctx context.Context, bookID string, n int) error
	AddPagesProcessed(ctx context.Context, bookID string, n int) error
	SetDocumentsTotal(ctx context.Context, bookID string, n int) error
	AddDocumentsCreated(ctx context.Context, bookID string, n int) error
	AddDocumentsQueuedForAI(ctx context.Context, bookID string, n int) error
	AddDocumentsAIProcessed(ctx context.Context, bookID string, n int) error
	AddDocumentsDBUpdated(ctx context.Context, bookID string, n int) error

	CreateBatchJob(ctx context.Context, batchID string, documentsTotal int) error
	GetBatchJob(ctx context.Context, batchID string) (*BatchJob, error)
	AddBatchAIProcessed(ctx context.Context, batchID string, n int) error
	AddBatchDBUpdated(ctx context.Context, batchID string, n int) error
}

// DocumentStore persists document records and their parties.
type DocumentStore interface {
	// CreateDocument inserts an empty record (exportFlag=1) for the
	// county and returns its primary key plus derived PRSERV.
	CreateDocument(ctx context.Context, countyID string) (int64, string, error)

	// UpsertExtractedFacts applies a merged fact set to the record,
	// sets exportFlag=2 and inserts one party row per grantor and
	// grantee name. Safe to apply more than once: party inserts are
	// no-ops on the (document, role, name) triple and the flag never
	// regresses.
	UpsertExtractedFacts(ctx context.Context, documentID int64, facts types.DocumentFacts) error
}

// DedupLedger is the append-only set of processed message
// fingerprints, keyed by queue name.
type DedupLedger interface {
	Seen(ctx context.Context, queue, messageHash string) (bool, error)
	Record(ctx context.Context, queue, messageHash string) error
}

// maxErrorLen bounds the error text recorded on a failed job.
const maxErrorLen = 500

func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
