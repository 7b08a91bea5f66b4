package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/landrecs/deedflow/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// PostgresConfig holds connection settings for the relational store.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// Open creates a pgx pool and verifies connectivity.
func Open(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "deedflow"

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database")
	return pool, nil
}

// EnsureSchema applies the embedded DDL. All statements are
// idempotent (IF NOT EXISTS) so this is safe on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PostgresStore implements JobStore, DocumentStore and DedupLedger on
// a shared pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "store")}
}

// CreateBookJob inserts a pending job row. Creating the same book
// twice is rejected so a resubmitted book gets a fresh book ID.
func (s *PostgresStore) CreateBookJob(ctx context.Context, bookID, countyID, countyName string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO book_processing_jobs (book_id, county_id, county_name, status)
		 VALUES ($1, $2, $3, $4)`,
		bookID, countyID, countyName, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to create book job %s: %w", bookID, err)
	}
	return nil
}

// GetBookJob loads one job row.
func (s *PostgresStore) GetBookJob(ctx context.Context, bookID string) (*BookJob, error) {
	var j BookJob
	err := s.pool.QueryRow(ctx,
		`SELECT book_id, county_id, county_name, status,
		        pages_total, pages_processed,
		        documents_total, documents_created, documents_queued_for_ai,
		        documents_ai_processed, documents_db_updated,
		        COALESCE(error, ''), updated_at
		 FROM book_processing_jobs WHERE book_id = $1`,
		bookID,
	).Scan(
		&j.BookID, &j.CountyID, &j.CountyName, &j.Status,
		&j.PagesTotal, &j.PagesProcessed,
		&j.DocumentsTotal, &j.DocumentsCreated, &j.DocumentsQueuedForAI,
		&j.DocumentsAIProcessed, &j.DocumentsDBUpdated,
		&j.Error, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: book job %s", ErrNotFound, bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book job %s: %w", bookID, err)
	}
	return &j, nil
}

// BookJobStatus builds the read model for external pollers.
func (s *PostgresStore) BookJobStatus(ctx context.Context, bookID string) (*StatusView, error) {
	j, err := s.GetBookJob(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return j.View(), nil
}

// View converts a job row to the read model. Counters appear only
// once the job has started processing; absence is not zero.
func (j *BookJob) View() *StatusView {
	v := &StatusView{Status: j.Status}
	if j.Error != "" {
		e := j.Error
		v.Error = &e
	}
	if j.Status == StatusPending {
		return v
	}
	v.PagesTotal = j.PagesTotal
	v.PagesProcessed = intPtr(j.PagesProcessed)
	v.DocumentsTotal = j.DocumentsTotal
	v.DocumentsCreated = intPtr(j.DocumentsCreated)
	v.DocumentsQueuedForAI = intPtr(j.DocumentsQueuedForAI)
	v.DocumentsAIProcessed = intPtr(j.DocumentsAIProcessed)
	v.DocumentsDBUpdated = intPtr(j.DocumentsDBUpdated)
	return v
}

func intPtr(n int) *int { return &n }

// SetBookStatus performs the compare-and-set transition. The row is
// only updated when it still holds the unique legal source status, so
// concurrent workers cannot move a job backward.
func (s *PostgresStore) SetBookStatus(ctx context.Context, bookID string, to Status, errMsg string) error {
	from, err := transitionSource(to)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE book_processing_jobs
		 SET status = $2, error = NULLIF($3, ''), updated_at = now()
		 WHERE book_id = $1 AND status = $4`,
		bookID, to, truncateError(errMsg), from,
	)
	if err != nil {
		return fmt.Errorf("failed to set status of %s: %w", bookID, err)
	}
	if tag.RowsAffected() == 0 {
		j, err := s.GetBookJob(ctx, bookID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.Status, to)
	}
	return nil
}

func (s *PostgresStore) SetPagesTotal(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET pages_total = $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) AddPagesProcessed(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET pages_processed = pages_processed + $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) SetDocumentsTotal(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET documents_total = $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) AddDocumentsCreated(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET documents_created = documents_created + $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) AddDocumentsQueuedForAI(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET documents_queued_for_ai = documents_queued_for_ai + $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) AddDocumentsAIProcessed(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET documents_ai_processed = documents_ai_processed + $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) AddDocumentsDBUpdated(ctx context.Context, bookID string, n int) error {
	return s.updateBook(ctx, bookID,
		`UPDATE book_processing_jobs SET documents_db_updated = documents_db_updated + $2, updated_at = now() WHERE book_id = $1`, n)
}

func (s *PostgresStore) updateBook(ctx context.Context, bookID, query string, n int) error {
	tag, err := s.pool.Exec(ctx, query, bookID, n)
	if err != nil {
		return fmt.Errorf("failed to update book job %s: %w", bookID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: book job %s", ErrNotFound, bookID)
	}
	return nil
}

// CreateBatchJob inserts a batch job row.
func (s *PostgresStore) CreateBatchJob(ctx context.Context, batchID string, documentsTotal int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_batch_jobs (batch_id, documents_total) VALUES ($1, $2)`,
		batchID, documentsTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch job %s: %w", batchID, err)
	}
	return nil
}

// GetBatchJob loads one batch job row.
func (s *PostgresStore) GetBatchJob(ctx context.Context, batchID string) (*BatchJob, error) {
	var j BatchJob
	err := s.pool.QueryRow(ctx,
		`SELECT batch_id, documents_total, documents_ai_processed, documents_db_updated, updated_at
		 FROM extraction_batch_jobs WHERE batch_id = $1`,
		batchID,
	).Scan(&j.BatchID, &j.DocumentsTotal, &j.DocumentsAIProcessed, &j.DocumentsDBUpdated, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch job %s", ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch job %s: %w", batchID, err)
	}
	return &j, nil
}

func (s *PostgresStore) AddBatchAIProcessed(ctx context.Context, batchID string, n int) error {
	return s.updateBatch(ctx, batchID,
		`UPDATE extraction_batch_jobs SET documents_ai_processed = documents_ai_processed + $2, updated_at = now() WHERE batch_id = $1`, n)
}

func (s *PostgresStore) AddBatchDBUpdated(ctx context.Context, batchID string, n int) error {
	return s.updateBatch(ctx, batchID,
		`UPDATE extraction_batch_jobs SET documents_db_updated = documents_db_updated + $2, updated_at = now() WHERE batch_id = $1`, n)
}

func (s *PostgresStore) updateBatch(ctx context.Context, batchID, query string, n int) error {
	tag, err := s.pool.Exec(ctx, query, batchID, n)
	if err != nil {
		return fmt.Errorf("failed to update batch job %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch job %s", ErrNotFound, batchID)
	}
	return nil
}

// CreateDocument inserts an empty record for the county, derives its
// PRSERV from the generated key and stamps it back on the row.
func (s *PostgresStore) CreateDocument(ctx context.Context, countyID string) (int64, string, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (county_id, export_flag) VALUES ($1, 1) RETURNING id`,
		countyID,
	).Scan(&id)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create document: %w", err)
	}

	prserv := PRSERV(id)
	if _, err := s.pool.Exec(ctx,
		`UPDATE documents SET prserv = $2, updated_at = now() WHERE id = $1`,
		id, prserv,
	); err != nil {
		return 0, "", fmt.Errorf("failed to set prserv on document %d: %w", id, err)
	}
	return id, prserv, nil
}

// UpsertExtractedFacts writes the merged fact columns, promotes the
// export flag to 2 and inserts the party rows, all in one
// transaction. Reapplying the same facts leaves the row unchanged.
func (s *PostgresStore) UpsertExtractedFacts(ctx context.Context, documentID int64, facts types.DocumentFacts) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE documents SET
			transcription = $2, instrument_number = $3, book = $4, volume = $5,
			page = $6, instrument_type = $7, remarks = $8, amount = $9,
			instrument_date = $10, file_date = $11, legal_description = $12,
			address = $13, reference_numbers = $14,
			export_flag = 2, updated_at = now()
		 WHERE id = $1`,
		documentID,
		facts.Transcription, facts.InstrumentNumber, facts.Book, facts.Volume,
		facts.Page, facts.InstrumentType, facts.Remarks, facts.Amount,
		facts.InstrumentDate, facts.FileDate, facts.LegalDescription,
		facts.Address, facts.ReferenceNumbers,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert facts for document %d: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %d", ErrNotFound, documentID)
	}

	insertParty := func(role types.PartyRole, names []string) error {
		for _, name := range names {
			if name == "" {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO parties (document_id, role, name) VALUES ($1, $2, $3)
				 ON CONFLICT DO NOTHING`,
				documentID, string(role), name,
			); err != nil {
				return fmt.Errorf("failed to insert %s %q for document %d: %w", role, name, documentID, err)
			}
		}
		return nil
	}
	if err := insertParty(types.RoleGrantor, facts.Grantor); err != nil {
		return err
	}
	if err := insertParty(types.RoleGrantee, facts.Grantee); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Seen reports whether a message fingerprint is already recorded for
// the queue.
func (s *PostgresStore) Seen(ctx context.Context, queue, messageHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_hash = $1 AND queue_name = $2)`,
		messageHash, queue,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup ledger: %w", err)
	}
	return exists, nil
}

// Record appends a fingerprint. A concurrent duplicate insert is
// harmless.
func (s *PostgresStore) Record(ctx context.Context, queue, messageHash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_messages (message_hash, queue_name) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		messageHash, queue,
	)
	if err != nil {
		return fmt.Errorf("failed to record in dedup ledger: %w", err)
	}
	return nil
}
