package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue is a Queue backed by a Postgres table, using
// FOR UPDATE SKIP LOCKED so multiple worker processes can poll the
// same logical queue without double-claiming a visible message.
// Requires Postgres 13+ (gen_random_uuid).
type PostgresQueue struct {
	pool              *pgxpool.Pool
	visibilityTimeout time.Duration
}

// NewPostgresQueue wraps an existing pool. A zero visibility timeout
// defaults to 120 seconds.
func NewPostgresQueue(pool *pgxpool.Pool, visibilityTimeout time.Duration) *PostgresQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 120 * time.Second
	}
	return &PostgresQueue{pool: pool, visibilityTimeout: visibilityTimeout}
}

// Send enqueues a message, immediately visible.
func (q *PostgresQueue) Send(ctx context.Context, queue string, body []byte) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO queue_messages (id, queue_name, body, visible_at)
		 VALUES ($1, $2, $3, now())`,
		uuid.New().String(), queue, body,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue on %s: %w", queue, err)
	}
	return nil
}

// Receive claims up to max visible messages, hiding them for the
// visibility timeout. It polls until wait elapses or a message shows
// up, so callers get a bounded blocking receive.
func (q *PostgresQueue) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.claim(ctx, queue, max)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 || time.Now().After(deadline) {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context, queue string, max int) ([]Message, error) {
	rows, err := q.pool.Query(ctx,
		`WITH picked AS (
			SELECT id FROM queue_messages
			WHERE queue_name = $1 AND visible_at <= now()
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET visible_at = now() + make_interval(secs => $3),
		    receipt_handle = gen_random_uuid()::text
		FROM picked
		WHERE m.id = picked.id
		RETURNING m.id, m.body, m.receipt_handle`,
		queue, max, q.visibilityTimeout.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim from %s: %w", queue, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Body, &m.ReceiptHandle); err != nil {
			return nil, fmt.Errorf("failed to scan claimed message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete acknowledges a delivery. The receipt handle check means a
// message that timed out and was re-claimed elsewhere is left alone.
func (q *PostgresQueue) Delete(ctx context.Context, queue string, receiptHandle string) error {
	_, err := q.pool.Exec(ctx,
		`DELETE FROM queue_messages WHERE queue_name = $1 AND receipt_handle = $2`,
		queue, receiptHandle,
	)
	if err != nil {
		return fmt.Errorf("failed to ack on %s: %w", queue, err)
	}
	return nil
}
