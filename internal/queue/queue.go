package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Logical queue names used by the pipeline.
const (
	BookProcessing = "book-processing"
	Extraction     = "extraction"
	Persistence    = "persistence"
)

// Message is one delivery from a work queue. The same body may be
// delivered more than once; ReceiptHandle identifies this particular
// delivery for acknowledgement.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
}

// Queue is an at-least-once, visibility-timeout based work queue.
// Receive blocks for at most wait before returning whatever is
// available (possibly nothing). Delete acknowledges a delivery.
type Queue interface {
	Send(ctx context.Context, queue string, body []byte) error
	Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, queue string, receiptHandle string) error
}

// Fingerprint returns the stable content fingerprint of a message
// body, used as the dedup ledger key.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
