package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue used in tests and single-process
// deployments. It honors visibility timeouts: a received message that
// is never deleted becomes visible again after the timeout, modeling
// at-least-once redelivery.
type MemoryQueue struct {
	mu                sync.Mutex
	queues            map[string][]*memMessage
	visibilityTimeout time.Duration
}

type memMessage struct {
	id            string
	body          []byte
	receiptHandle string
	invisibleTil  time.Time
}

// NewMemoryQueue creates a memory queue with the given visibility
// timeout. A zero timeout defaults to 30 seconds.
func NewMemoryQueue(visibilityTimeout time.Duration) *MemoryQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &MemoryQueue{
		queues:            make(map[string][]*memMessage),
		visibilityTimeout: visibilityTimeout,
	}
}

// Send appends a message to the named queue.
func (q *MemoryQueue) Send(ctx context.Context, queue string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := make([]byte, len(body))
	copy(b, body)
	q.queues[queue] = append(q.queues[queue], &memMessage{
		id:   uuid.New().String(),
		body: b,
	})
	return nil
}

// Receive returns up to max visible messages, polling until wait
// elapses or the context is cancelled. Returned messages are hidden
// for the visibility timeout.
func (q *MemoryQueue) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		msgs := q.receiveVisible(queue, max)
		if len(msgs) > 0 {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) receiveVisible(queue string, max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var out []Message
	for _, m := range q.queues[queue] {
		if len(out) >= max {
			break
		}
		if m.invisibleTil.After(now) {
			continue
		}
		m.invisibleTil = now.Add(q.visibilityTimeout)
		m.receiptHandle = uuid.New().String()
		out = append(out, Message{
			ID:            m.id,
			Body:          m.body,
			ReceiptHandle: m.receiptHandle,
		})
	}
	return out
}

// Delete acknowledges a delivery, removing the message for good.
// A stale receipt handle (message already redelivered) is a no-op.
func (q *MemoryQueue) Delete(ctx context.Context, queue string, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.queues[queue]
	for i, m := range msgs {
		if m.receiptHandle == receiptHandle {
			q.queues[queue] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Depth returns the number of messages (visible or not) on a queue.
func (q *MemoryQueue) Depth(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue])
}

// MakeVisible clears visibility deadlines so in-flight messages are
// immediately redeliverable. Test helper.
func (q *MemoryQueue) MakeVisible(queue string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.queues[queue] {
		m.invisibleTil = time.Time{}
	}
}
