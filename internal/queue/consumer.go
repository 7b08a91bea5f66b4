package queue

import (
	"context"
	"log/slog"
	"time"
)

// Ledger is the durable set of already-processed message fingerprints
// consulted by dedup-wrapped consumers. Satisfied by the store package.
type Ledger interface {
	Seen(ctx context.Context, queue, messageHash string) (bool, error)
	Record(ctx context.Context, queue, messageHash string) error
}

// Handler processes one delivery. Returning an error leaves the
// message un-acknowledged so the queue redelivers it after the
// visibility timeout.
type Handler func(ctx context.Context, msg Message) error

// Consumer is a long-lived polling loop over one logical queue. Each
// loop instance processes at most one message at a time; run several
// Consumers for horizontal scale-out. When a Ledger is set the loop
// absorbs duplicate deliveries: the fingerprint is checked before
// processing and recorded only after all side effects committed.
type Consumer struct {
	queue   Queue
	name    string
	handler Handler
	ledger  Ledger // nil disables dedup
	wait    time.Duration
	logger  *slog.Logger
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Queue   Queue
	Name    string // logical queue name
	Handler Handler
	Ledger  Ledger        // optional
	Wait    time.Duration // bounded receive wait (default 5s)
	Logger  *slog.Logger
}

// NewConsumer creates a consumer loop for one logical queue.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := cfg.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Consumer{
		queue:   cfg.Queue,
		name:    cfg.Name,
		handler: cfg.Handler,
		ledger:  cfg.Ledger,
		wait:    wait,
		logger:  logger.With("queue", cfg.Name),
	}
}

// Run polls until the context is cancelled. Blocks; run in a goroutine.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping")
			return
		default:
		}

		msgs, err := c.queue.Receive(ctx, c.name, 1, c.wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("receive failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

// process applies the dedup pattern around the handler: duplicates
// are acknowledged without reprocessing, failures are left for
// redelivery, and the fingerprint is recorded only once every side
// effect has committed.
func (c *Consumer) process(ctx context.Context, msg Message) {
	hash := Fingerprint(msg.Body)
	log := c.logger.With("message_id", msg.ID)

	if c.ledger != nil {
		seen, err := c.ledger.Seen(ctx, c.name, hash)
		if err != nil {
			log.Warn("dedup lookup failed, leaving message for retry", "error", err)
			return
		}
		if seen {
			log.Info("duplicate delivery absorbed", "hash", hash)
			if err := c.queue.Delete(ctx, c.name, msg.ReceiptHandle); err != nil {
				log.Warn("failed to ack duplicate", "error", err)
			}
			return
		}
	}

	if err := c.handler(ctx, msg); err != nil {
		log.Warn("processing failed, message will be redelivered", "error", err)
		return
	}

	if c.ledger != nil {
		if err := c.ledger.Record(ctx, c.name, hash); err != nil {
			// Side effects are committed but the message stays
			// visible; the handler's idempotent writes absorb the
			// redelivery.
			log.Warn("failed to record fingerprint", "error", err)
			return
		}
	}

	if err := c.queue.Delete(ctx, c.name, msg.ReceiptHandle); err != nil {
		log.Warn("failed to ack message", "error", err)
	}
}
