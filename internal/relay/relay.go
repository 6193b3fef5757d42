// Package relay drains the outbox and publishes staged integration events.
// Delivery is at-least-once; rows stay pending across failed attempts until
// the attempt cap flips them to failed.
package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emberline/catalogstore/internal/storage"
)

// Publisher delivers one outbox row to the downstream transport.
type Publisher interface {
	Publish(ctx context.Context, row storage.OutboxRecord) error
}

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 5
)

// Relay polls pending outbox rows and publishes them oldest-first.
type Relay struct {
	store       storage.OutboxProcessor
	publisher   Publisher
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func New(store storage.OutboxProcessor, publisher Publisher, batchSize, maxAttempts int) *Relay {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Relay{
		store:       store,
		publisher:   publisher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPending publishes one batch of pending rows and returns how many
// were delivered. A publish failure records the attempt and moves on; rows
// that exhaust their attempts are marked failed by the store.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rows, err := r.store.ListPendingOutboxEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox events: %w", err)
	}

	delivered := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := r.publisher.Publish(ctx, row); err != nil {
			log.Printf("publish outbox event %s (%s): %v", row.ID, row.EventType, err)
			if err := r.store.MarkOutboxAttemptFailed(ctx, row.ID, r.maxAttempts, r.now()); err != nil {
				return delivered, fmt.Errorf("record failed attempt for outbox event %s: %w", row.ID, err)
			}
			continue
		}
		if err := r.store.MarkOutboxDelivered(ctx, row.ID, r.now()); err != nil {
			return delivered, fmt.Errorf("mark outbox event %s delivered: %w", row.ID, err)
		}
		delivered++
	}
	return delivered, nil
}

// Run polls on the given interval until the context ends.
func (r *Relay) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.ProcessPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("process pending outbox events: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("delivered %d outbox events", n)
			}
		}
	}
}
