package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
)

// Op is a single buffered write replayed against the batch transaction.
type Op func(ctx context.Context, w storage.Writer) error

// Config controls when the batcher flushes and how much work it buffers.
type Config struct {
	// FlushInterval is the maximum time a queued unit waits before a
	// physical commit is attempted.
	FlushInterval time.Duration
	// SizeThreshold triggers an early flush once the queue holds at least
	// this many ops.
	SizeThreshold int
	// MaxQueueDepth caps queued ops; enqueues past the cap are rejected
	// with ErrBackpressure.
	MaxQueueDepth int
}

func (c Config) validate() error {
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", c.FlushInterval)
	}
	if c.SizeThreshold <= 0 {
		return fmt.Errorf("size threshold must be positive, got %d", c.SizeThreshold)
	}
	if c.MaxQueueDepth < c.SizeThreshold {
		return fmt.Errorf("max queue depth %d below size threshold %d", c.MaxQueueDepth, c.SizeThreshold)
	}
	return nil
}

// unit is one logical unit of work awaiting a physical commit. All its ops
// succeed or fail together with the rest of the batch.
type unit struct {
	ops  []Op
	done chan error
}

// Batcher coalesces logical units of work into shared physical transactions,
// flushing on an interval, on queue size, and on Stop.
type Batcher struct {
	cfg    Config
	store  storage.TxStarter
	tracer trace.Tracer

	mu        sync.Mutex
	queue     []*unit
	queuedOps int
	stopped   bool

	kick   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBatcher validates cfg and starts the flush loop.
func NewBatcher(store storage.TxStarter, cfg Config) (*Batcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("batcher config: %w", err)
	}
	b := &Batcher{
		cfg:    cfg,
		store:  store,
		tracer: otel.Tracer("catalogstore/engine"),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Enqueue buffers a unit of work and returns the channel its commit outcome
// is delivered on. It rejects work when the queue is full or the batcher is
// stopped.
func (b *Batcher) Enqueue(ops []Op) (<-chan error, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("enqueue requires at least one op")
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrStopped
	}
	if b.queuedOps+len(ops) > b.cfg.MaxQueueDepth {
		b.mu.Unlock()
		return nil, apperrors.WithMetadata(apperrors.CodeBackpressureRejected, "write queue depth exceeded", map[string]string{
			"queued_ops":      fmt.Sprintf("%d", b.queuedOps),
			"incoming_ops":    fmt.Sprintf("%d", len(ops)),
			"max_queue_depth": fmt.Sprintf("%d", b.cfg.MaxQueueDepth),
		})
	}
	u := &unit{ops: ops, done: make(chan error, 1)}
	b.queue = append(b.queue, u)
	b.queuedOps += len(ops)
	full := b.queuedOps >= b.cfg.SizeThreshold
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return u.done, nil
}

// Stop flushes all queued work and shuts the batcher down. Enqueues after
// Stop return ErrStopped.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.doneCh
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh
}

func (b *Batcher) run() {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.kick:
			b.flush()
		case <-b.stopCh:
			b.flush()
			return
		}
	}
}

func (b *Batcher) drain() []*unit {
	b.mu.Lock()
	defer b.mu.Unlock()
	units := b.queue
	b.queue = nil
	b.queuedOps = 0
	return units
}

// flush commits every queued unit in one physical transaction. Any op
// failure rolls the whole batch back and every waiter receives the same
// error.
func (b *Batcher) flush() {
	units := b.drain()
	if len(units) == 0 {
		return
	}

	ops := 0
	for _, u := range units {
		ops += len(u.ops)
	}

	ctx, span := b.tracer.Start(context.Background(), "batcher.flush",
		trace.WithAttributes(
			attribute.Int("batch.units", len(units)),
			attribute.Int("batch.ops", ops),
		))
	defer span.End()

	err := b.commit(ctx, units)
	if err != nil {
		span.RecordError(err)
	}
	for _, u := range units {
		u.done <- err
	}
}

func (b *Batcher) commit(ctx context.Context, units []*unit) error {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return asTransactionFailure(err)
	}

	for _, u := range units {
		for _, op := range u.ops {
			if err := op(ctx, tx); err != nil {
				_ = tx.Rollback()
				return asTransactionFailure(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return asTransactionFailure(err)
	}
	return nil
}
