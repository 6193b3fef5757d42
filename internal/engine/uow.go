package engine

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberline/catalogstore/internal/storage"
)

// OutboxMapper turns a journal event into the outbox rows queued alongside
// it. Returning no rows skips the outbox for that event.
type OutboxMapper func(evt storage.EventRecord) ([]storage.OutboxRecord, error)

// DefaultOutboxMapper queues one pending outbox row per event, carrying the
// event's type and payload verbatim.
func DefaultOutboxMapper(evt storage.EventRecord) ([]storage.OutboxRecord, error) {
	return []storage.OutboxRecord{{
		ID:          uuid.NewString(),
		AggregateID: evt.AggregateID,
		EventType:   evt.EventType,
		PayloadJSON: evt.PayloadJSON,
		Status:      storage.OutboxStatusPending,
	}}, nil
}

// UnitOfWork runs logical units of work whose buffered writes commit
// atomically through the batch scheduler.
type UnitOfWork struct {
	reader     storage.Reader
	batcher    *Batcher
	dispatcher *Dispatcher
	mapper     OutboxMapper
	tracer     trace.Tracer
}

// NewUnitOfWork wires reads against committed state, writes through the
// batcher, and projections through the dispatcher. A nil mapper falls back
// to DefaultOutboxMapper.
func NewUnitOfWork(reader storage.Reader, batcher *Batcher, dispatcher *Dispatcher, mapper OutboxMapper) *UnitOfWork {
	if mapper == nil {
		mapper = DefaultOutboxMapper
	}
	return &UnitOfWork{
		reader:     reader,
		batcher:    batcher,
		dispatcher: dispatcher,
		mapper:     mapper,
		tracer:     otel.Tracer("catalogstore/engine"),
	}
}

// Do runs fn with a fresh scope. If fn returns an error the buffered writes
// are discarded and nothing is persisted. Otherwise the writes are enqueued
// as one unit and Do blocks until the physical commit resolves, returning
// the batch outcome.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) error {
	ctx, span := u.tracer.Start(ctx, "uow.do")
	defer span.End()

	scope := &Scope{uow: u}
	if err := fn(ctx, scope); err != nil {
		span.RecordError(err)
		return err
	}
	if len(scope.ops) == 0 {
		return nil
	}

	done, err := u.batcher.Enqueue(scope.ops)
	if err != nil {
		span.RecordError(err)
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
		}
		return err
	case <-ctx.Done():
		// The unit is already queued; the batch outcome stands either
		// way, so wait for it rather than report a false failure.
		err := <-done
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}

// Execute runs fn inside a unit of work and returns its value only when the
// physical commit succeeds.
func Execute[T any](ctx context.Context, u *UnitOfWork, fn func(ctx context.Context, scope *Scope) (T, error)) (T, error) {
	var out T
	err := u.Do(ctx, func(ctx context.Context, scope *Scope) error {
		v, err := fn(ctx, scope)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
