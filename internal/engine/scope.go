package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/emberline/catalogstore/internal/storage"
)

// Scope is the handle a unit-of-work function writes through. Writes are
// buffered as ops and replayed against the batch transaction only if the
// function returns nil; reads go straight to committed state.
type Scope struct {
	uow *UnitOfWork
	ops []Op
}

func (s *Scope) enqueue(op Op) {
	s.ops = append(s.ops, op)
}

// Reader exposes committed state. Writes buffered in this scope are not
// visible through it.
func (s *Scope) Reader() storage.Reader {
	return s.uow.reader
}

func (s *Scope) Events() storage.EventWriter {
	return scopeWriter{s}
}

func (s *Scope) Snapshots() storage.SnapshotWriter {
	return scopeWriter{s}
}

func (s *Scope) Outbox() storage.OutboxWriter {
	return scopeWriter{s}
}

func (s *Scope) Projections() storage.ProjectionWriter {
	return scopeWriter{s}
}

// CommitMeta carries the request context stamped onto everything an
// aggregate commit writes.
type CommitMeta struct {
	CorrelationID string
	UserID        string
	Now           time.Time
}

// CommitAggregate buffers the full persistence sequence for an aggregate's
// uncommitted events: the events themselves, the refreshed snapshot, the
// outbox rows, and the projection updates. The snapshot version must match
// the last event's version.
func (s *Scope) CommitAggregate(ctx context.Context, agg Aggregate, meta CommitMeta) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	if meta.Now.IsZero() {
		meta.Now = time.Now().UTC()
	}

	for i := range events {
		if events[i].CorrelationID == "" {
			events[i].CorrelationID = meta.CorrelationID
		}
		if events[i].UserID == "" {
			events[i].UserID = meta.UserID
		}
		if events[i].OccurredAt.IsZero() {
			events[i].OccurredAt = meta.Now
		}
		if err := s.Events().AppendEvent(ctx, events[i]); err != nil {
			return err
		}
	}

	snap, err := agg.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot aggregate %s: %w", agg.AggregateID(), err)
	}
	last := events[len(events)-1]
	if snap.Version != last.Version {
		return fmt.Errorf("snapshot version %d does not match last event version %d for aggregate %s", snap.Version, last.Version, agg.AggregateID())
	}
	if snap.CorrelationID == "" {
		snap.CorrelationID = meta.CorrelationID
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = meta.Now
	}
	if err := s.Snapshots().SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	for _, evt := range events {
		rows, err := s.uow.mapper(evt)
		if err != nil {
			return fmt.Errorf("map event %s to outbox: %w", evt.EventType, err)
		}
		for _, row := range rows {
			if err := s.Outbox().AddOutboxEvent(ctx, row); err != nil {
				return err
			}
		}
	}

	for _, evt := range events {
		if err := s.uow.dispatcher.Dispatch(ctx, s, evt); err != nil {
			return err
		}
	}
	return nil
}

// scopeWriter buffers every write as an op against the eventual batch
// transaction.
type scopeWriter struct {
	s *Scope
}

func (w scopeWriter) AppendEvent(ctx context.Context, evt storage.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.AppendEvent(ctx, evt)
	})
	return nil
}

func (w scopeWriter) SaveSnapshot(ctx context.Context, snap storage.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.SaveSnapshot(ctx, snap)
	})
	return nil
}

func (w scopeWriter) AddOutboxEvent(ctx context.Context, row storage.OutboxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.AddOutboxEvent(ctx, row)
	})
	return nil
}

func (w scopeWriter) PutProductView(ctx context.Context, view storage.ProductViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.PutProductView(ctx, view)
	})
	return nil
}

func (w scopeWriter) PutCollectionView(ctx context.Context, view storage.CollectionViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.PutCollectionView(ctx, view)
	})
	return nil
}

func (w scopeWriter) SetProductViewCollectionName(ctx context.Context, collectionID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.SetProductViewCollectionName(ctx, collectionID, name)
	})
	return nil
}

func (w scopeWriter) AdjustCollectionProductCount(ctx context.Context, collectionID string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.s.enqueue(func(ctx context.Context, tx storage.Writer) error {
		return tx.AdjustCollectionProductCount(ctx, collectionID, delta)
	})
	return nil
}
