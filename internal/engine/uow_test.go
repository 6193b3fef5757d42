package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
	"github.com/emberline/catalogstore/internal/storage/sqlite"
)

func newTestUOW(t *testing.T) (*UnitOfWork, *sqlite.Store, *Dispatcher) {
	t.Helper()
	store := openTestStore(t)
	b := newTestBatcher(t, store, Config{
		FlushInterval: 10 * time.Millisecond,
		SizeThreshold: 1,
		MaxQueueDepth: 100,
	})
	d := NewDispatcher()
	return NewUnitOfWork(store, b, d, nil), store, d
}

func TestDoCommitsBufferedWrites(t *testing.T) {
	uow, store, _ := newTestUOW(t)

	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		if err := scope.Events().AppendEvent(ctx, testEventRecord("agg-do", 0)); err != nil {
			return err
		}
		return scope.Snapshots().SaveSnapshot(ctx, storage.SnapshotRecord{
			AggregateID: "agg-do",
			Version:     0,
			PayloadJSON: []byte(`{}`),
			UpdatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	version, ok, err := store.LatestVersion(context.Background(), "agg-do")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if !ok || version != 0 {
		t.Fatalf("expected committed event, got %d (ok=%v)", version, ok)
	}
	snap, err := store.GetSnapshot(context.Background(), "agg-do")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.Version != 0 {
		t.Fatalf("expected snapshot version 0, got %d", snap.Version)
	}
}

func TestDoDiscardsWritesOnError(t *testing.T) {
	uow, store, _ := newTestUOW(t)

	wantErr := fmt.Errorf("domain rejected")
	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		if err := scope.Events().AppendEvent(ctx, testEventRecord("agg-discard", 0)); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected function error, got %v", err)
	}

	_, ok, err := store.LatestVersion(context.Background(), "agg-discard")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if ok {
		t.Fatal("expected no committed events after discarded unit")
	}
}

func TestDoWithoutWritesSkipsCommit(t *testing.T) {
	uow, _, _ := newTestUOW(t)

	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil for read-only unit, got %v", err)
	}
}

func TestCommitAggregateWritesFullSequence(t *testing.T) {
	uow, store, d := newTestUOW(t)

	handled := 0
	d.RegisterHandler("thing.created", func(ctx context.Context, scope *Scope, evt storage.EventRecord) error {
		handled++
		return nil
	})

	agg := newTestAggregate("agg-full", 0, 1)
	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		return scope.CommitAggregate(ctx, agg, CommitMeta{CorrelationID: "corr-9", UserID: "user-9"})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	events, err := store.ListEvents(context.Background(), "agg-full", -1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].CorrelationID != "corr-9" || events[0].UserID != "user-9" {
		t.Fatalf("expected commit meta stamped on events, got %q/%q", events[0].CorrelationID, events[0].UserID)
	}

	snap, err := store.GetSnapshot(context.Background(), "agg-full")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.Version != 1 {
		t.Fatalf("expected snapshot at last event version, got %d", snap.Version)
	}

	rows, err := store.ListPendingOutboxEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one outbox row per event, got %d", len(rows))
	}
	if rows[0].EventType != "thing.created" {
		t.Fatalf("expected event type copied to outbox, got %q", rows[0].EventType)
	}

	if handled != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", handled)
	}
}

func TestCommitAggregateNoEventsIsNoop(t *testing.T) {
	uow, store, _ := newTestUOW(t)

	agg := &testAggregate{id: "agg-empty"}
	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		return scope.CommitAggregate(ctx, agg, CommitMeta{})
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	_, ok, err := store.LatestVersion(context.Background(), "agg-empty")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if ok {
		t.Fatal("expected no writes for an aggregate without pending events")
	}
}

func TestCommitAggregateSnapshotVersionMismatch(t *testing.T) {
	uow, _, _ := newTestUOW(t)

	agg := newTestAggregate("agg-mismatch", 0)
	agg.snapVersion = 7
	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		return scope.CommitAggregate(ctx, agg, CommitMeta{})
	})
	if err == nil {
		t.Fatal("expected snapshot version mismatch error")
	}
}

func TestDoProjectionFailureAbortsEverything(t *testing.T) {
	uow, store, d := newTestUOW(t)

	d.RegisterHandler("thing.created", func(ctx context.Context, scope *Scope, evt storage.EventRecord) error {
		return fmt.Errorf("projection broke")
	})

	agg := newTestAggregate("agg-proj", 0)
	err := uow.Do(context.Background(), func(ctx context.Context, scope *Scope) error {
		return scope.CommitAggregate(ctx, agg, CommitMeta{})
	})

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeProjectionFailed {
		t.Fatalf("expected projection failure, got %v", err)
	}

	_, ok, lvErr := store.LatestVersion(context.Background(), "agg-proj")
	if lvErr != nil {
		t.Fatalf("latest version: %v", lvErr)
	}
	if ok {
		t.Fatal("expected projection failure to abort the journal write")
	}
	rows, err := store.ListPendingOutboxEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(rows))
	}
}

func TestExecuteReturnsValueOnCommit(t *testing.T) {
	uow, _, _ := newTestUOW(t)

	got, err := Execute(context.Background(), uow, func(ctx context.Context, scope *Scope) (string, error) {
		if err := scope.Events().AppendEvent(ctx, testEventRecord("agg-exec", 0)); err != nil {
			return "", err
		}
		return "committed", nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "committed" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestExecuteReturnsZeroOnError(t *testing.T) {
	uow, _, _ := newTestUOW(t)

	got, err := Execute(context.Background(), uow, func(ctx context.Context, scope *Scope) (string, error) {
		return "never", fmt.Errorf("rejected")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != "" {
		t.Fatalf("expected zero value, got %q", got)
	}
}

func TestDefaultOutboxMapper(t *testing.T) {
	rows, err := DefaultOutboxMapper(testEventRecord("agg-map", 2))
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.ID == "" {
		t.Fatal("expected generated outbox id")
	}
	if row.AggregateID != "agg-map" || row.EventType != "thing.created" {
		t.Fatalf("expected event fields copied, got %+v", row)
	}
	if row.Status != storage.OutboxStatusPending {
		t.Fatalf("expected pending status, got %q", row.Status)
	}
}
