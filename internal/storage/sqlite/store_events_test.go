package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/emberline/catalogstore/internal/storage"
)

func TestAppendEventAndListEvents(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		for version := int64(0); version < 3; version++ {
			if err := tx.AppendEvent(context.Background(), testEvent("agg-1", version, "product.updated")); err != nil {
				return err
			}
		}
		return nil
	})

	events, err := store.ListEvents(context.Background(), "agg-1", -1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Version != int64(i) {
			t.Fatalf("expected version %d at position %d, got %d", i, i, evt.Version)
		}
	}
	if events[0].CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id to round trip, got %q", events[0].CorrelationID)
	}
	if !events[0].OccurredAt.Equal(testEvent("agg-1", 0, "product.updated").OccurredAt) {
		t.Fatalf("expected occurred_at to round trip, got %v", events[0].OccurredAt)
	}
}

func TestListEventsAfterVersion(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		for version := int64(0); version < 4; version++ {
			if err := tx.AppendEvent(context.Background(), testEvent("agg-after", version, "product.updated")); err != nil {
				return err
			}
		}
		return nil
	})

	events, err := store.ListEvents(context.Background(), "agg-after", 1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after version 1, got %d", len(events))
	}
	if events[0].Version != 2 || events[1].Version != 3 {
		t.Fatalf("expected versions 2 and 3, got %d and %d", events[0].Version, events[1].Version)
	}
}

func TestAppendEventDuplicateVersion(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		return tx.AppendEvent(context.Background(), testEvent("agg-dup", 0, "product.created"))
	})

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	err = tx.AppendEvent(context.Background(), testEvent("agg-dup", 0, "product.created"))
	if !errors.Is(err, storage.ErrDuplicateVersion) {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	events, err := store.ListEvents(context.Background(), "agg-dup", -1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 committed event, got %d", len(events))
	}
}

func TestAppendEventValidation(t *testing.T) {
	store := openTestStore(t)

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	missingID := testEvent(" ", 0, "product.created")
	if err := tx.AppendEvent(context.Background(), missingID); err == nil {
		t.Fatal("expected error for missing aggregate id")
	}

	negativeVersion := testEvent("agg-valid", -1, "product.created")
	if err := tx.AppendEvent(context.Background(), negativeVersion); err == nil {
		t.Fatal("expected error for negative version")
	}

	missingType := testEvent("agg-valid", 0, " ")
	if err := tx.AppendEvent(context.Background(), missingType); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestLatestVersion(t *testing.T) {
	store := openTestStore(t)

	version, ok, err := store.LatestVersion(context.Background(), "agg-latest")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if ok {
		t.Fatalf("expected no version for unknown aggregate, got %d", version)
	}

	commitTx(t, store, func(tx storage.Tx) error {
		for v := int64(0); v < 3; v++ {
			if err := tx.AppendEvent(context.Background(), testEvent("agg-latest", v, "product.updated")); err != nil {
				return err
			}
		}
		return nil
	})

	version, ok, err = store.LatestVersion(context.Background(), "agg-latest")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if !ok || version != 2 {
		t.Fatalf("expected latest version 2, got %d (ok=%v)", version, ok)
	}
}

func TestRollbackDiscardsAppendedEvents(t *testing.T) {
	store := openTestStore(t)

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := tx.AppendEvent(context.Background(), testEvent("agg-rollback", 0, "product.created")); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	_, ok, err := store.LatestVersion(context.Background(), "agg-rollback")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if ok {
		t.Fatal("expected rolled back event to be invisible")
	}
}
