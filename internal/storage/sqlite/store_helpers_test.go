package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberline/catalogstore/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func commitTx(t *testing.T, store *Store, fn func(tx storage.Tx) error) {
	t.Helper()
	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func testEvent(aggregateID string, version int64, eventType string) storage.EventRecord {
	return storage.EventRecord{
		AggregateID:   aggregateID,
		Version:       version,
		EventType:     eventType,
		CorrelationID: "corr-1",
		UserID:        "user-1",
		OccurredAt:    time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
		PayloadJSON:   []byte(`{}`),
	}
}

func testOutboxEvent(id, aggregateID string, createdAt time.Time) storage.OutboxRecord {
	return storage.OutboxRecord{
		ID:          id,
		AggregateID: aggregateID,
		EventType:   "product.created",
		PayloadJSON: []byte(`{}`),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func testProductView(productID, slug, sku, collectionID string) storage.ProductViewRecord {
	return storage.ProductViewRecord{
		ProductID:     productID,
		Slug:          slug,
		SKU:           sku,
		Name:          "Test Product",
		Status:        "draft",
		PriceCents:    1299,
		CollectionID:  collectionID,
		Version:       0,
		CorrelationID: "corr-1",
		CreatedAt:     time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
	}
}

func testCollectionView(collectionID, slug string) storage.CollectionViewRecord {
	return storage.CollectionViewRecord{
		CollectionID:  collectionID,
		Slug:          slug,
		Name:          "Test Collection",
		Status:        "active",
		Version:       0,
		CorrelationID: "corr-1",
		CreatedAt:     time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestMillisHelpers(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	value := time.Date(2026, 8, 1, 9, 0, 0, 0, loc)
	if toMillis(value) != value.UTC().UnixMilli() {
		t.Fatalf("expected millis to match UTC unix millis")
	}

	round := fromMillis(toMillis(value))
	if !round.Equal(value.UTC()) {
		t.Fatalf("expected round trip UTC time, got %v", round)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	commitTx(t, store, func(tx storage.Tx) error {
		return tx.AppendEvent(context.Background(), testEvent("agg-reopen", 0, "product.created"))
	})
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.ListEvents(context.Background(), "agg-reopen", -1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after reopen, got %d", len(events))
	}
}
