package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberline/catalogstore/internal/storage"
	"github.com/emberline/catalogstore/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"))
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

func newTestBatcher(t *testing.T, store storage.TxStarter, cfg Config) *Batcher {
	t.Helper()
	b, err := NewBatcher(store, cfg)
	if err != nil {
		t.Fatalf("new batcher: %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func testEventRecord(aggregateID string, version int64) storage.EventRecord {
	return storage.EventRecord{
		AggregateID: aggregateID,
		Version:     version,
		EventType:   "thing.created",
		OccurredAt:  time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{}`),
	}
}

func appendOp(aggregateID string, version int64) Op {
	return func(ctx context.Context, w storage.Writer) error {
		return w.AppendEvent(ctx, testEventRecord(aggregateID, version))
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch commit")
		return nil
	}
}

// testAggregate is a minimal Aggregate for exercising scope commits.
type testAggregate struct {
	id           string
	version      int64
	snapVersion  int64
	pending      []storage.EventRecord
	snapshotTime time.Time
}

func newTestAggregate(id string, versions ...int64) *testAggregate {
	a := &testAggregate{id: id, snapshotTime: time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)}
	for _, v := range versions {
		a.pending = append(a.pending, testEventRecord(id, v))
		a.version = v
	}
	a.snapVersion = a.version
	return a
}

func (a *testAggregate) AggregateID() string { return a.id }

func (a *testAggregate) Version() int64 { return a.version }

func (a *testAggregate) UncommittedEvents() []storage.EventRecord { return a.pending }

func (a *testAggregate) Snapshot() (storage.SnapshotRecord, error) {
	return storage.SnapshotRecord{
		AggregateID: a.id,
		Version:     a.snapVersion,
		PayloadJSON: []byte(`{"state":"ok"}`),
		UpdatedAt:   a.snapshotTime,
	}, nil
}
