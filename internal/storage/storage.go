// Package storage defines the persistence records and store contracts shared
// by the write engine, the projection handlers, and the outbox relay.
package storage

import (
	"context"
	"time"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrDuplicateVersion indicates an event insert collided with an already
// committed (aggregate_id, version) pair. It is the storage-level backstop for
// optimistic concurrency; command callers treat it like a version conflict.
var ErrDuplicateVersion = apperrors.New(apperrors.CodeDuplicateVersionWrite, "event version already written")

// EventRecord is one immutable entry in the append-only event journal.
// Versions for a given aggregate form a gap-free sequence starting at 0.
type EventRecord struct {
	AggregateID   string
	Version       int64
	EventType     string
	CorrelationID string
	UserID        string
	OccurredAt    time.Time
	PayloadJSON   []byte
}

// SnapshotRecord holds the full materialized state of one aggregate.
// Its version always equals the version of the aggregate's last committed
// event; both are written in the same physical commit.
type SnapshotRecord struct {
	AggregateID   string
	CorrelationID string
	Version       int64
	PayloadJSON   []byte
	UpdatedAt     time.Time
}

// OutboxStatus tracks delivery progress of a staged integration event.
type OutboxStatus string

const (
	// OutboxStatusPending marks a row awaiting delivery by the relay.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusDelivered marks a row the relay published downstream.
	OutboxStatusDelivered OutboxStatus = "delivered"
	// OutboxStatusFailed marks a row the relay gave up on after repeated attempts.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxRecord is a durably staged integration event. The engine inserts rows
// as pending in the same physical commit as their source event; status
// transitions afterwards belong to the relay.
type OutboxRecord struct {
	ID           string
	AggregateID  string
	EventType    string
	PayloadJSON  []byte
	Status       OutboxStatus
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductViewRecord is the denormalized product read model. CollectionName is
// resolved from the referenced collection when available and repaired by the
// retroactive backfill when the collection is created later.
type ProductViewRecord struct {
	ProductID      string
	Slug           string
	SKU            string
	Name           string
	Status         string
	PriceCents     int64
	CollectionID   string
	CollectionName string
	Version        int64
	CorrelationID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CollectionViewRecord is the denormalized collection read model.
type CollectionViewRecord struct {
	CollectionID  string
	Slug          string
	Name          string
	Status        string
	ProductCount  int64
	Version       int64
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EventReader reads committed journal entries for audit and verification.
// There is no update or delete surface; the journal is append-only.
type EventReader interface {
	// ListEvents returns committed events for an aggregate ordered by version
	// ascending, starting after afterVersion (-1 returns everything).
	ListEvents(ctx context.Context, aggregateID string, afterVersion int64, limit int) ([]EventRecord, error)
	// LatestVersion returns the highest committed version for an aggregate.
	// The boolean reports whether any event exists.
	LatestVersion(ctx context.Context, aggregateID string) (int64, bool, error)
}

// SnapshotReader resolves the current materialized state of an aggregate.
type SnapshotReader interface {
	// GetSnapshot is a point lookup with no locking. Returns ErrNotFound when
	// the aggregate has never been committed.
	GetSnapshot(ctx context.Context, aggregateID string) (SnapshotRecord, error)
}

// OutboxReader reads staged integration events.
type OutboxReader interface {
	GetOutboxEvent(ctx context.Context, id string) (OutboxRecord, error)
	// ListPendingOutboxEvents returns pending rows oldest-first.
	ListPendingOutboxEvents(ctx context.Context, limit int) ([]OutboxRecord, error)
}

// ProjectionReader serves committed read-model rows to queries, command
// uniqueness checks, and backfill scans.
type ProjectionReader interface {
	GetProductView(ctx context.Context, productID string) (ProductViewRecord, error)
	GetProductViewBySlug(ctx context.Context, slug string) (ProductViewRecord, error)
	GetProductViewBySKU(ctx context.Context, sku string) (ProductViewRecord, error)
	// ListProductViewsByCollection returns product rows referencing a
	// collection id, including rows written before the collection existed.
	ListProductViewsByCollection(ctx context.Context, collectionID string) ([]ProductViewRecord, error)
	GetCollectionView(ctx context.Context, collectionID string) (CollectionViewRecord, error)
	GetCollectionViewBySlug(ctx context.Context, slug string) (CollectionViewRecord, error)
}

// Reader is the committed-state read surface handed to unit-of-work scopes.
type Reader interface {
	EventReader
	SnapshotReader
	OutboxReader
	ProjectionReader
}

// EventWriter appends journal entries inside a physical transaction.
type EventWriter interface {
	// AppendEvent inserts one event. It fails with ErrDuplicateVersion when
	// the (aggregate_id, version) pair already exists; it never overwrites.
	AppendEvent(ctx context.Context, evt EventRecord) error
}

// SnapshotWriter upserts materialized aggregate state.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap SnapshotRecord) error
}

// OutboxWriter stages integration events for the relay.
type OutboxWriter interface {
	AddOutboxEvent(ctx context.Context, evt OutboxRecord) error
}

// ProjectionWriter applies read-model mutations inside the same physical
// transaction as the events that caused them.
type ProjectionWriter interface {
	PutProductView(ctx context.Context, view ProductViewRecord) error
	PutCollectionView(ctx context.Context, view CollectionViewRecord) error
	// SetProductViewCollectionName repairs the denormalized collection name on
	// every product row referencing collectionID.
	SetProductViewCollectionName(ctx context.Context, collectionID, name string) error
	// AdjustCollectionProductCount shifts a collection's product counter.
	AdjustCollectionProductCount(ctx context.Context, collectionID string, delta int64) error
}

// Writer is the transactional write surface. Instances are bound to one
// physical transaction and owned exclusively by the batch scheduler during a
// flush; nothing else writes to the store directly.
type Writer interface {
	EventWriter
	SnapshotWriter
	OutboxWriter
	ProjectionWriter
}

// Tx is one physical transaction over the embedded store.
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// TxStarter opens physical transactions for the batch scheduler.
type TxStarter interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// OutboxProcessor owns delivery status transitions. It operates on committed
// rows directly; the engine only ever inserts pending rows.
type OutboxProcessor interface {
	OutboxReader
	// MarkOutboxDelivered flips a row to delivered.
	MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error
	// MarkOutboxAttemptFailed increments the attempt counter and flips the row
	// to failed once maxAttempts is reached; below that the row stays pending
	// for the next poll.
	MarkOutboxAttemptFailed(ctx context.Context, id string, maxAttempts int, at time.Time) error
}

// Store is the composite persistence surface used across the engine, the
// projection handlers, and the relay.
type Store interface {
	Reader
	TxStarter
	OutboxProcessor
	Close() error
}
