package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/emberline/catalogstore/internal/storage"
)

// SaveSnapshot upserts the materialized state of one aggregate inside the
// transaction. The row always moves forward together with the event at the
// same version.
func (t *Tx) SaveSnapshot(ctx context.Context, snap storage.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(snap.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if snap.Version < 0 {
		return fmt.Errorf("snapshot version must not be negative")
	}

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO snapshots (aggregate_id, correlation_id, version, payload_json, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(aggregate_id) DO UPDATE SET
    correlation_id = excluded.correlation_id,
    version = excluded.version,
    payload_json = excluded.payload_json,
    updated_at = excluded.updated_at
`,
		snap.AggregateID,
		snap.CorrelationID,
		snap.Version,
		snap.PayloadJSON,
		toMillis(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the materialized state of one aggregate.
func (s *Store) GetSnapshot(ctx context.Context, aggregateID string) (storage.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SnapshotRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SnapshotRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return storage.SnapshotRecord{}, fmt.Errorf("aggregate id is required")
	}

	var snap storage.SnapshotRecord
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT aggregate_id, correlation_id, version, payload_json, updated_at
FROM snapshots
WHERE aggregate_id = ?
`, aggregateID).Scan(
		&snap.AggregateID,
		&snap.CorrelationID,
		&snap.Version,
		&snap.PayloadJSON,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SnapshotRecord{}, storage.ErrNotFound
		}
		return storage.SnapshotRecord{}, fmt.Errorf("get snapshot: %w", err)
	}
	snap.UpdatedAt = fromMillis(updatedAt)
	return snap, nil
}
