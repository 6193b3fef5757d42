package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/emberline/catalogstore/internal/storage"
)

// AppendEvent inserts one journal entry inside the transaction. The primary
// key on (aggregate_id, version) is the optimistic-concurrency backstop: a
// duplicate insert surfaces storage.ErrDuplicateVersion instead of being
// silently ignored.
func (t *Tx) AppendEvent(ctx context.Context, evt storage.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(evt.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if evt.Version < 0 {
		return fmt.Errorf("event version must not be negative")
	}
	if strings.TrimSpace(evt.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if evt.OccurredAt.IsZero() {
		return fmt.Errorf("event occurred_at is required")
	}

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO events (aggregate_id, version, event_type, correlation_id, user_id, occurred_at, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		evt.AggregateID,
		evt.Version,
		evt.EventType,
		evt.CorrelationID,
		evt.UserID,
		toMillis(evt.OccurredAt),
		evt.PayloadJSON,
	)
	if err != nil {
		if isUniqueViolation(err, "events") {
			return fmt.Errorf("append event %s@%d: %w", evt.AggregateID, evt.Version, storage.ErrDuplicateVersion)
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns committed events for an aggregate ordered by version
// ascending, starting after afterVersion.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterVersion int64, limit int) ([]storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT aggregate_id, version, event_type, correlation_id, user_id, occurred_at, payload_json
FROM events
WHERE aggregate_id = ? AND version > ?
ORDER BY version ASC
LIMIT ?
`, aggregateID, afterVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.EventRecord, 0, limit)
	for rows.Next() {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LatestVersion returns the highest committed version for an aggregate.
func (s *Store) LatestVersion(ctx context.Context, aggregateID string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, false, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, false, fmt.Errorf("aggregate id is required")
	}

	var version int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT version
FROM events
WHERE aggregate_id = ?
ORDER BY version DESC
LIMIT 1
`, aggregateID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("latest version: %w", err)
	}
	return version, true, nil
}

func scanEvent(scan func(dest ...any) error) (storage.EventRecord, error) {
	var evt storage.EventRecord
	var occurredAt int64
	if err := scan(
		&evt.AggregateID,
		&evt.Version,
		&evt.EventType,
		&evt.CorrelationID,
		&evt.UserID,
		&occurredAt,
		&evt.PayloadJSON,
	); err != nil {
		return storage.EventRecord{}, err
	}
	evt.OccurredAt = fromMillis(occurredAt)
	return evt, nil
}
