package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
)

// AddOutboxEvent stages one integration event inside the transaction. Rows
// always enter as pending; the relay owns every later status transition.
func (t *Tx) AddOutboxEvent(ctx context.Context, evt storage.OutboxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(evt.ID) == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if strings.TrimSpace(evt.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if strings.TrimSpace(evt.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if evt.Status == "" {
		evt.Status = storage.OutboxStatusPending
	}
	if evt.Status != storage.OutboxStatusPending {
		return apperrors.WithMetadata(apperrors.CodeOutboxInvalidStatus,
			"outbox rows are inserted as pending",
			map[string]string{"status": string(evt.Status)})
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if evt.UpdatedAt.IsZero() {
		evt.UpdatedAt = evt.CreatedAt
	}

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO outbox (id, aggregate_id, event_type, payload_json, status, attempt_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		evt.ID,
		evt.AggregateID,
		evt.EventType,
		evt.PayloadJSON,
		string(evt.Status),
		evt.AttemptCount,
		toMillis(evt.CreatedAt),
		toMillis(evt.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("add outbox event: %w", err)
	}
	return nil
}

// GetOutboxEvent returns one staged integration event by id.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OutboxRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxRecord{}, fmt.Errorf("outbox event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, aggregate_id, event_type, payload_json, status, attempt_count, created_at, updated_at
FROM outbox
WHERE id = ?
`, id)
	evt, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxRecord{}, storage.ErrNotFound
		}
		return storage.OutboxRecord{}, fmt.Errorf("get outbox event: %w", err)
	}
	return evt, nil
}

// ListPendingOutboxEvents returns pending rows oldest-first for the relay.
func (s *Store) ListPendingOutboxEvents(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, aggregate_id, event_type, payload_json, status, attempt_count, created_at, updated_at
FROM outbox
WHERE status = ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, string(storage.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.OutboxRecord, 0, limit)
	for rows.Next() {
		evt, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkOutboxDelivered flips a staged row to delivered after a successful publish.
func (s *Store) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(storage.OutboxStatusDelivered), toMillis(at), id, string(storage.OutboxStatusPending))
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox delivered rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOutboxAttemptFailed records a failed publish attempt. The row stays
// pending until maxAttempts is reached, then flips to failed.
func (s *Store) MarkOutboxAttemptFailed(ctx context.Context, id string, maxAttempts int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("outbox event id is required")
	}
	if maxAttempts <= 0 {
		return fmt.Errorf("max attempts must be greater than zero")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET attempt_count = attempt_count + 1,
    status = CASE WHEN attempt_count + 1 >= ? THEN ? ELSE status END,
    updated_at = ?
WHERE id = ? AND status = ?
`, maxAttempts, string(storage.OutboxStatusFailed), toMillis(at), id, string(storage.OutboxStatusPending))
	if err != nil {
		return fmt.Errorf("mark outbox attempt failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox attempt rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanOutboxEvent(scan func(dest ...any) error) (storage.OutboxRecord, error) {
	var evt storage.OutboxRecord
	var status string
	var createdAt, updatedAt int64
	if err := scan(
		&evt.ID,
		&evt.AggregateID,
		&evt.EventType,
		&evt.PayloadJSON,
		&status,
		&evt.AttemptCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxRecord{}, err
	}
	evt.Status = storage.OutboxStatus(status)
	evt.CreatedAt = fromMillis(createdAt)
	evt.UpdatedAt = fromMillis(updatedAt)
	return evt, nil
}
