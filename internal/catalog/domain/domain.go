// Package domain holds the catalog aggregates. State is rebuilt from the
// latest snapshot, never by replaying events; the journal exists for audit
// and outbox fan-out.
package domain

import "time"

// Status is the lifecycle of a catalog entity.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// ProductState is the full persisted state of a product. It is the snapshot
// payload and the body of product event payloads.
type ProductState struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	CollectionID string    `json:"collection_id,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CollectionState is the full persisted state of a collection.
type CollectionState struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
