package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/emberline/catalogstore/internal/engine"
	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
)

// Product is the product aggregate. Versions count applied events starting
// at zero for creation.
type Product struct {
	state   ProductState
	version int64
	pending []storage.EventRecord
}

// CreateProductParams carries everything needed to create a product.
type CreateProductParams struct {
	ID           string
	Slug         string
	SKU          string
	Name         string
	Description  string
	PriceCents   int64
	CollectionID string
	Now          time.Time
}

// NewProduct creates a draft product at version 0 with a single creation
// event pending.
func NewProduct(params CreateProductParams) (*Product, error) {
	p := &Product{version: -1}
	mut, err := engine.Mutate(&p.version, &p.state, func(ProductState) (ProductState, error) {
		slug := strings.TrimSpace(params.Slug)
		if slug == "" {
			return ProductState{}, apperrors.New(apperrors.CodeProductSlugEmpty, "product slug is required")
		}
		sku := strings.TrimSpace(params.SKU)
		if sku == "" {
			return ProductState{}, apperrors.New(apperrors.CodeProductSkuEmpty, "product sku is required")
		}
		name := strings.TrimSpace(params.Name)
		if name == "" {
			return ProductState{}, apperrors.New(apperrors.CodeProductNameEmpty, "product name is required")
		}
		if params.PriceCents < 0 {
			return ProductState{}, apperrors.WithMetadata(apperrors.CodeProductInvalidPrice, "product price must not be negative", map[string]string{
				"price_cents": fmt.Sprintf("%d", params.PriceCents),
			})
		}
		now := params.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		return ProductState{
			ID:           params.ID,
			Slug:         slug,
			SKU:          sku,
			Name:         name,
			Description:  strings.TrimSpace(params.Description),
			PriceCents:   params.PriceCents,
			CollectionID: strings.TrimSpace(params.CollectionID),
			Status:       StatusDraft,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := p.record(EventProductCreated, &ProductCreated{New: mut.Next}); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProductFromSnapshot rebuilds the aggregate from its latest snapshot.
func LoadProductFromSnapshot(snap storage.SnapshotRecord) (*Product, error) {
	var state ProductState
	if err := json.Unmarshal(snap.PayloadJSON, &state); err != nil {
		return nil, fmt.Errorf("decode product snapshot %s: %w", snap.AggregateID, err)
	}
	return &Product{state: state, version: snap.Version}, nil
}

func (p *Product) AggregateID() string {
	return p.state.ID
}

func (p *Product) Version() int64 {
	return p.version
}

// State returns a copy of the current state.
func (p *Product) State() ProductState {
	return p.state
}

func (p *Product) UncommittedEvents() []storage.EventRecord {
	return p.pending
}

func (p *Product) Snapshot() (storage.SnapshotRecord, error) {
	data, err := json.Marshal(p.state)
	if err != nil {
		return storage.SnapshotRecord{}, fmt.Errorf("encode product snapshot %s: %w", p.state.ID, err)
	}
	return storage.SnapshotRecord{
		AggregateID: p.state.ID,
		Version:     p.version,
		PayloadJSON: data,
		UpdatedAt:   p.state.UpdatedAt,
	}, nil
}

// Rename changes the product name.
func (p *Product) Rename(name string, now time.Time) error {
	mut, err := engine.Mutate(&p.version, &p.state, func(s ProductState) (ProductState, error) {
		if err := p.guardMutable("rename"); err != nil {
			return s, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return s, apperrors.New(apperrors.CodeProductNameEmpty, "product name is required")
		}
		s.Name = name
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return p.record(EventProductUpdated, &ProductUpdated{Prior: mut.Prior, New: mut.Next})
}

// Reprice changes the product price.
func (p *Product) Reprice(priceCents int64, now time.Time) error {
	mut, err := engine.Mutate(&p.version, &p.state, func(s ProductState) (ProductState, error) {
		if err := p.guardMutable("reprice"); err != nil {
			return s, err
		}
		if priceCents < 0 {
			return s, apperrors.WithMetadata(apperrors.CodeProductInvalidPrice, "product price must not be negative", map[string]string{
				"price_cents": fmt.Sprintf("%d", priceCents),
			})
		}
		s.PriceCents = priceCents
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return p.record(EventProductUpdated, &ProductUpdated{Prior: mut.Prior, New: mut.Next})
}

// AssignToCollection moves the product into a collection.
func (p *Product) AssignToCollection(collectionID string, now time.Time) error {
	mut, err := engine.Mutate(&p.version, &p.state, func(s ProductState) (ProductState, error) {
		if err := p.guardMutable("assign to collection"); err != nil {
			return s, err
		}
		collectionID = strings.TrimSpace(collectionID)
		if collectionID == "" {
			return s, apperrors.New(apperrors.CodeProductCollectionRequired, "collection id is required")
		}
		s.CollectionID = collectionID
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return p.record(EventProductCollectionAssigned, &ProductCollectionAssigned{Prior: mut.Prior, New: mut.Next})
}

// Activate publishes a draft product.
func (p *Product) Activate(now time.Time) error {
	mut, err := engine.Mutate(&p.version, &p.state, func(s ProductState) (ProductState, error) {
		if err := p.guardMutable("activate"); err != nil {
			return s, err
		}
		s.Status = StatusActive
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return p.record(EventProductUpdated, &ProductUpdated{Prior: mut.Prior, New: mut.Next})
}

// Archive retires the product. Archived products reject further mutation.
func (p *Product) Archive(now time.Time) error {
	mut, err := engine.Mutate(&p.version, &p.state, func(s ProductState) (ProductState, error) {
		if err := p.guardMutable("archive"); err != nil {
			return s, err
		}
		s.Status = StatusArchived
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return p.record(EventProductArchived, &ProductArchived{Prior: mut.Prior, New: mut.Next})
}

func (p *Product) guardMutable(op string) error {
	if p.state.Status == StatusArchived {
		return apperrors.WithMetadata(apperrors.CodeProductStatusDisallowsOp, "archived product cannot be modified", map[string]string{
			"product_id": p.state.ID,
			"operation":  op,
		})
	}
	return nil
}

func (p *Product) record(eventType string, payload Payload) error {
	data, err := EncodeEvent(payload)
	if err != nil {
		return err
	}
	p.pending = append(p.pending, storage.EventRecord{
		AggregateID: p.state.ID,
		Version:     p.version,
		EventType:   eventType,
		PayloadJSON: data,
		OccurredAt:  p.state.UpdatedAt,
	})
	return nil
}
