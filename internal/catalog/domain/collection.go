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

// Collection is the collection aggregate.
type Collection struct {
	state   CollectionState
	version int64
	pending []storage.EventRecord
}

// CreateCollectionParams carries everything needed to create a collection.
type CreateCollectionParams struct {
	ID   string
	Slug string
	Name string
	Now  time.Time
}

// NewCollection creates an active collection at version 0 with a single
// creation event pending.
func NewCollection(params CreateCollectionParams) (*Collection, error) {
	c := &Collection{version: -1}
	mut, err := engine.Mutate(&c.version, &c.state, func(CollectionState) (CollectionState, error) {
		slug := strings.TrimSpace(params.Slug)
		if slug == "" {
			return CollectionState{}, apperrors.New(apperrors.CodeCollectionSlugEmpty, "collection slug is required")
		}
		name := strings.TrimSpace(params.Name)
		if name == "" {
			return CollectionState{}, apperrors.New(apperrors.CodeCollectionNameEmpty, "collection name is required")
		}
		now := params.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		return CollectionState{
			ID:        params.ID,
			Slug:      slug,
			Name:      name,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.record(EventCollectionCreated, &CollectionCreated{New: mut.Next}); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCollectionFromSnapshot rebuilds the aggregate from its latest snapshot.
func LoadCollectionFromSnapshot(snap storage.SnapshotRecord) (*Collection, error) {
	var state CollectionState
	if err := json.Unmarshal(snap.PayloadJSON, &state); err != nil {
		return nil, fmt.Errorf("decode collection snapshot %s: %w", snap.AggregateID, err)
	}
	return &Collection{state: state, version: snap.Version}, nil
}

func (c *Collection) AggregateID() string {
	return c.state.ID
}

func (c *Collection) Version() int64 {
	return c.version
}

// State returns a copy of the current state.
func (c *Collection) State() CollectionState {
	return c.state
}

func (c *Collection) UncommittedEvents() []storage.EventRecord {
	return c.pending
}

func (c *Collection) Snapshot() (storage.SnapshotRecord, error) {
	data, err := json.Marshal(c.state)
	if err != nil {
		return storage.SnapshotRecord{}, fmt.Errorf("encode collection snapshot %s: %w", c.state.ID, err)
	}
	return storage.SnapshotRecord{
		AggregateID: c.state.ID,
		Version:     c.version,
		PayloadJSON: data,
		UpdatedAt:   c.state.UpdatedAt,
	}, nil
}

// Rename changes the collection name.
func (c *Collection) Rename(name string, now time.Time) error {
	mut, err := engine.Mutate(&c.version, &c.state, func(s CollectionState) (CollectionState, error) {
		if err := c.guardMutable("rename"); err != nil {
			return s, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return s, apperrors.New(apperrors.CodeCollectionNameEmpty, "collection name is required")
		}
		s.Name = name
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return c.record(EventCollectionUpdated, &CollectionUpdated{Prior: mut.Prior, New: mut.Next})
}

// Archive retires the collection. Archived collections reject further
// mutation.
func (c *Collection) Archive(now time.Time) error {
	mut, err := engine.Mutate(&c.version, &c.state, func(s CollectionState) (CollectionState, error) {
		if err := c.guardMutable("archive"); err != nil {
			return s, err
		}
		s.Status = StatusArchived
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	return c.record(EventCollectionArchived, &CollectionArchived{Prior: mut.Prior, New: mut.Next})
}

func (c *Collection) guardMutable(op string) error {
	if c.state.Status == StatusArchived {
		return apperrors.WithMetadata(apperrors.CodeCollectionStatusDisallowsOp, "archived collection cannot be modified", map[string]string{
			"collection_id": c.state.ID,
			"operation":     op,
		})
	}
	return nil
}

func (c *Collection) record(eventType string, payload Payload) error {
	data, err := EncodeEvent(payload)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, storage.EventRecord{
		AggregateID: c.state.ID,
		Version:     c.version,
		EventType:   eventType,
		PayloadJSON: data,
		OccurredAt:  c.state.UpdatedAt,
	})
	return nil
}
