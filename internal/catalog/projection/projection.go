// Package projection maintains the catalog read models. Handlers run inside
// the same logical unit of work as the events they project, so a handler
// failure aborts the whole write.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberline/catalogstore/internal/catalog/domain"
	"github.com/emberline/catalogstore/internal/engine"
	"github.com/emberline/catalogstore/internal/storage"
)

// Register wires every catalog projection handler into the dispatcher.
func Register(d *engine.Dispatcher) {
	d.RegisterHandler(domain.EventProductCreated, productCreated)
	d.RegisterHandler(domain.EventProductUpdated, productUpdated)
	d.RegisterHandler(domain.EventProductCollectionAssigned, productCollectionAssigned)
	d.RegisterHandler(domain.EventProductArchived, productArchived)
	d.RegisterHandler(domain.EventCollectionCreated, collectionCreated)
	d.RegisterHandler(domain.EventCollectionUpdated, collectionUpdated)
	d.RegisterHandler(domain.EventCollectionArchived, collectionArchived)
}

func productCreated(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	state := payload.(*domain.ProductCreated).New
	if err := putProductView(ctx, scope, state, evt); err != nil {
		return err
	}
	if state.CollectionID != "" {
		return scope.Projections().AdjustCollectionProductCount(ctx, state.CollectionID, 1)
	}
	return nil
}

func productUpdated(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	return putProductView(ctx, scope, payload.(*domain.ProductUpdated).New, evt)
}

func productCollectionAssigned(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	assigned := payload.(*domain.ProductCollectionAssigned)
	if err := putProductView(ctx, scope, assigned.New, evt); err != nil {
		return err
	}
	if prior := assigned.Prior.CollectionID; prior != "" && prior != assigned.New.CollectionID {
		if err := scope.Projections().AdjustCollectionProductCount(ctx, prior, -1); err != nil {
			return err
		}
	}
	if assigned.Prior.CollectionID != assigned.New.CollectionID {
		return scope.Projections().AdjustCollectionProductCount(ctx, assigned.New.CollectionID, 1)
	}
	return nil
}

func productArchived(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	return putProductView(ctx, scope, payload.(*domain.ProductArchived).New, evt)
}

func collectionCreated(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	state := payload.(*domain.CollectionCreated).New

	// Products created before their collection carry a dangling collection
	// id. Creation repairs their denormalized name and counts them, in the
	// same unit of work.
	views, err := scope.Reader().ListProductViewsByCollection(ctx, state.ID)
	if err != nil {
		return fmt.Errorf("backfill collection %s: %w", state.ID, err)
	}
	if err := putCollectionView(ctx, scope, state, evt, int64(len(views))); err != nil {
		return err
	}
	if len(views) == 0 {
		return nil
	}
	return scope.Projections().SetProductViewCollectionName(ctx, state.ID, state.Name)
}

func collectionUpdated(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	updated := payload.(*domain.CollectionUpdated)
	count, err := committedProductCount(ctx, scope, updated.New.ID)
	if err != nil {
		return err
	}
	if err := putCollectionView(ctx, scope, updated.New, evt, count); err != nil {
		return err
	}
	if updated.Prior.Name != updated.New.Name {
		return scope.Projections().SetProductViewCollectionName(ctx, updated.New.ID, updated.New.Name)
	}
	return nil
}

func collectionArchived(ctx context.Context, scope *engine.Scope, evt storage.EventRecord) error {
	payload, err := decode(evt)
	if err != nil {
		return err
	}
	state := payload.(*domain.CollectionArchived).New
	count, err := committedProductCount(ctx, scope, state.ID)
	if err != nil {
		return err
	}
	return putCollectionView(ctx, scope, state, evt, count)
}

func putProductView(ctx context.Context, scope *engine.Scope, state domain.ProductState, evt storage.EventRecord) error {
	collectionName, err := resolveCollectionName(ctx, scope, state.CollectionID)
	if err != nil {
		return err
	}
	return scope.Projections().PutProductView(ctx, storage.ProductViewRecord{
		ProductID:      state.ID,
		Slug:           state.Slug,
		SKU:            state.SKU,
		Name:           state.Name,
		Status:         string(state.Status),
		PriceCents:     state.PriceCents,
		CollectionID:   state.CollectionID,
		CollectionName: collectionName,
		Version:        evt.Version,
		CorrelationID:  evt.CorrelationID,
		CreatedAt:      state.CreatedAt,
		UpdatedAt:      state.UpdatedAt,
	})
}

func putCollectionView(ctx context.Context, scope *engine.Scope, state domain.CollectionState, evt storage.EventRecord, productCount int64) error {
	return scope.Projections().PutCollectionView(ctx, storage.CollectionViewRecord{
		CollectionID:  state.ID,
		Slug:          state.Slug,
		Name:          state.Name,
		Status:        string(state.Status),
		ProductCount:  productCount,
		Version:       evt.Version,
		CorrelationID: evt.CorrelationID,
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
	})
}

// resolveCollectionName reads the committed collection view. A missing
// collection is not an error; the name stays empty until the collection is
// created and backfills it.
func resolveCollectionName(ctx context.Context, scope *engine.Scope, collectionID string) (string, error) {
	if collectionID == "" {
		return "", nil
	}
	view, err := scope.Reader().GetCollectionView(ctx, collectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve collection %s: %w", collectionID, err)
	}
	return view.Name, nil
}

func committedProductCount(ctx context.Context, scope *engine.Scope, collectionID string) (int64, error) {
	view, err := scope.Reader().GetCollectionView(ctx, collectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read collection view %s: %w", collectionID, err)
	}
	return view.ProductCount, nil
}

func decode(evt storage.EventRecord) (domain.Payload, error) {
	payload, err := domain.DecodeEvent(evt.EventType, evt.PayloadJSON)
	if err != nil {
		return nil, fmt.Errorf("project %s@%d: %w", evt.AggregateID, evt.Version, err)
	}
	return payload, nil
}
