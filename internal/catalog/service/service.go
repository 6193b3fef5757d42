// Package service exposes the catalog commands. Every command loads the
// aggregate from its snapshot, checks the caller's expected version, applies
// the change, and commits events, snapshot, outbox rows, and projections as
// one logical unit of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberline/catalogstore/internal/catalog/domain"
	"github.com/emberline/catalogstore/internal/engine"
	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/platform/id"
	"github.com/emberline/catalogstore/internal/storage"
)

// CommandMeta carries request context stamped onto everything a command
// writes.
type CommandMeta struct {
	CorrelationID string
	UserID        string
}

// ProductResult is the committed state a product command returns.
type ProductResult struct {
	State   domain.ProductState
	Version int64
}

// CollectionResult is the committed state a collection command returns.
type CollectionResult struct {
	State   domain.CollectionState
	Version int64
}

// Service runs catalog commands through a unit of work.
type Service struct {
	uow    *engine.UnitOfWork
	reader storage.Reader
	now    func() time.Time
	newID  func() (string, error)
}

func New(uow *engine.UnitOfWork, reader storage.Reader) *Service {
	return &Service{
		uow:    uow,
		reader: reader,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  id.NewID,
	}
}

// CreateProductInput carries the caller-supplied fields for a new product.
type CreateProductInput struct {
	Slug         string
	SKU          string
	Name         string
	Description  string
	PriceCents   int64
	CollectionID string
}

// CreateProduct creates a draft product. The slug and sku must be unused;
// the read models are checked first and the unique indexes backstop races.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput, meta CommandMeta) (ProductResult, error) {
	if err := ctx.Err(); err != nil {
		return ProductResult{}, err
	}
	return engine.Execute(ctx, s.uow, func(ctx context.Context, scope *engine.Scope) (ProductResult, error) {
		if err := s.checkProductSlugFree(ctx, in.Slug); err != nil {
			return ProductResult{}, err
		}
		if err := s.checkProductSKUFree(ctx, in.SKU); err != nil {
			return ProductResult{}, err
		}
		productID, err := s.newID()
		if err != nil {
			return ProductResult{}, fmt.Errorf("generate product id: %w", err)
		}
		product, err := domain.NewProduct(domain.CreateProductParams{
			ID:           productID,
			Slug:         in.Slug,
			SKU:          in.SKU,
			Name:         in.Name,
			Description:  in.Description,
			PriceCents:   in.PriceCents,
			CollectionID: in.CollectionID,
			Now:          s.now(),
		})
		if err != nil {
			return ProductResult{}, err
		}
		if err := scope.CommitAggregate(ctx, product, s.commitMeta(meta)); err != nil {
			return ProductResult{}, err
		}
		return ProductResult{State: product.State(), Version: product.Version()}, nil
	})
}

// RenameProduct changes a product's name at the expected version.
func (s *Service) RenameProduct(ctx context.Context, productID string, expectedVersion int64, name string, meta CommandMeta) (ProductResult, error) {
	return s.mutateProduct(ctx, productID, expectedVersion, meta, func(p *domain.Product, now time.Time) error {
		return p.Rename(name, now)
	})
}

// RepriceProduct changes a product's price at the expected version.
func (s *Service) RepriceProduct(ctx context.Context, productID string, expectedVersion int64, priceCents int64, meta CommandMeta) (ProductResult, error) {
	return s.mutateProduct(ctx, productID, expectedVersion, meta, func(p *domain.Product, now time.Time) error {
		return p.Reprice(priceCents, now)
	})
}

// AssignProductToCollection moves a product into a collection at the
// expected version. The collection may not exist yet; its later creation
// backfills the denormalized name.
func (s *Service) AssignProductToCollection(ctx context.Context, productID string, expectedVersion int64, collectionID string, meta CommandMeta) (ProductResult, error) {
	return s.mutateProduct(ctx, productID, expectedVersion, meta, func(p *domain.Product, now time.Time) error {
		return p.AssignToCollection(collectionID, now)
	})
}

// ActivateProduct publishes a draft product at the expected version.
func (s *Service) ActivateProduct(ctx context.Context, productID string, expectedVersion int64, meta CommandMeta) (ProductResult, error) {
	return s.mutateProduct(ctx, productID, expectedVersion, meta, func(p *domain.Product, now time.Time) error {
		return p.Activate(now)
	})
}

// ArchiveProduct retires a product at the expected version.
func (s *Service) ArchiveProduct(ctx context.Context, productID string, expectedVersion int64, meta CommandMeta) (ProductResult, error) {
	return s.mutateProduct(ctx, productID, expectedVersion, meta, func(p *domain.Product, now time.Time) error {
		return p.Archive(now)
	})
}

// CreateCollectionInput carries the caller-supplied fields for a new
// collection.
type CreateCollectionInput struct {
	Slug string
	Name string
}

// CreateCollection creates an active collection. The slug must be unused.
func (s *Service) CreateCollection(ctx context.Context, in CreateCollectionInput, meta CommandMeta) (CollectionResult, error) {
	if err := ctx.Err(); err != nil {
		return CollectionResult{}, err
	}
	return engine.Execute(ctx, s.uow, func(ctx context.Context, scope *engine.Scope) (CollectionResult, error) {
		if err := s.checkCollectionSlugFree(ctx, in.Slug); err != nil {
			return CollectionResult{}, err
		}
		collectionID, err := s.newID()
		if err != nil {
			return CollectionResult{}, fmt.Errorf("generate collection id: %w", err)
		}
		collection, err := domain.NewCollection(domain.CreateCollectionParams{
			ID:   collectionID,
			Slug: in.Slug,
			Name: in.Name,
			Now:  s.now(),
		})
		if err != nil {
			return CollectionResult{}, err
		}
		if err := scope.CommitAggregate(ctx, collection, s.commitMeta(meta)); err != nil {
			return CollectionResult{}, err
		}
		return CollectionResult{State: collection.State(), Version: collection.Version()}, nil
	})
}

// RenameCollection changes a collection's name at the expected version.
func (s *Service) RenameCollection(ctx context.Context, collectionID string, expectedVersion int64, name string, meta CommandMeta) (CollectionResult, error) {
	return s.mutateCollection(ctx, collectionID, expectedVersion, meta, func(c *domain.Collection, now time.Time) error {
		return c.Rename(name, now)
	})
}

// ArchiveCollection retires a collection at the expected version.
func (s *Service) ArchiveCollection(ctx context.Context, collectionID string, expectedVersion int64, meta CommandMeta) (CollectionResult, error) {
	return s.mutateCollection(ctx, collectionID, expectedVersion, meta, func(c *domain.Collection, now time.Time) error {
		return c.Archive(now)
	})
}

func (s *Service) mutateProduct(ctx context.Context, productID string, expectedVersion int64, meta CommandMeta, op func(*domain.Product, time.Time) error) (ProductResult, error) {
	if err := ctx.Err(); err != nil {
		return ProductResult{}, err
	}
	return engine.Execute(ctx, s.uow, func(ctx context.Context, scope *engine.Scope) (ProductResult, error) {
		snap, err := scope.Reader().GetSnapshot(ctx, productID)
		if err != nil {
			return ProductResult{}, fmt.Errorf("load product %s: %w", productID, err)
		}
		product, err := domain.LoadProductFromSnapshot(snap)
		if err != nil {
			return ProductResult{}, err
		}
		if err := engine.CheckVersion(productID, expectedVersion, product.Version()); err != nil {
			return ProductResult{}, err
		}
		if err := op(product, s.now()); err != nil {
			return ProductResult{}, err
		}
		if err := scope.CommitAggregate(ctx, product, s.commitMeta(meta)); err != nil {
			return ProductResult{}, err
		}
		return ProductResult{State: product.State(), Version: product.Version()}, nil
	})
}

func (s *Service) mutateCollection(ctx context.Context, collectionID string, expectedVersion int64, meta CommandMeta, op func(*domain.Collection, time.Time) error) (CollectionResult, error) {
	if err := ctx.Err(); err != nil {
		return CollectionResult{}, err
	}
	return engine.Execute(ctx, s.uow, func(ctx context.Context, scope *engine.Scope) (CollectionResult, error) {
		snap, err := scope.Reader().GetSnapshot(ctx, collectionID)
		if err != nil {
			return CollectionResult{}, fmt.Errorf("load collection %s: %w", collectionID, err)
		}
		collection, err := domain.LoadCollectionFromSnapshot(snap)
		if err != nil {
			return CollectionResult{}, err
		}
		if err := engine.CheckVersion(collectionID, expectedVersion, collection.Version()); err != nil {
			return CollectionResult{}, err
		}
		if err := op(collection, s.now()); err != nil {
			return CollectionResult{}, err
		}
		if err := scope.CommitAggregate(ctx, collection, s.commitMeta(meta)); err != nil {
			return CollectionResult{}, err
		}
		return CollectionResult{State: collection.State(), Version: collection.Version()}, nil
	})
}

func (s *Service) commitMeta(meta CommandMeta) engine.CommitMeta {
	return engine.CommitMeta{
		CorrelationID: meta.CorrelationID,
		UserID:        meta.UserID,
		Now:           s.now(),
	}
}

func (s *Service) checkProductSlugFree(ctx context.Context, slug string) error {
	_, err := s.reader.GetProductViewBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check product slug %q: %w", slug, err)
	}
	return apperrors.WithMetadata(apperrors.CodeProductSlugTaken, "product slug already in use", map[string]string{"slug": slug})
}

func (s *Service) checkProductSKUFree(ctx context.Context, sku string) error {
	_, err := s.reader.GetProductViewBySKU(ctx, sku)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check product sku %q: %w", sku, err)
	}
	return apperrors.WithMetadata(apperrors.CodeProductSkuTaken, "product sku already in use", map[string]string{"sku": sku})
}

func (s *Service) checkCollectionSlugFree(ctx context.Context, slug string) error {
	_, err := s.reader.GetCollectionViewBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check collection slug %q: %w", slug, err)
	}
	return apperrors.WithMetadata(apperrors.CodeCollectionSlugTaken, "collection slug already in use", map[string]string{"slug": slug})
}
