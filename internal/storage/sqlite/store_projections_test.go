package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/emberline/catalogstore/internal/storage"
)

func TestPutProductViewAndLookups(t *testing.T) {
	store := openTestStore(t)

	view := testProductView("prod-1", "red-mug", "SKU-001", "")
	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutProductView(context.Background(), view)
	})

	byID, err := store.GetProductView(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Slug != "red-mug" {
		t.Fatalf("expected slug to round trip, got %q", byID.Slug)
	}

	bySlug, err := store.GetProductViewBySlug(context.Background(), "red-mug")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if bySlug.ProductID != "prod-1" {
		t.Fatalf("expected product id from slug lookup, got %q", bySlug.ProductID)
	}

	bySKU, err := store.GetProductViewBySKU(context.Background(), "SKU-001")
	if err != nil {
		t.Fatalf("get by sku: %v", err)
	}
	if bySKU.ProductID != "prod-1" {
		t.Fatalf("expected product id from sku lookup, got %q", bySKU.ProductID)
	}
}

func TestPutProductViewUpserts(t *testing.T) {
	store := openTestStore(t)

	view := testProductView("prod-up", "blue-mug", "SKU-002", "")
	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutProductView(context.Background(), view)
	})

	view.Name = "Renamed"
	view.Version = 1
	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutProductView(context.Background(), view)
	})

	got, err := store.GetProductView(context.Background(), "prod-up")
	if err != nil {
		t.Fatalf("get product view: %v", err)
	}
	if got.Name != "Renamed" || got.Version != 1 {
		t.Fatalf("expected upserted row, got name %q version %d", got.Name, got.Version)
	}
}

func TestPutProductViewUniqueSlugAndSKU(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutProductView(context.Background(), testProductView("prod-a", "same-slug", "SKU-A", ""))
	})

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	err = tx.PutProductView(context.Background(), testProductView("prod-b", "same-slug", "SKU-B", ""))
	if !errors.Is(err, storage.ErrDuplicateVersion) {
		t.Fatalf("expected unique violation on slug, got %v", err)
	}
	_ = tx.Rollback()

	tx, err = store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	err = tx.PutProductView(context.Background(), testProductView("prod-c", "other-slug", "SKU-A", ""))
	if !errors.Is(err, storage.ErrDuplicateVersion) {
		t.Fatalf("expected unique violation on sku, got %v", err)
	}
	_ = tx.Rollback()
}

func TestListProductViewsByCollection(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		if err := tx.PutProductView(context.Background(), testProductView("prod-1", "slug-1", "SKU-1", "coll-1")); err != nil {
			return err
		}
		if err := tx.PutProductView(context.Background(), testProductView("prod-2", "slug-2", "SKU-2", "coll-1")); err != nil {
			return err
		}
		return tx.PutProductView(context.Background(), testProductView("prod-3", "slug-3", "SKU-3", "coll-2"))
	})

	views, err := store.ListProductViewsByCollection(context.Background(), "coll-1")
	if err != nil {
		t.Fatalf("list by collection: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 products in collection, got %d", len(views))
	}
}

func TestSetProductViewCollectionName(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		if err := tx.PutProductView(context.Background(), testProductView("prod-1", "slug-1", "SKU-1", "coll-1")); err != nil {
			return err
		}
		return tx.PutProductView(context.Background(), testProductView("prod-2", "slug-2", "SKU-2", "coll-2"))
	})

	commitTx(t, store, func(tx storage.Tx) error {
		return tx.SetProductViewCollectionName(context.Background(), "coll-1", "Summer Sale")
	})

	repaired, err := store.GetProductView(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("get repaired view: %v", err)
	}
	if repaired.CollectionName != "Summer Sale" {
		t.Fatalf("expected backfilled collection name, got %q", repaired.CollectionName)
	}

	untouched, err := store.GetProductView(context.Background(), "prod-2")
	if err != nil {
		t.Fatalf("get untouched view: %v", err)
	}
	if untouched.CollectionName != "" {
		t.Fatalf("expected other collection untouched, got %q", untouched.CollectionName)
	}
}

func TestAdjustCollectionProductCount(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutCollectionView(context.Background(), testCollectionView("coll-1", "summer"))
	})

	commitTx(t, store, func(tx storage.Tx) error {
		if err := tx.AdjustCollectionProductCount(context.Background(), "coll-1", 2); err != nil {
			return err
		}
		return tx.AdjustCollectionProductCount(context.Background(), "coll-1", -1)
	})

	got, err := store.GetCollectionView(context.Background(), "coll-1")
	if err != nil {
		t.Fatalf("get collection view: %v", err)
	}
	if got.ProductCount != 1 {
		t.Fatalf("expected product count 1, got %d", got.ProductCount)
	}
}

func TestGetCollectionViewBySlug(t *testing.T) {
	store := openTestStore(t)

	commitTx(t, store, func(tx storage.Tx) error {
		return tx.PutCollectionView(context.Background(), testCollectionView("coll-slug", "winter"))
	})

	got, err := store.GetCollectionViewBySlug(context.Background(), "winter")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if got.CollectionID != "coll-slug" {
		t.Fatalf("expected collection id from slug lookup, got %q", got.CollectionID)
	}

	_, err = store.GetCollectionViewBySlug(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
