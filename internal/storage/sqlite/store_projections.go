package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/emberline/catalogstore/internal/storage"
)

// PutProductView upserts one product read-model row inside the transaction.
func (t *Tx) PutProductView(ctx context.Context, view storage.ProductViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(view.ProductID) == "" {
		return fmt.Errorf("product id is required")
	}

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO product_views (product_id, slug, sku, name, status, price_cents, collection_id, collection_name, version, correlation_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(product_id) DO UPDATE SET
    slug = excluded.slug,
    sku = excluded.sku,
    name = excluded.name,
    status = excluded.status,
    price_cents = excluded.price_cents,
    collection_id = excluded.collection_id,
    collection_name = excluded.collection_name,
    version = excluded.version,
    correlation_id = excluded.correlation_id,
    updated_at = excluded.updated_at
`,
		view.ProductID,
		view.Slug,
		view.SKU,
		view.Name,
		view.Status,
		view.PriceCents,
		view.CollectionID,
		view.CollectionName,
		view.Version,
		view.CorrelationID,
		toMillis(view.CreatedAt),
		toMillis(view.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "product_views") {
			return fmt.Errorf("put product view %s: %w", view.ProductID, storage.ErrDuplicateVersion)
		}
		return fmt.Errorf("put product view: %w", err)
	}
	return nil
}

// PutCollectionView upserts one collection read-model row inside the transaction.
func (t *Tx) PutCollectionView(ctx context.Context, view storage.CollectionViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(view.CollectionID) == "" {
		return fmt.Errorf("collection id is required")
	}

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO collection_views (collection_id, slug, name, status, product_count, version, correlation_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(collection_id) DO UPDATE SET
    slug = excluded.slug,
    name = excluded.name,
    status = excluded.status,
    product_count = excluded.product_count,
    version = excluded.version,
    correlation_id = excluded.correlation_id,
    updated_at = excluded.updated_at
`,
		view.CollectionID,
		view.Slug,
		view.Name,
		view.Status,
		view.ProductCount,
		view.Version,
		view.CorrelationID,
		toMillis(view.CreatedAt),
		toMillis(view.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "collection_views") {
			return fmt.Errorf("put collection view %s: %w", view.CollectionID, storage.ErrDuplicateVersion)
		}
		return fmt.Errorf("put collection view: %w", err)
	}
	return nil
}

// SetProductViewCollectionName repairs the denormalized collection name on
// every product row referencing collectionID. Used by the retroactive
// backfill when a collection is created after products already reference it.
func (t *Tx) SetProductViewCollectionName(ctx context.Context, collectionID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(collectionID) == "" {
		return fmt.Errorf("collection id is required")
	}

	_, err := t.tx.ExecContext(ctx, `
UPDATE product_views
SET collection_name = ?
WHERE collection_id = ?
`, name, collectionID)
	if err != nil {
		return fmt.Errorf("set product view collection name: %w", err)
	}
	return nil
}

// AdjustCollectionProductCount shifts a collection's product counter.
func (t *Tx) AdjustCollectionProductCount(ctx context.Context, collectionID string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	if strings.TrimSpace(collectionID) == "" {
		return fmt.Errorf("collection id is required")
	}

	_, err := t.tx.ExecContext(ctx, `
UPDATE collection_views
SET product_count = product_count + ?
WHERE collection_id = ?
`, delta, collectionID)
	if err != nil {
		return fmt.Errorf("adjust collection product count: %w", err)
	}
	return nil
}

// GetProductView retrieves one product read-model row by id.
func (s *Store) GetProductView(ctx context.Context, productID string) (storage.ProductViewRecord, error) {
	return s.getProductView(ctx, "product_id", productID)
}

// GetProductViewBySlug retrieves one product read-model row by slug.
func (s *Store) GetProductViewBySlug(ctx context.Context, slug string) (storage.ProductViewRecord, error) {
	return s.getProductView(ctx, "slug", slug)
}

// GetProductViewBySKU retrieves one product read-model row by SKU.
func (s *Store) GetProductViewBySKU(ctx context.Context, sku string) (storage.ProductViewRecord, error) {
	return s.getProductView(ctx, "sku", sku)
}

func (s *Store) getProductView(ctx context.Context, column, value string) (storage.ProductViewRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProductViewRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProductViewRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(value) == "" {
		return storage.ProductViewRecord{}, fmt.Errorf("%s is required", column)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT product_id, slug, sku, name, status, price_cents, collection_id, collection_name, version, correlation_id, created_at, updated_at
FROM product_views
WHERE `+column+` = ?
`, value)
	view, err := scanProductView(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProductViewRecord{}, storage.ErrNotFound
		}
		return storage.ProductViewRecord{}, fmt.Errorf("get product view by %s: %w", column, err)
	}
	return view, nil
}

// ListProductViewsByCollection returns product rows referencing a collection,
// ordered by creation time for stable backfill scans.
func (s *Store) ListProductViewsByCollection(ctx context.Context, collectionID string) ([]storage.ProductViewRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(collectionID) == "" {
		return nil, fmt.Errorf("collection id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT product_id, slug, sku, name, status, price_cents, collection_id, collection_name, version, correlation_id, created_at, updated_at
FROM product_views
WHERE collection_id = ?
ORDER BY created_at ASC, product_id ASC
`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list product views by collection: %w", err)
	}
	defer rows.Close()

	var views []storage.ProductViewRecord
	for rows.Next() {
		view, err := scanProductView(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan product view: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product views: %w", err)
	}
	return views, nil
}

// GetCollectionView retrieves one collection read-model row by id.
func (s *Store) GetCollectionView(ctx context.Context, collectionID string) (storage.CollectionViewRecord, error) {
	return s.getCollectionView(ctx, "collection_id", collectionID)
}

// GetCollectionViewBySlug retrieves one collection read-model row by slug.
func (s *Store) GetCollectionViewBySlug(ctx context.Context, slug string) (storage.CollectionViewRecord, error) {
	return s.getCollectionView(ctx, "slug", slug)
}

func (s *Store) getCollectionView(ctx context.Context, column, value string) (storage.CollectionViewRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CollectionViewRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CollectionViewRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(value) == "" {
		return storage.CollectionViewRecord{}, fmt.Errorf("%s is required", column)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT collection_id, slug, name, status, product_count, version, correlation_id, created_at, updated_at
FROM collection_views
WHERE `+column+` = ?
`, value)
	view, err := scanCollectionView(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CollectionViewRecord{}, storage.ErrNotFound
		}
		return storage.CollectionViewRecord{}, fmt.Errorf("get collection view by %s: %w", column, err)
	}
	return view, nil
}

func scanProductView(scan func(dest ...any) error) (storage.ProductViewRecord, error) {
	var view storage.ProductViewRecord
	var createdAt, updatedAt int64
	if err := scan(
		&view.ProductID,
		&view.Slug,
		&view.SKU,
		&view.Name,
		&view.Status,
		&view.PriceCents,
		&view.CollectionID,
		&view.CollectionName,
		&view.Version,
		&view.CorrelationID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ProductViewRecord{}, err
	}
	view.CreatedAt = fromMillis(createdAt)
	view.UpdatedAt = fromMillis(updatedAt)
	return view, nil
}

func scanCollectionView(scan func(dest ...any) error) (storage.CollectionViewRecord, error) {
	var view storage.CollectionViewRecord
	var createdAt, updatedAt int64
	if err := scan(
		&view.CollectionID,
		&view.Slug,
		&view.Name,
		&view.Status,
		&view.ProductCount,
		&view.Version,
		&view.CorrelationID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.CollectionViewRecord{}, err
	}
	view.CreatedAt = fromMillis(createdAt)
	view.UpdatedAt = fromMillis(updatedAt)
	return view, nil
}
