package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/domain"
	"godown/internal/domain/catalogs/product"
	"godown/internal/infrastructure/storage/postgres"
)

const (
	productsTable     = "cat_products"
	productPartsTable = "cat_product_parts"
)

// Compile-time check that ProductRepo implements product.Repository.
var _ product.Repository = (*ProductRepo)(nil)

// ProductRepo implements product.Repository.
// Sub-products live in a separate lines table and are loaded on every read,
// ordered by line_no.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
	txManager *postgres.TxManager
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			productsTable,
			postgres.ExtractDBColumns[product.Product](),
			func() *product.Product { return &product.Product{} },
		),
		txManager: txManager,
	}
}

// subProductRow carries the owning product alongside the line fields.
type subProductRow struct {
	ProductID id.ID `db:"product_id"`
	product.SubProduct
}

// Create inserts the product header and its sub-product lines atomically.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseCatalogRepo.Create(ctx, p); err != nil {
			return err
		}
		return r.insertSubProducts(ctx, p)
	})
}

// Update rewrites the product header and replaces its sub-product lines.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseCatalogRepo.Update(ctx, p); err != nil {
			return err
		}

		del := r.Builder().
			Delete(productPartsTable).
			Where(squirrel.Eq{"product_id": p.ID})

		sql, args, err := del.ToSql()
		if err != nil {
			return fmt.Errorf("build delete parts: %w", err)
		}
		if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete parts: %w", err)
		}

		return r.insertSubProducts(ctx, p)
	})
}

func (r *ProductRepo) insertSubProducts(ctx context.Context, p *product.Product) error {
	if len(p.SubProducts) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(productPartsTable).
		Columns("product_id", "sub_product_id", "line_no", "name", "required_per_set")

	for _, sp := range p.SubProducts {
		q = q.Values(p.ID, sp.SubProductID, sp.LineNo, sp.Name, sp.RequiredPerSet)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert parts: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert parts: %w", err)
	}
	return nil
}

// GetByID retrieves a product with its sub-products.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, err := r.BaseCatalogRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := r.loadSubProducts(ctx, []*product.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByCode retrieves a product by code with its sub-products.
func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	p, err := r.BaseCatalogRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := r.loadSubProducts(ctx, []*product.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves products with sub-products loaded in one extra round trip.
func (r *ProductRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	result, err := r.BaseCatalogRepo.List(ctx, filter)
	if err != nil {
		return result, err
	}
	if err := r.loadSubProducts(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}

// GetBySubProductID resolves the set that owns a sub-product stock unit.
func (r *ProductRepo) GetBySubProductID(ctx context.Context, subProductID id.ID) (*product.Product, error) {
	q := r.Builder().
		Select("product_id").
		From(productPartsTable).
		Where(squirrel.Eq{"sub_product_id": subProductID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var productID id.ID
	if err := r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&productID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sub-product", subProductID.String())
		}
		return nil, fmt.Errorf("get by sub-product: %w", err)
	}

	return r.GetByID(ctx, productID)
}

// ListSets returns all non-deleted set products with their parts.
func (r *ProductRepo) ListSets(ctx context.Context) ([]*product.Product, error) {
	q := r.Builder().
		Select(postgres.ExtractDBColumns[product.Product]()...).
		From(productsTable).
		Where(squirrel.Eq{"kind": product.KindSet}).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("name ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sets []*product.Product
	if err := pgxscan.Select(ctx, r.Querier(ctx), &sets, sql, args...); err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	if err := r.loadSubProducts(ctx, sets); err != nil {
		return nil, err
	}
	return sets, nil
}

// loadSubProducts attaches sub-product lines to the given products.
func (r *ProductRepo) loadSubProducts(ctx context.Context, products []*product.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(products))
	byID := make(map[id.ID]*product.Product, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		byID[p.ID] = p
		p.SubProducts = nil
	}

	q := r.Builder().
		Select("product_id", "sub_product_id", "line_no", "name", "required_per_set").
		From(productPartsTable).
		Where(squirrel.Eq{"product_id": ids}).
		OrderBy("product_id", "line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build parts query: %w", err)
	}

	var rows []subProductRow
	if err := pgxscan.Select(ctx, r.Querier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load parts: %w", err)
	}

	for _, row := range rows {
		if p, ok := byID[row.ProductID]; ok {
			p.SubProducts = append(p.SubProducts, row.SubProduct)
		}
	}
	return nil
}
