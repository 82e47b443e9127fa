package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"godown/internal/core/id"
	"godown/internal/domain/sales"
	"godown/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "doc_sales"
	saleLinesTable = "doc_sale_lines"
)

var saleLineCols = []string{
	"id", "sale_id", "product_id", "sub_product_id", "unit_id",
	"product_name", "quantity_sold", "quantity_on_order",
}

// Compile-time check that SaleRepo implements sales.Repository.
var _ sales.Repository = (*SaleRepo)(nil)

// SaleRepo implements sales.Repository.
type SaleRepo struct {
	*BaseDocumentRepo[*sales.Sale]
	txManager *postgres.TxManager
}

// NewSaleRepo creates a new sale repository.
func NewSaleRepo(txManager *postgres.TxManager) *SaleRepo {
	return &SaleRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			salesTable,
			postgres.ExtractDBColumns[sales.Sale](),
			func() *sales.Sale { return &sales.Sale{} },
		),
		txManager: txManager,
	}
}

// CreateSale inserts the sale header and lines atomically.
func (r *SaleRepo) CreateSale(ctx context.Context, sale *sales.Sale) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, sale); err != nil {
			return err
		}
		return r.insertLines(ctx, sale)
	})
}

func (r *SaleRepo) insertLines(ctx context.Context, sale *sales.Sale) error {
	if len(sale.Lines) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(sale.Lines))
		for _, l := range sale.Lines {
			rows = append(rows, []any{
				l.ID, sale.ID, l.ProductID, l.SubProductID, l.UnitID,
				l.ProductName, l.QuantitySold, l.QuantityOnOrder,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, saleLinesTable, saleLineCols, rows); err != nil {
			return fmt.Errorf("copy sale lines: %w", err)
		}
		return nil
	}

	q := r.Builder().
		Insert(saleLinesTable).
		Columns(saleLineCols...)
	for _, l := range sale.Lines {
		q = q.Values(l.ID, sale.ID, l.ProductID, l.SubProductID, l.UnitID,
			l.ProductName, l.QuantitySold, l.QuantityOnOrder)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale lines: %w", err)
	}
	return nil
}

// GetSale returns a sale with its lines. Deleted sales come back marked.
func (r *SaleRepo) GetSale(ctx context.Context, saleID id.ID) (*sales.Sale, error) {
	sale, err := r.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, []*sales.Sale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

// UpdateSale rewrites the header with optimistic locking and replaces lines.
func (r *SaleRepo) UpdateSale(ctx context.Context, sale *sales.Sale, expectedVersion int) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Update(ctx, sale, expectedVersion); err != nil {
			return err
		}

		del := r.Builder().
			Delete(saleLinesTable).
			Where(squirrel.Eq{"sale_id": sale.ID})

		sql, args, err := del.ToSql()
		if err != nil {
			return fmt.Errorf("build delete lines: %w", err)
		}
		if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete sale lines: %w", err)
		}

		return r.insertLines(ctx, sale)
	})
}

// ListSales returns sales matching the filter, newest first.
func (r *SaleRepo) ListSales(ctx context.Context, filter sales.Filter) ([]*sales.Sale, error) {
	q := r.Builder().
		Select(postgres.ExtractDBColumns[sales.Sale]()...).
		From(salesTable).
		OrderBy("date DESC", "created_at DESC")

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.CustomerPhone != "" {
		q = q.Where(squirrel.ILike{"customer_phone": "%" + filter.CustomerPhone + "%"})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.ToDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var list []*sales.Sale
	if err := pgxscan.Select(ctx, r.Querier(ctx), &list, sql, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	if err := r.loadLines(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadLines attaches line items to the given sales.
func (r *SaleRepo) loadLines(ctx context.Context, list []*sales.Sale) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(list))
	byID := make(map[id.ID]*sales.Sale, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
		byID[s.ID] = s
		s.Lines = nil
	}

	q := r.Builder().
		Select(saleLineCols...).
		From(saleLinesTable).
		Where(squirrel.Eq{"sale_id": ids}).
		OrderBy("sale_id", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	var lines []sales.LineItem
	if err := pgxscan.Select(ctx, r.Querier(ctx), &lines, sql, args...); err != nil {
		return fmt.Errorf("load sale lines: %w", err)
	}

	for _, l := range lines {
		if s, ok := byID[l.SaleID]; ok {
			s.Lines = append(s.Lines, l)
		}
	}
	return nil
}
