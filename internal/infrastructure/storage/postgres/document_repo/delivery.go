package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/domain/delivery"
	"godown/internal/infrastructure/storage/postgres"
)

const (
	deliveryStatesTable = "reg_delivery_states"
	challansTable       = "doc_challans"
	challanItemsTable   = "doc_challan_items"
)

var challanItemCols = []string{
	"id", "challan_id", "line_item_id", "product_id", "sub_product_id",
	"unit_id", "product_name", "quantity",
}

// Compile-time check that DeliveryRepo implements delivery.Repository.
var _ delivery.Repository = (*DeliveryRepo)(nil)

// DeliveryRepo implements delivery.Repository: per-line fulfillment states
// plus the insert-only challan documents.
type DeliveryRepo struct {
	*BaseDocumentRepo[*delivery.Challan]
	txManager *postgres.TxManager
	stateCols []string
}

// NewDeliveryRepo creates a new delivery repository.
func NewDeliveryRepo(txManager *postgres.TxManager) *DeliveryRepo {
	return &DeliveryRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			challansTable,
			postgres.ExtractDBColumns[delivery.Challan](),
			func() *delivery.Challan { return &delivery.Challan{} },
		),
		txManager: txManager,
		stateCols: postgres.ExtractDBColumns[delivery.State](),
	}
}

// --- Fulfillment states ---

// CreateState inserts the implicit zero-delivered state for a new line.
func (r *DeliveryRepo) CreateState(ctx context.Context, state delivery.State) error {
	q := r.Builder().
		Insert(deliveryStatesTable).
		SetMap(postgres.StructToMap(state))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate(deliveryStatesTable, "line_item_id", state.LineItemID.String()).WithCause(err)
		}
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

// GetState returns the fulfillment state for a line item.
func (r *DeliveryRepo) GetState(ctx context.Context, lineItemID id.ID) (delivery.State, error) {
	q := r.Builder().
		Select(r.stateCols...).
		From(deliveryStatesTable).
		Where(squirrel.Eq{"line_item_id": lineItemID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return delivery.State{}, fmt.Errorf("build query: %w", err)
	}

	var state delivery.State
	if err := pgxscan.Get(ctx, r.Querier(ctx), &state, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return delivery.State{}, apperror.NewNotFound("delivery state", lineItemID.String())
		}
		return delivery.State{}, fmt.Errorf("get state: %w", err)
	}
	return state, nil
}

// GetStatesBySale returns all line states of a sale.
func (r *DeliveryRepo) GetStatesBySale(ctx context.Context, saleID id.ID) ([]delivery.State, error) {
	q := r.Builder().
		Select(r.stateCols...).
		From(deliveryStatesTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("line_item_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var states []delivery.State
	if err := pgxscan.Select(ctx, r.Querier(ctx), &states, sql, args...); err != nil {
		return nil, fmt.Errorf("get states by sale: %w", err)
	}
	return states, nil
}

// UpdateState writes a state conditionally on expectedVersion.
func (r *DeliveryRepo) UpdateState(ctx context.Context, state delivery.State, expectedVersion int) error {
	data := postgres.StructToMap(state)
	delete(data, "line_item_id")

	q := r.Builder().
		Update(deliveryStatesTable).
		SetMap(data).
		Where(squirrel.Eq{"line_item_id": state.LineItemID}).
		Where(squirrel.Eq{"version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(deliveryStatesTable, state.LineItemID)
	}
	return nil
}

// DeleteStatesBySale removes the states of a deleted sale.
func (r *DeliveryRepo) DeleteStatesBySale(ctx context.Context, saleID id.ID) error {
	q := r.Builder().
		Delete(deliveryStatesTable).
		Where(squirrel.Eq{"sale_id": saleID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	return nil
}

// --- Challans ---

// CreateChallan inserts the challan with its items atomically.
func (r *DeliveryRepo) CreateChallan(ctx context.Context, challan *delivery.Challan) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, challan); err != nil {
			return err
		}
		return r.insertItems(ctx, challan)
	})
}

func (r *DeliveryRepo) insertItems(ctx context.Context, challan *delivery.Challan) error {
	if len(challan.Items) == 0 {
		return nil
	}

	// COPY fast path when inside a transaction.
	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(challan.Items))
		for _, it := range challan.Items {
			rows = append(rows, []any{
				it.ID, challan.ID, it.LineItemID, it.ProductID, it.SubProductID,
				it.UnitID, it.ProductName, it.Quantity,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, challanItemsTable, challanItemCols, rows); err != nil {
			return fmt.Errorf("copy challan items: %w", err)
		}
		return nil
	}

	q := r.Builder().
		Insert(challanItemsTable).
		Columns(challanItemCols...)
	for _, it := range challan.Items {
		q = q.Values(it.ID, challan.ID, it.LineItemID, it.ProductID, it.SubProductID,
			it.UnitID, it.ProductName, it.Quantity)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert challan items: %w", err)
	}
	return nil
}

// GetChallan returns a challan with items by surrogate ID.
func (r *DeliveryRepo) GetChallan(ctx context.Context, challanID id.ID) (*delivery.Challan, error) {
	ch, err := r.GetByID(ctx, challanID)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*delivery.Challan{ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChallanByNumber returns a challan with items by display label.
func (r *DeliveryRepo) GetChallanByNumber(ctx context.Context, number string) (*delivery.Challan, error) {
	ch, err := r.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*delivery.Challan{ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

// ChallanNumberExists reports whether a label is already taken.
func (r *DeliveryRepo) ChallanNumberExists(ctx context.Context, number string) (bool, error) {
	return r.NumberExists(ctx, number)
}

// ListChallans returns challans matching the filter, newest first.
func (r *DeliveryRepo) ListChallans(ctx context.Context, filter delivery.ChallanFilter) ([]*delivery.Challan, error) {
	q := r.Builder().
		Select(postgres.ExtractDBColumns[delivery.Challan]()...).
		From(challansTable).
		OrderBy("date DESC", "created_at DESC")

	if filter.SaleID != nil {
		q = q.Where(squirrel.Eq{"sale_id": *filter.SaleID})
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

	var list []*delivery.Challan
	if err := pgxscan.Select(ctx, r.Querier(ctx), &list, sql, args...); err != nil {
		return nil, fmt.Errorf("list challans: %w", err)
	}

	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadItems attaches items to the given challans.
func (r *DeliveryRepo) loadItems(ctx context.Context, list []*delivery.Challan) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(list))
	byID := make(map[id.ID]*delivery.Challan, len(list))
	for _, ch := range list {
		ids = append(ids, ch.ID)
		byID[ch.ID] = ch
		ch.Items = nil
	}

	q := r.Builder().
		Select(challanItemCols...).
		From(challanItemsTable).
		Where(squirrel.Eq{"challan_id": ids}).
		OrderBy("challan_id", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build items query: %w", err)
	}

	var items []delivery.ChallanItem
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return fmt.Errorf("load challan items: %w", err)
	}

	for _, it := range items {
		if ch, ok := byID[it.ChallanID]; ok {
			ch.Items = append(ch.Items, it)
		}
	}
	return nil
}
