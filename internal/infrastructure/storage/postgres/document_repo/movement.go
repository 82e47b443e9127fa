package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain/movements"
	"godown/internal/infrastructure/storage/postgres"
)

const (
	movementsTable     = "doc_movements"
	movementItemsTable = "doc_movement_items"
	itemRequestsTable  = "reg_item_requests"
)

// Compile-time check that MovementRepo implements movements.Repository.
var _ movements.Repository = (*MovementRepo)(nil)

// MovementRepo implements movements.Repository: outgoing movement documents,
// their items, and the physical item requests raised at receiving stores.
type MovementRepo struct {
	*BaseDocumentRepo[*movements.Movement]
	txManager   *postgres.TxManager
	itemCols    []string
	requestCols []string
}

// NewMovementRepo creates a new outgoing movement repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			movementsTable,
			postgres.ExtractDBColumns[movements.Movement](),
			func() *movements.Movement { return &movements.Movement{} },
		),
		txManager:   txManager,
		itemCols:    postgres.ExtractDBColumns[movements.Item](),
		requestCols: postgres.ExtractDBColumns[movements.PhysicalItemRequest](),
	}
}

// --- Movements ---

// CreateMovement inserts the movement with its items atomically.
func (r *MovementRepo) CreateMovement(ctx context.Context, movement *movements.Movement) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, movement); err != nil {
			return err
		}
		return r.insertItems(ctx, movement)
	})
}

func (r *MovementRepo) insertItems(ctx context.Context, movement *movements.Movement) error {
	if len(movement.Items) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(movementItemsTable).
		Columns(r.itemCols...)
	for _, it := range movement.Items {
		q = q.Values(it.ID, movement.ID, it.ProductID, it.SubProductID, it.UnitID,
			it.ProductName, it.Quantity, it.Reason, it.ReturnedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement items: %w", err)
	}
	return nil
}

// GetMovement returns a movement with items.
func (r *MovementRepo) GetMovement(ctx context.Context, movementID id.ID) (*movements.Movement, error) {
	m, err := r.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*movements.Movement{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMovementByNumber returns a movement by its outgoing challan label.
func (r *MovementRepo) GetMovementByNumber(ctx context.Context, number string) (*movements.Movement, error) {
	m, err := r.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*movements.Movement{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMovements returns movements matching the filter, newest first.
func (r *MovementRepo) ListMovements(ctx context.Context, filter movements.Filter) ([]*movements.Movement, error) {
	q := r.Builder().
		Select(postgres.ExtractDBColumns[movements.Movement]()...).
		From(movementsTable).
		OrderBy("date DESC", "created_at DESC")

	if filter.MovementType != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.MovementType})
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

	var list []*movements.Movement
	if err := pgxscan.Select(ctx, r.Querier(ctx), &list, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// CountByAssociatedChallan counts prior movements referencing a challan.
func (r *MovementRepo) CountByAssociatedChallan(ctx context.Context, challanNo string) (int, error) {
	q := r.Builder().
		Select("COUNT(*)").
		From(movementsTable).
		Where(squirrel.Eq{"associated_challan_no": challanNo})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count by challan: %w", err)
	}
	return count, nil
}

// SumDispatchedByChallan sums, per unit, quantities dispatched under a challan.
func (r *MovementRepo) SumDispatchedByChallan(ctx context.Context, challanNo string) (map[id.ID]types.Quantity, error) {
	q := r.Builder().
		Select("i.unit_id", "SUM(i.quantity) AS total").
		From(movementItemsTable + " i").
		Join(movementsTable + " m ON m.id = i.movement_id").
		Where(squirrel.Eq{"m.associated_challan_no": challanNo}).
		GroupBy("i.unit_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.Querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sum dispatched: %w", err)
	}
	defer rows.Close()

	result := make(map[id.ID]types.Quantity)
	for rows.Next() {
		var unitID id.ID
		var total types.Quantity
		if err := rows.Scan(&unitID, &total); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		result[unitID] = total
	}
	return result, rows.Err()
}

// loadItems attaches items to the given movements.
func (r *MovementRepo) loadItems(ctx context.Context, list []*movements.Movement) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(list))
	byID := make(map[id.ID]*movements.Movement, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
		byID[m.ID] = m
		m.Items = nil
	}

	q := r.Builder().
		Select(r.itemCols...).
		From(movementItemsTable).
		Where(squirrel.Eq{"movement_id": ids}).
		OrderBy("movement_id", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build items query: %w", err)
	}

	var items []movements.Item
	if err := pgxscan.Select(ctx, r.Querier(ctx), &items, sql, args...); err != nil {
		return fmt.Errorf("load movement items: %w", err)
	}

	for _, it := range items {
		if m, ok := byID[it.MovementID]; ok {
			m.Items = append(m.Items, it)
		}
	}
	return nil
}

// --- Items ---

// movementItemRow carries the owning movement's type alongside the item.
type movementItemRow struct {
	movements.Item
	MovementType movements.Type `db:"movement_type"`
}

// GetItem returns one movement item together with its movement type.
func (r *MovementRepo) GetItem(ctx context.Context, itemID id.ID) (movements.Item, movements.Type, error) {
	cols := make([]string, 0, len(r.itemCols)+1)
	for _, c := range r.itemCols {
		cols = append(cols, "i."+c)
	}
	cols = append(cols, "m.movement_type")

	q := r.Builder().
		Select(cols...).
		From(movementItemsTable + " i").
		Join(movementsTable + " m ON m.id = i.movement_id").
		Where(squirrel.Eq{"i.id": itemID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return movements.Item{}, "", fmt.Errorf("build query: %w", err)
	}

	var row movementItemRow
	if err := pgxscan.Get(ctx, r.Querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return movements.Item{}, "", apperror.NewNotFound("movement item", itemID.String())
		}
		return movements.Item{}, "", fmt.Errorf("get item: %w", err)
	}

	return row.Item, row.MovementType, nil
}

// MarkItemReturned sets the item's returned mark once.
func (r *MovementRepo) MarkItemReturned(ctx context.Context, itemID id.ID, returnedAt time.Time) error {
	q := r.Builder().
		Update(movementItemsTable).
		Set("returned_at", returnedAt).
		Where(squirrel.Eq{"id": itemID}).
		Where(squirrel.Eq{"returned_at": nil})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("mark returned: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either missing or already marked; distinguish for the caller.
		if _, _, err := r.GetItem(ctx, itemID); err != nil {
			return err
		}
		return apperror.NewAlreadyReturned(itemID.String())
	}
	return nil
}

// --- Physical item requests ---

// CreateRequests inserts requests for cross-custody items.
func (r *MovementRepo) CreateRequests(ctx context.Context, requests []movements.PhysicalItemRequest) error {
	if len(requests) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(itemRequestsTable).
		Columns(r.requestCols...)
	for _, req := range requests {
		q = q.Values(req.ID, req.MovementID, req.MovementItemID, req.UnitID,
			req.ProductName, req.ReceivingLocation,
			req.QuantityRequested, req.QuantityReceived,
			req.Status, req.Version, req.UpdatedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert requests: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert requests: %w", err)
	}
	return nil
}

// GetRequest returns one physical item request.
func (r *MovementRepo) GetRequest(ctx context.Context, requestID id.ID) (movements.PhysicalItemRequest, error) {
	q := r.Builder().
		Select(r.requestCols...).
		From(itemRequestsTable).
		Where(squirrel.Eq{"id": requestID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return movements.PhysicalItemRequest{}, fmt.Errorf("build query: %w", err)
	}

	var req movements.PhysicalItemRequest
	if err := pgxscan.Get(ctx, r.Querier(ctx), &req, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return movements.PhysicalItemRequest{}, apperror.NewNotFound("item request", requestID.String())
		}
		return movements.PhysicalItemRequest{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// UpdateRequest writes a request conditionally on expectedVersion.
func (r *MovementRepo) UpdateRequest(ctx context.Context, request movements.PhysicalItemRequest, expectedVersion int) error {
	data := postgres.StructToMap(request)
	delete(data, "id")

	q := r.Builder().
		Update(itemRequestsTable).
		SetMap(data).
		Where(squirrel.Eq{"id": request.ID}).
		Where(squirrel.Eq{"version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(itemRequestsTable, request.ID)
	}
	return nil
}

// ListRequestsByLocation returns a receiving store's requests, open ones
// unless includeClosed is set.
func (r *MovementRepo) ListRequestsByLocation(ctx context.Context, location string, includeClosed bool) ([]movements.PhysicalItemRequest, error) {
	q := r.Builder().
		Select(r.requestCols...).
		From(itemRequestsTable).
		Where(squirrel.Eq{"receiving_location": location}).
		OrderBy("updated_at DESC", "id")

	if !includeClosed {
		q = q.Where(squirrel.NotEq{"status": movements.RequestReceived})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var requests []movements.PhysicalItemRequest
	if err := pgxscan.Select(ctx, r.Querier(ctx), &requests, sql, args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}
