// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/domain/registers/stockledger"
	"godown/internal/infrastructure/storage/postgres"
)

const (
	stockUnitsTable  = "reg_stock_units"
	stockEventsTable = "reg_stock_events"
)

// Compile-time check that StockLedgerRepo implements stockledger.Repository.
var _ stockledger.Repository = (*StockLedgerRepo)(nil)

// StockLedgerRepo implements stockledger.Repository.
// Counters live in reg_stock_units, guarded by a version column; the event
// stream in reg_stock_events is append-only.
type StockLedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
	unitCols  []string
	eventCols []string
}

// NewStockLedgerRepo creates a new stock register repository.
func NewStockLedgerRepo(txManager *postgres.TxManager) *StockLedgerRepo {
	return &StockLedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		unitCols:  postgres.ExtractDBColumns[stockledger.StockUnit](),
		eventCols: postgres.ExtractDBColumns[stockledger.StockEvent](),
	}
}

func (r *StockLedgerRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// GetUnit returns the counters for a unit. Units without recorded events
// have no row yet and come back zeroed with Version 0.
func (r *StockLedgerRepo) GetUnit(ctx context.Context, unitID id.ID) (stockledger.StockUnit, error) {
	q := r.builder.
		Select(r.unitCols...).
		From(stockUnitsTable).
		Where(squirrel.Eq{"unit_id": unitID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return stockledger.StockUnit{}, fmt.Errorf("build query: %w", err)
	}

	var unit stockledger.StockUnit
	if err := pgxscan.Get(ctx, r.querier(ctx), &unit, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stockledger.StockUnit{UnitID: unitID}, nil
		}
		return stockledger.StockUnit{}, fmt.Errorf("get unit: %w", err)
	}

	return unit, nil
}

// GetUnits returns counters for multiple units in one round trip.
func (r *StockLedgerRepo) GetUnits(ctx context.Context, unitIDs []id.ID) (map[id.ID]stockledger.StockUnit, error) {
	result := make(map[id.ID]stockledger.StockUnit, len(unitIDs))
	for _, uid := range unitIDs {
		result[uid] = stockledger.StockUnit{UnitID: uid}
	}
	if len(unitIDs) == 0 {
		return result, nil
	}

	q := r.builder.
		Select(r.unitCols...).
		From(stockUnitsTable).
		Where(squirrel.Eq{"unit_id": unitIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var units []stockledger.StockUnit
	if err := pgxscan.Select(ctx, r.querier(ctx), &units, sql, args...); err != nil {
		return nil, fmt.Errorf("get units: %w", err)
	}

	for _, u := range units {
		result[u.UnitID] = u
	}
	return result, nil
}

// UpdateUnit writes the counters conditionally on expectedVersion.
// expectedVersion 0 inserts a fresh row; a concurrent first writer surfaces
// as CONCURRENT_MODIFICATION via the primary key.
func (r *StockLedgerRepo) UpdateUnit(ctx context.Context, unit stockledger.StockUnit, expectedVersion int) error {
	data := postgres.StructToMap(unit)

	if expectedVersion == 0 {
		q := r.builder.
			Insert(stockUnitsTable).
			SetMap(data)

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}

		if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
			if postgres.IsUniqueViolation(err) {
				return apperror.NewConcurrentModification(stockUnitsTable, unit.UnitID).WithCause(err)
			}
			return fmt.Errorf("insert unit: %w", err)
		}
		return nil
	}

	delete(data, "unit_id")

	q := r.builder.
		Update(stockUnitsTable).
		SetMap(data).
		Where(squirrel.Eq{"unit_id": unit.UnitID}).
		Where(squirrel.Eq{"version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(stockUnitsTable, unit.UnitID)
	}

	return nil
}

// AppendEvent inserts one ledger entry. Events are immutable.
func (r *StockLedgerRepo) AppendEvent(ctx context.Context, event stockledger.StockEvent) error {
	q := r.builder.
		Insert(stockEventsTable).
		SetMap(postgres.StructToMap(event))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetEventsByUnit returns the event history for a unit, oldest first.
func (r *StockLedgerRepo) GetEventsByUnit(ctx context.Context, unitID id.ID, filter stockledger.EventFilter) ([]stockledger.StockEvent, error) {
	q := r.builder.
		Select(r.eventCols...).
		From(stockEventsTable).
		Where(squirrel.Eq{"unit_id": unitID}).
		OrderBy("recorded_at ASC", "id ASC")

	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"event_type": filter.Types})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"recorded_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"recorded_at": *filter.ToDate})
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

	var events []stockledger.StockEvent
	if err := pgxscan.Select(ctx, r.querier(ctx), &events, sql, args...); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// GetEventsByRecorder returns all events produced by one document.
func (r *StockLedgerRepo) GetEventsByRecorder(ctx context.Context, recorderID id.ID) ([]stockledger.StockEvent, error) {
	q := r.builder.
		Select(r.eventCols...).
		From(stockEventsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("recorded_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var events []stockledger.StockEvent
	if err := pgxscan.Select(ctx, r.querier(ctx), &events, sql, args...); err != nil {
		return nil, fmt.Errorf("get events by recorder: %w", err)
	}
	return events, nil
}
