package stockledger

import (
	"context"
	"fmt"
	"time"

	"godown/internal/core/apperror"
	appctx "godown/internal/core/context"
	"godown/internal/core/id"
	"godown/internal/core/tx"
	"godown/internal/core/types"
	"godown/pkg/logger"
)

// ApplyOptions modifies event application behavior.
type ApplyOptions struct {
	// AllowOnOrder lets a sold event exceed the available balance: the
	// excess accrues to the unit's on-order counter instead of failing.
	AllowOnOrder bool

	// RecorderID ties the event to the document that produced it.
	RecorderID id.ID
}

// ApplyResult reports the outcome of an applied event.
type ApplyResult struct {
	NewBalance types.Quantity `json:"newBalance"`
	NewInStore types.Quantity `json:"newInStore"`

	// OnOrderBooked is the portion of a sold event accepted on order.
	OnOrderBooked types.Quantity `json:"onOrderBooked,omitempty"`

	// OnOrderConverted is the portion of a received event that settled
	// outstanding on-order demand.
	OnOrderConverted types.Quantity `json:"onOrderConverted,omitempty"`
}

// Service provides business operations for the stock register.
//
// Each ApplyEvent call is atomic per unit: the counter update is conditional
// on the version read, so two concurrent writers against the same unit cannot
// both succeed — the loser fails with CONCURRENT_MODIFICATION and must retry
// with fresh state. Calls compose into a caller's transaction when one is
// already open on the context.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new stock register service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
	}
}

// GetUnit returns current counters and derived quantities for a unit.
func (s *Service) GetUnit(ctx context.Context, unitID id.ID) (StockUnit, error) {
	if id.IsNil(unitID) {
		return StockUnit{}, apperror.NewValidation("unit id is required")
	}
	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return StockUnit{}, fmt.Errorf("get stock unit %s: %w", unitID, err)
	}
	return unit, nil
}

// GetBalances returns current balances for multiple units in one call.
// Used by set completion and out-of-stock reporting, which must always read
// fresh balances (never cached across stock mutations).
func (s *Service) GetBalances(ctx context.Context, unitIDs []id.ID) (map[id.ID]types.Quantity, error) {
	units, err := s.repo.GetUnits(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("get stock units: %w", err)
	}
	balances := make(map[id.ID]types.Quantity, len(units))
	for unitID, unit := range units {
		balances[unitID] = unit.Balance()
	}
	return balances, nil
}

// GetHistory returns the event history for a unit, oldest first.
func (s *Service) GetHistory(ctx context.Context, unitID id.ID, filter EventFilter) ([]StockEvent, error) {
	return s.repo.GetEventsByUnit(ctx, unitID, filter)
}

// ApplyEvent records a stock event and updates the unit's counters.
//
// Events that would drive the balance negative fail with INSUFFICIENT_STOCK,
// except a sold event with AllowOnOrder: the excess is tracked as on-order
// demand, never as a negative balance. A received event first settles
// outstanding on-order demand before raising the balance.
func (s *Service) ApplyEvent(ctx context.Context, unitID id.ID, eventType EventType, qty types.Quantity, opts ApplyOptions) (ApplyResult, error) {
	if id.IsNil(unitID) {
		return ApplyResult{}, apperror.NewValidation("unit id is required")
	}
	if !eventType.Valid() {
		return ApplyResult{}, apperror.NewValidation("unknown event type").
			WithDetail("eventType", string(eventType))
	}
	if qty <= 0 {
		return ApplyResult{}, apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", qty)
	}

	var result ApplyResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := s.repo.GetUnit(ctx, unitID)
		if err != nil {
			return fmt.Errorf("get stock unit %s: %w", unitID, err)
		}

		event := StockEvent{
			ID:         id.New(),
			UnitID:     unitID,
			Type:       eventType,
			Quantity:   qty,
			RecorderID: opts.RecorderID,
			RecordedAt: time.Now().UTC(),
			RecordedBy: appctx.GetUserID(ctx),
		}

		if err := applyToUnit(&unit, &event, opts); err != nil {
			return err
		}

		expectedVersion := unit.Version
		unit.Version++
		unit.UpdatedAt = event.RecordedAt

		if err := s.repo.UpdateUnit(ctx, unit, expectedVersion); err != nil {
			return fmt.Errorf("update stock unit %s: %w", unitID, err)
		}
		if err := s.repo.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append stock event: %w", err)
		}

		result = ApplyResult{
			NewBalance:       unit.Balance(),
			NewInStore:       unit.InStore(),
			OnOrderBooked:    event.OnOrderQuantity,
			OnOrderConverted: event.ConvertedQuantity,
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	logger.Info(ctx, "applied stock event",
		"unit_id", unitID,
		"event_type", eventType,
		"quantity", qty,
		"new_balance", result.NewBalance,
	)

	return result, nil
}

// applyToUnit mutates the counters for one event and fills the event's
// split quantities. Fails without mutating on a business-rule violation.
func applyToUnit(unit *StockUnit, event *StockEvent, opts ApplyOptions) error {
	qty := event.Quantity

	switch event.Type {
	case EventReceived:
		converted := min(unit.OnOrder, qty)
		unit.Received += qty
		unit.OnOrder -= converted
		unit.Sold += converted
		event.ConvertedQuantity = converted

	case EventSold:
		available := unit.Balance()
		if qty > available {
			if !opts.AllowOnOrder {
				return apperror.NewInsufficientStock(unit.UnitID.String(), qty, available)
			}
			sold := max(available, 0)
			unit.Sold += sold
			unit.OnOrder += qty - sold
			event.Quantity = sold
			event.OnOrderQuantity = qty - sold
		} else {
			unit.Sold += qty
		}

	case EventReturned:
		unit.Returned += qty

	case EventOutDispatched:
		if available := unit.Balance(); qty > available {
			return apperror.NewInsufficientStock(unit.UnitID.String(), qty, available)
		}
		unit.OutDispatched += qty

	case EventOutReturned:
		if unit.OutReturned+qty > unit.OutDispatched {
			return apperror.NewValidation("outgoing return exceeds dispatched quantity").
				WithDetail("unitId", unit.UnitID.String()).
				WithDetail("quantity", qty)
		}
		unit.OutReturned += qty

	case EventDelivered:
		if inStore := unit.InStore(); qty > inStore {
			return apperror.NewInsufficientStock(unit.UnitID.String(), qty, inStore).
				WithDetail("counter", "in_store")
		}
		unit.Delivered += qty

	case EventSaleReversed:
		return apperror.NewValidation("sale reversal must go through ReverseSale")

	case EventDeliveryReversed:
		if qty > unit.Delivered {
			return apperror.NewValidation("delivery reversal exceeds delivered quantity").
				WithDetail("unitId", unit.UnitID.String())
		}
		unit.Delivered -= qty
	}

	return nil
}

// ReverseSale applies the compensating event for a deleted sale line: the
// previously booked sold and on-order quantities are given back. Counters
// move only through the recorded event, never by direct mutation.
func (s *Service) ReverseSale(ctx context.Context, unitID id.ID, soldQty, onOrderQty types.Quantity, recorderID id.ID) error {
	if soldQty < 0 || onOrderQty < 0 || soldQty+onOrderQty == 0 {
		return apperror.NewValidation("reversal quantities must be non-negative and not both zero")
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := s.repo.GetUnit(ctx, unitID)
		if err != nil {
			return fmt.Errorf("get stock unit %s: %w", unitID, err)
		}
		if soldQty > unit.Sold || onOrderQty > unit.OnOrder {
			return apperror.NewValidation("reversal exceeds recorded sale quantities").
				WithDetail("unitId", unitID.String()).
				WithDetail("sold", unit.Sold).
				WithDetail("onOrder", unit.OnOrder)
		}

		unit.Sold -= soldQty
		unit.OnOrder -= onOrderQty
		expectedVersion := unit.Version
		unit.Version++
		unit.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateUnit(ctx, unit, expectedVersion); err != nil {
			return fmt.Errorf("update stock unit %s: %w", unitID, err)
		}

		event := StockEvent{
			ID:              id.New(),
			UnitID:          unitID,
			Type:            EventSaleReversed,
			Quantity:        soldQty,
			OnOrderQuantity: -onOrderQty,
			RecorderID:      recorderID,
			RecordedAt:      unit.UpdatedAt,
			RecordedBy:      appctx.GetUserID(ctx),
		}
		if err := s.repo.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append stock event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "reversed sale on stock unit",
		"unit_id", unitID,
		"sold_qty", soldQty,
		"on_order_qty", onOrderQty,
	)
	return nil
}
