package delivery

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"godown/internal/core/apperror"
	"godown/internal/core/entity"
	"godown/internal/core/id"
	"godown/internal/core/tx"
	"godown/internal/core/types"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/registers/stockledger"
	"godown/pkg/challan"
	"godown/pkg/logger"
)

// Mode is the per-line instruction of a delivery confirmation.
type Mode string

const (
	// ModeFull delivers everything remaining on the line
	ModeFull Mode = "full"
	// ModePartial delivers an explicit quantity, 0 < qty <= remaining
	ModePartial Mode = "partial"
	// ModeNone skips the line in this session
	ModeNone Mode = "none"
)

// Selection is one line's instruction in a confirmation request.
type Selection struct {
	LineItemID id.ID          `json:"lineItemId"`
	Mode       Mode           `json:"mode"`
	Quantity   types.Quantity `json:"qty,omitempty"`
}

// ConfirmRequest carries the confirmed delivery selections plus the trip
// details that go on the challan.
type ConfirmRequest struct {
	Selections      []Selection `json:"selections"`
	TransportCharge types.Money `json:"transportationCharge"`
	DeliveryStaff   []string    `json:"deliveryStaff"`
	Comment         string      `json:"comment,omitempty"`
}

// ConfirmResult reports the challan produced by a confirmation.
type ConfirmResult struct {
	ChallanID     id.ID      `json:"challanId"`
	ChallanNumber string     `json:"challanNumber"`
	SaleStatus    SaleStatus `json:"saleStatus"`
}

// LineProposal is one line of a side-effect-free delivery proposal.
type LineProposal struct {
	LineItemID       id.ID          `json:"lineItemId"`
	UnitID           id.ID          `json:"unitId"`
	UnitName         string         `json:"unitName"`
	QuantityOrdered  types.Quantity `json:"quantityOrdered"`
	Delivered        types.Quantity `json:"quantityDeliveredCumulative"`
	Remaining        types.Quantity `json:"quantityRemaining"`
	IsFullyDelivered bool           `json:"isFullyDelivered"`
}

// Proposal is the read-only answer to "what could be delivered now".
// Confirming is a separate call; building a proposal never mutates state.
type Proposal struct {
	SaleID     id.ID          `json:"saleId"`
	SaleStatus SaleStatus     `json:"saleStatus"`
	Lines      []LineProposal `json:"lines"`
}

// SaleInfo is the customer data a challan denormalizes from the sale.
type SaleInfo struct {
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
}

// SaleInfoReader resolves the sale-side data deliveries need. Implemented
// by the sales service; an interface keeps the dependency one-directional.
type SaleInfoReader interface {
	GetDeliveryInfo(ctx context.Context, saleID id.ID) (SaleInfo, error)
}

// Ledger is the slice of the stock register deliveries drive.
type Ledger interface {
	ApplyEvent(ctx context.Context, unitID id.ID, eventType stockledger.EventType, qty types.Quantity, opts stockledger.ApplyOptions) (stockledger.ApplyResult, error)
}

// UnitResolver maps stock units back to catalog display data.
type UnitResolver interface {
	ResolveUnit(ctx context.Context, unitID id.ID) (product.UnitInfo, error)
}

// Service implements the delivery fulfillment tracker.
type Service struct {
	repo      Repository
	ledger    Ledger
	sales     SaleInfoReader
	units     UnitResolver
	labels    *challan.Generator
	txManager tx.Manager
	tracer    trace.Tracer
}

// NewService creates a delivery service.
func NewService(repo Repository, ledger Ledger, sales SaleInfoReader, units UnitResolver, labels *challan.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		sales:     sales,
		units:     units,
		labels:    labels,
		txManager: txManager,
		tracer:    otel.Tracer("godown/delivery"),
	}
}

// RegisterLine creates the implicit zero-delivered state for a new sale
// line. Called from sale booking, inside the booking transaction.
func (s *Service) RegisterLine(ctx context.Context, lineItemID, saleID, unitID id.ID, ordered types.Quantity) error {
	if ordered <= 0 {
		return apperror.NewValidation("ordered quantity must be positive").
			WithDetail("lineItemId", lineItemID.String())
	}
	state := State{
		LineItemID:      lineItemID,
		SaleID:          saleID,
		UnitID:          unitID,
		QuantityOrdered: ordered,
		Version:         1,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.repo.CreateState(ctx, state); err != nil {
		return fmt.Errorf("create delivery state: %w", err)
	}
	return nil
}

// AmendLineTarget changes a line's total to fulfill after a sale amendment.
// The new target can never undercut what has already been delivered.
func (s *Service) AmendLineTarget(ctx context.Context, lineItemID id.ID, newOrdered types.Quantity) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		state, err := s.GetState(ctx, lineItemID)
		if err != nil {
			return err
		}
		if newOrdered < state.DeliveredCumulative {
			return apperror.NewValidation("target is below the already delivered amount").
				WithDetail("lineItemId", lineItemID.String()).
				WithDetail("delivered", state.DeliveredCumulative)
		}
		expectedVersion := state.Version
		state.QuantityOrdered = newOrdered
		state.Version++
		state.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateState(ctx, state, expectedVersion); err != nil {
			return fmt.Errorf("update delivery state %s: %w", lineItemID, err)
		}
		return nil
	})
}

// GetState returns the fulfillment state of one line item.
func (s *Service) GetState(ctx context.Context, lineItemID id.ID) (State, error) {
	state, err := s.repo.GetState(ctx, lineItemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return State{}, apperror.NewNotFound("delivery state", lineItemID.String())
		}
		return State{}, err
	}
	return state, nil
}

// GetSaleStatus derives the sale-level delivery status.
func (s *Service) GetSaleStatus(ctx context.Context, saleID id.ID) (SaleStatus, error) {
	states, err := s.repo.GetStatesBySale(ctx, saleID)
	if err != nil {
		return "", err
	}
	return DeriveSaleStatus(states), nil
}

// Propose builds the current delivery picture for a sale without touching
// any state. The UI assembles its selection from this; only Confirm commits.
func (s *Service) Propose(ctx context.Context, saleID id.ID) (Proposal, error) {
	states, err := s.repo.GetStatesBySale(ctx, saleID)
	if err != nil {
		return Proposal{}, err
	}
	if len(states) == 0 {
		return Proposal{}, apperror.NewNotFound("sale", saleID.String())
	}

	lines := make([]LineProposal, 0, len(states))
	for _, st := range states {
		name := ""
		if info, err := s.units.ResolveUnit(ctx, st.UnitID); err == nil {
			name = info.UnitName
		}
		lines = append(lines, LineProposal{
			LineItemID:       st.LineItemID,
			UnitID:           st.UnitID,
			UnitName:         name,
			QuantityOrdered:  st.QuantityOrdered,
			Delivered:        st.DeliveredCumulative,
			Remaining:        st.Remaining(),
			IsFullyDelivered: st.IsFullyDelivered(),
		})
	}
	return Proposal{
		SaleID:     saleID,
		SaleStatus: DeriveSaleStatus(states),
		Lines:      lines,
	}, nil
}

// Confirm commits a delivery: bumps the selected lines' cumulative delivered
// quantities, records delivered stock events, and creates the challan — all
// in one transaction. A failure anywhere leaves nothing committed.
func (s *Service) Confirm(ctx context.Context, saleID id.ID, req ConfirmRequest) (ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "delivery.Confirm")
	defer span.End()

	if len(req.Selections) == 0 {
		return ConfirmResult{}, apperror.NewNoItemsSelected(saleID.String())
	}

	var result ConfirmResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		info, err := s.sales.GetDeliveryInfo(ctx, saleID)
		if err != nil {
			return err
		}

		states, err := s.repo.GetStatesBySale(ctx, saleID)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return apperror.NewNotFound("sale", saleID.String())
		}
		byLine := make(map[id.ID]State, len(states))
		for _, st := range states {
			byLine[st.LineItemID] = st
		}

		planned, err := planDeliveries(saleID, req.Selections, byLine)
		if err != nil {
			return err
		}

		number, err := s.allocateNumber(ctx, info.CustomerPhone)
		if err != nil {
			return err
		}

		ch := &Challan{
			Document:        entity.NewDocument(),
			SaleID:          saleID,
			CustomerName:    info.CustomerName,
			CustomerPhone:   info.CustomerPhone,
			DeliveryAddress: info.DeliveryAddress,
			TransportCharge: req.TransportCharge,
			DeliveryStaff:   req.DeliveryStaff,
		}
		ch.Number = number
		ch.Comment = req.Comment

		for _, p := range planned {
			st := byLine[p.lineItemID]
			expectedVersion := st.Version
			st.DeliveredCumulative += p.quantity
			st.Version++
			st.UpdatedAt = time.Now().UTC()
			if err := s.repo.UpdateState(ctx, st, expectedVersion); err != nil {
				return fmt.Errorf("update delivery state %s: %w", p.lineItemID, err)
			}
			byLine[p.lineItemID] = st

			if _, err := s.ledger.ApplyEvent(ctx, st.UnitID, stockledger.EventDelivered, p.quantity, stockledger.ApplyOptions{RecorderID: ch.ID}); err != nil {
				return err
			}

			item := ChallanItem{
				ID:         id.New(),
				ChallanID:  ch.ID,
				LineItemID: p.lineItemID,
				UnitID:     st.UnitID,
				Quantity:   p.quantity,
			}
			if unitInfo, err := s.units.ResolveUnit(ctx, st.UnitID); err == nil {
				item.ProductID = unitInfo.ProductID
				item.SubProductID = unitInfo.SubProductID
				item.ProductName = unitInfo.UnitName
			}
			ch.Items = append(ch.Items, item)
		}

		if err := ch.Validate(ctx); err != nil {
			return err
		}
		if err := s.repo.CreateChallan(ctx, ch); err != nil {
			return fmt.Errorf("create challan: %w", err)
		}

		updated := make([]State, 0, len(byLine))
		for _, st := range byLine {
			updated = append(updated, st)
		}
		result = ConfirmResult{
			ChallanID:     ch.ID,
			ChallanNumber: ch.Number,
			SaleStatus:    DeriveSaleStatus(updated),
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	logger.Info(ctx, "confirmed delivery",
		"sale_id", saleID,
		"challan_number", result.ChallanNumber,
		"sale_status", result.SaleStatus,
	)
	return result, nil
}

type plannedDelivery struct {
	lineItemID id.ID
	quantity   types.Quantity
}

// planDeliveries validates selections against current states and resolves
// modes into concrete quantities.
func planDeliveries(saleID id.ID, selections []Selection, byLine map[id.ID]State) ([]plannedDelivery, error) {
	seen := make(map[id.ID]bool, len(selections))
	planned := make([]plannedDelivery, 0, len(selections))

	for _, sel := range selections {
		if seen[sel.LineItemID] {
			return nil, apperror.NewValidation("duplicate selection for line item").
				WithDetail("lineItemId", sel.LineItemID.String())
		}
		seen[sel.LineItemID] = true

		st, ok := byLine[sel.LineItemID]
		if !ok {
			return nil, apperror.NewNotFound("sale line item", sel.LineItemID.String())
		}

		switch sel.Mode {
		case ModeNone:
			continue
		case ModeFull:
			remaining := st.Remaining()
			if remaining <= 0 {
				return nil, apperror.NewInvalidDeliveryQuantity(sel.LineItemID.String(), remaining, 0)
			}
			planned = append(planned, plannedDelivery{sel.LineItemID, remaining})
		case ModePartial:
			if sel.Quantity <= 0 || sel.Quantity > st.Remaining() {
				return nil, apperror.NewInvalidDeliveryQuantity(sel.LineItemID.String(), sel.Quantity, st.Remaining())
			}
			planned = append(planned, plannedDelivery{sel.LineItemID, sel.Quantity})
		default:
			return nil, apperror.NewValidation("unknown delivery mode").
				WithDetail("mode", string(sel.Mode))
		}
	}

	if len(planned) == 0 {
		return nil, apperror.NewNoItemsSelected(saleID.String())
	}
	return planned, nil
}

// allocateNumber picks an unused challan label, regenerating on collision.
// The unique constraint on the challans table remains the final guard.
func (s *Service) allocateNumber(ctx context.Context, phone string) (string, error) {
	for attempt := 0; attempt < challan.MaxAttempts; attempt++ {
		number := s.labels.Next(phone)
		taken, err := s.repo.ChallanNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check challan number: %w", err)
		}
		if !taken {
			return number, nil
		}
		logger.Warn(ctx, "challan number collision, regenerating",
			"number", number,
			"attempt", attempt+1,
		)
	}
	return "", apperror.NewInternal(fmt.Errorf("no unique challan number after %d attempts", challan.MaxAttempts))
}

// GetChallan returns a challan by surrogate ID.
func (s *Service) GetChallan(ctx context.Context, challanID id.ID) (*Challan, error) {
	ch, err := s.repo.GetChallan(ctx, challanID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("challan", challanID.String())
		}
		return nil, err
	}
	return ch, nil
}

// GetChallanByNumber returns a challan by its display label.
func (s *Service) GetChallanByNumber(ctx context.Context, number string) (*Challan, error) {
	ch, err := s.repo.GetChallanByNumber(ctx, number)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("challan", number)
		}
		return nil, err
	}
	return ch, nil
}

// ListChallans returns challans matching the filter.
func (s *Service) ListChallans(ctx context.Context, filter ChallanFilter) ([]*Challan, error) {
	return s.repo.ListChallans(ctx, filter)
}

// ReverseForSaleDeletion undoes all delivered custody of a sale and removes
// its line states. This is the only path that decreases cumulative delivered
// quantities. Runs inside the caller's deletion transaction.
func (s *Service) ReverseForSaleDeletion(ctx context.Context, saleID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		states, err := s.repo.GetStatesBySale(ctx, saleID)
		if err != nil {
			return err
		}
		for _, st := range states {
			if st.DeliveredCumulative == 0 {
				continue
			}
			if _, err := s.ledger.ApplyEvent(ctx, st.UnitID, stockledger.EventDeliveryReversed, st.DeliveredCumulative, stockledger.ApplyOptions{RecorderID: saleID}); err != nil {
				return err
			}
		}
		if err := s.repo.DeleteStatesBySale(ctx, saleID); err != nil {
			return fmt.Errorf("delete delivery states: %w", err)
		}

		logger.Info(ctx, "reversed deliveries for sale deletion",
			"sale_id", saleID,
			"lines", len(states),
		)
		return nil
	})
}
