package movements

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
	"godown/internal/domain/delivery"
	"godown/internal/domain/registers/stockledger"
	"godown/pkg/challan"
	"godown/pkg/logger"
)

// CreateRequest carries the data for one outgoing movement.
type CreateRequest struct {
	MovementType Type   `json:"movementType"`
	DriverName   string `json:"driverName"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	Comment      string `json:"comment,omitempty"`

	Direction         Direction `json:"direction,omitempty"`
	SendingLocation   string    `json:"sendingLocation,omitempty"`
	ReceivingLocation string    `json:"receivingLocation,omitempty"`

	AssociatedChallanNo string `json:"associatedChallanId,omitempty"`
	// ExternalChallan marks the associated challan as issued elsewhere, so
	// no local delivery record backs it.
	ExternalChallan bool   `json:"externalChallan,omitempty"`
	CustomerName    string `json:"customerName,omitempty"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`

	// CustomerPhone feeds the outgoing challan label
	CustomerPhone string `json:"customerPhone,omitempty"`

	Items []ItemRequest `json:"items"`

	// AcknowledgeDuplicate confirms creation despite prior movements
	// referencing the same associated challan.
	AcknowledgeDuplicate bool `json:"acknowledgeDuplicate,omitempty"`
}

// ItemRequest is one requested item position.
type ItemRequest struct {
	UnitID   id.ID          `json:"unitId"`
	Quantity types.Quantity `json:"quantity"`
	Reason   string         `json:"reason,omitempty"`
}

// DuplicateWarning is the non-fatal advisory for repeated references to one
// delivery challan. Splitting a delivery across trips is legitimate, so this
// is confirm-to-continue, never a hard constraint.
type DuplicateWarning struct {
	AssociatedChallanNo string `json:"associatedChallanId"`
	Count               int    `json:"count"`
}

// CreateResult reports creation outcome. When RequiresConfirmation is set,
// nothing was created: the caller must repeat the request acknowledged.
type CreateResult struct {
	MovementID           id.ID             `json:"movementId,omitempty"`
	OutgoingChallanNo    string            `json:"outgoingChallanId,omitempty"`
	DuplicateWarning     *DuplicateWarning `json:"duplicateWarning,omitempty"`
	RequiresConfirmation bool              `json:"requiresConfirmation,omitempty"`
}

// Ledger is the slice of the stock register movements drive.
type Ledger interface {
	ApplyEvent(ctx context.Context, unitID id.ID, eventType stockledger.EventType, qty types.Quantity, opts stockledger.ApplyOptions) (stockledger.ApplyResult, error)
}

// ChallanReader resolves local delivery challans for part-of-delivery checks.
type ChallanReader interface {
	GetChallanByNumber(ctx context.Context, number string) (*delivery.Challan, error)
}

// UnitResolver maps stock units back to catalog display data.
type UnitResolver interface {
	ResolveUnit(ctx context.Context, unitID id.ID) (product.UnitInfo, error)
}

// Service implements the outgoing movement ledger.
type Service struct {
	repo      Repository
	ledger    Ledger
	challans  ChallanReader
	units     UnitResolver
	labels    *challan.Generator
	txManager tx.Manager
	tracer    trace.Tracer
}

// NewService creates a movements service.
func NewService(repo Repository, ledger Ledger, challans ChallanReader, units UnitResolver, labels *challan.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		challans:  challans,
		units:     units,
		labels:    labels,
		txManager: txManager,
		tracer:    otel.Tracer("godown/movements"),
	}
}

// Create records an outgoing movement.
//
// Repairs and inter-store items are balance-checked through the stock
// register (dispatch reduces effective availability even though it is not a
// sale). Part-of-delivery items are checked against the associated challan's
// delivered-but-not-yet-dispatched quantities instead; their stock effect
// was already accounted at sale and delivery time.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "movements.Create")
	defer span.End()

	m := s.buildMovement(req)
	if err := m.Validate(ctx); err != nil {
		return CreateResult{}, err
	}

	var warning *DuplicateWarning
	if m.MovementType == TypePartOfDelivery {
		count, err := s.repo.CountByAssociatedChallan(ctx, m.AssociatedChallanNo)
		if err != nil {
			return CreateResult{}, fmt.Errorf("count movements for challan %s: %w", m.AssociatedChallanNo, err)
		}
		if count > 0 {
			warning = &DuplicateWarning{AssociatedChallanNo: m.AssociatedChallanNo, Count: count}
			if !req.AcknowledgeDuplicate {
				return CreateResult{DuplicateWarning: warning, RequiresConfirmation: true}, nil
			}
		}
	}

	var result CreateResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if m.MovementType == TypePartOfDelivery && !req.ExternalChallan {
			if err := s.checkAgainstChallan(ctx, m); err != nil {
				return err
			}
		}

		number, err := s.allocateNumber(ctx, req.CustomerPhone)
		if err != nil {
			return err
		}
		m.Number = number

		s.resolveItemNames(ctx, m)

		if err := s.repo.CreateMovement(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		if m.MovementType != TypePartOfDelivery {
			for _, item := range m.Items {
				if _, err := s.ledger.ApplyEvent(ctx, item.UnitID, stockledger.EventOutDispatched, item.Quantity, stockledger.ApplyOptions{RecorderID: m.ID}); err != nil {
					return err
				}
			}
		}

		if m.CrossesCustody() {
			if err := s.createRequests(ctx, m); err != nil {
				return err
			}
		}

		result = CreateResult{
			MovementID:        m.ID,
			OutgoingChallanNo: m.Number,
			DuplicateWarning:  warning,
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}

	logger.Info(ctx, "created outgoing movement",
		"movement_id", result.MovementID,
		"outgoing_challan_no", result.OutgoingChallanNo,
		"movement_type", m.MovementType,
		"items", len(m.Items),
	)
	return result, nil
}

func (s *Service) buildMovement(req CreateRequest) *Movement {
	m := &Movement{
		Document:            entity.NewDocument(),
		MovementType:        req.MovementType,
		DriverName:          req.DriverName,
		Origin:              req.Origin,
		Destination:         req.Destination,
		Direction:           req.Direction,
		SendingLocation:     req.SendingLocation,
		ReceivingLocation:   req.ReceivingLocation,
		AssociatedChallanNo: req.AssociatedChallanNo,
		CustomerName:        req.CustomerName,
		DeliveryAddress:     req.DeliveryAddress,
	}
	m.Comment = req.Comment
	for _, it := range req.Items {
		m.Items = append(m.Items, Item{
			ID:         id.New(),
			MovementID: m.ID,
			UnitID:     it.UnitID,
			Quantity:   it.Quantity,
			Reason:     it.Reason,
		})
	}
	return m
}

// checkAgainstChallan bounds part-of-delivery items by what the associated
// challan delivered minus what earlier movements already dispatched.
func (s *Service) checkAgainstChallan(ctx context.Context, m *Movement) error {
	ch, err := s.challans.GetChallanByNumber(ctx, m.AssociatedChallanNo)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewValidation("associated challan not found").
				WithDetail("associatedChallanId", m.AssociatedChallanNo)
		}
		return err
	}

	delivered := make(map[id.ID]types.Quantity, len(ch.Items))
	for _, item := range ch.Items {
		delivered[item.UnitID] += item.Quantity
	}
	dispatched, err := s.repo.SumDispatchedByChallan(ctx, m.AssociatedChallanNo)
	if err != nil {
		return fmt.Errorf("sum dispatched for challan %s: %w", m.AssociatedChallanNo, err)
	}

	for _, item := range m.Items {
		available := delivered[item.UnitID] - dispatched[item.UnitID]
		if item.Quantity > available {
			return apperror.NewInsufficientStock(item.UnitID.String(), item.Quantity, available).
				WithDetail("associatedChallanId", m.AssociatedChallanNo)
		}
	}
	return nil
}

func (s *Service) resolveItemNames(ctx context.Context, m *Movement) {
	for i := range m.Items {
		info, err := s.units.ResolveUnit(ctx, m.Items[i].UnitID)
		if err != nil {
			continue
		}
		m.Items[i].ProductID = info.ProductID
		m.Items[i].SubProductID = info.SubProductID
		m.Items[i].ProductName = info.UnitName
	}
}

func (s *Service) createRequests(ctx context.Context, m *Movement) error {
	requests := make([]PhysicalItemRequest, 0, len(m.Items))
	now := time.Now().UTC()
	for _, item := range m.Items {
		requests = append(requests, PhysicalItemRequest{
			ID:                id.New(),
			MovementID:        m.ID,
			MovementItemID:    item.ID,
			UnitID:            item.UnitID,
			ProductName:       item.ProductName,
			ReceivingLocation: m.ReceivingLocation,
			QuantityRequested: item.Quantity,
			Status:            RequestPending,
			Version:           1,
			UpdatedAt:         now,
		})
	}
	if err := s.repo.CreateRequests(ctx, requests); err != nil {
		return fmt.Errorf("create physical item requests: %w", err)
	}
	return nil
}

func (s *Service) allocateNumber(ctx context.Context, phone string) (string, error) {
	for attempt := 0; attempt < challan.MaxAttempts; attempt++ {
		number := s.labels.Next(phone)
		taken, err := s.repo.NumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check outgoing challan number: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", apperror.NewInternal(fmt.Errorf("no unique outgoing challan number after %d attempts", challan.MaxAttempts))
}

// MarkRepairReturned records a repairs item coming back. One-way and
// exactly-once: the second call fails with ALREADY_RETURNED and the ledger
// sees a single outgoing_returned event.
func (s *Service) MarkRepairReturned(ctx context.Context, itemID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		item, movementType, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("movement item", itemID.String())
			}
			return err
		}
		if movementType != TypeRepairs {
			return apperror.NewValidation("only repairs items can be marked returned").
				WithDetail("movementItemId", itemID.String()).
				WithDetail("movementType", string(movementType))
		}
		if item.ReturnedAt != nil {
			return apperror.NewAlreadyReturned(itemID.String())
		}

		if err := s.repo.MarkItemReturned(ctx, itemID, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := s.ledger.ApplyEvent(ctx, item.UnitID, stockledger.EventOutReturned, item.Quantity, stockledger.ApplyOptions{RecorderID: item.MovementID}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "marked repair item returned", "movement_item_id", itemID)
	return nil
}

// ReceivePhysicalItem records receipt of goods at the receiving store.
// Partial receipt is accepted and tracked; receiving more than is
// outstanding fails with OVER_RECEIPT, never truncates.
func (s *Service) ReceivePhysicalItem(ctx context.Context, requestID id.ID, qtyReceived types.Quantity) (PhysicalItemRequest, error) {
	if qtyReceived <= 0 {
		return PhysicalItemRequest{}, apperror.NewValidation("received quantity must be positive").
			WithDetail("quantity", qtyReceived)
	}

	var updated PhysicalItemRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetRequest(ctx, requestID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("physical item request", requestID.String())
			}
			return err
		}

		if qtyReceived > req.Outstanding() {
			return apperror.NewOverReceipt(requestID.String(), qtyReceived, req.Outstanding())
		}

		expectedVersion := req.Version
		req.QuantityReceived += qtyReceived
		req.Status = req.DeriveStatus()
		req.Version++
		req.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateRequest(ctx, req, expectedVersion); err != nil {
			return fmt.Errorf("update physical item request %s: %w", requestID, err)
		}
		updated = req
		return nil
	})
	if err != nil {
		return PhysicalItemRequest{}, err
	}

	logger.Info(ctx, "received physical item",
		"request_id", requestID,
		"qty_received", qtyReceived,
		"status", updated.Status,
	)
	return updated, nil
}

// GetMovement returns one movement with items.
func (s *Service) GetMovement(ctx context.Context, movementID id.ID) (*Movement, error) {
	m, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("outgoing movement", movementID.String())
		}
		return nil, err
	}
	return m, nil
}

// ListMovements returns movements matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter Filter) ([]*Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// ListRequests returns a receiving store's physical item requests.
func (s *Service) ListRequests(ctx context.Context, location string, includeClosed bool) ([]PhysicalItemRequest, error) {
	return s.repo.ListRequestsByLocation(ctx, location, includeClosed)
}
