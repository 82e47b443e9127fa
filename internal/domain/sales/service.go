package sales

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"godown/internal/core/apperror"
	appctx "godown/internal/core/context"
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

// BookLineRequest is one requested position of a booking.
type BookLineRequest struct {
	UnitID   id.ID          `json:"unitId"`
	Quantity types.Quantity `json:"quantity"`

	// AllowOnOrder accepts quantity beyond current balance as on-order
	AllowOnOrder bool `json:"allowOnOrder,omitempty"`
}

// BookRequest carries a new sale.
type BookRequest struct {
	CustomerName    string            `json:"customerName"`
	CustomerPhone   string            `json:"customerPhone"`
	DeliveryAddress string            `json:"deliveryAddress"`
	Comment         string            `json:"comment,omitempty"`
	Lines           []BookLineRequest `json:"lines"`
}

// Ledger is the slice of the stock register sales drive.
type Ledger interface {
	ApplyEvent(ctx context.Context, unitID id.ID, eventType stockledger.EventType, qty types.Quantity, opts stockledger.ApplyOptions) (stockledger.ApplyResult, error)
	ReverseSale(ctx context.Context, unitID id.ID, soldQty, onOrderQty types.Quantity, recorderID id.ID) error
}

// DeliveryTracker is the slice of the delivery tracker sales drive.
type DeliveryTracker interface {
	RegisterLine(ctx context.Context, lineItemID, saleID, unitID id.ID, ordered types.Quantity) error
	GetState(ctx context.Context, lineItemID id.ID) (delivery.State, error)
	AmendLineTarget(ctx context.Context, lineItemID id.ID, newOrdered types.Quantity) error
	GetSaleStatus(ctx context.Context, saleID id.ID) (delivery.SaleStatus, error)
	ReverseForSaleDeletion(ctx context.Context, saleID id.ID) error
}

// UnitResolver maps stock units back to catalog display data.
type UnitResolver interface {
	ResolveUnit(ctx context.Context, unitID id.ID) (product.UnitInfo, error)
}

// Service implements sale booking, amendment, and deletion.
type Service struct {
	repo       Repository
	history    HistoryStore
	ledger     Ledger
	deliveries DeliveryTracker
	units      UnitResolver
	labels     *challan.Generator
	txManager  tx.Manager
	tracer     trace.Tracer
}

// NewService creates a sales service.
func NewService(repo Repository, history HistoryStore, ledger Ledger, deliveries DeliveryTracker, units UnitResolver, labels *challan.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:       repo,
		history:    history,
		ledger:     ledger,
		deliveries: deliveries,
		units:      units,
		labels:     labels,
		txManager:  txManager,
		tracer:     otel.Tracer("godown/sales"),
	}
}

// Book creates a sale: the lines, their sold events on the stock register
// (with the on-order split per line), and the implicit zero-delivered
// delivery states — all in one transaction.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Sale, error) {
	ctx, span := s.tracer.Start(ctx, "sales.Book")
	defer span.End()

	sale := &Sale{
		Document:        entity.NewDocument(),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
	}
	sale.Comment = req.Comment
	sale.Number = s.labels.Next(req.CustomerPhone)
	sale.CreatedBy = appctx.GetUserID(ctx)

	for _, lr := range req.Lines {
		sale.Lines = append(sale.Lines, LineItem{
			ID:           id.New(),
			SaleID:       sale.ID,
			UnitID:       lr.UnitID,
			QuantitySold: lr.Quantity, // split against on-order during booking
		})
	}
	if err := sale.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for i, lr := range req.Lines {
			line := &sale.Lines[i]

			info, err := s.units.ResolveUnit(ctx, lr.UnitID)
			if err != nil {
				return err
			}
			line.ProductID = info.ProductID
			line.SubProductID = info.SubProductID
			line.ProductName = info.UnitName

			res, err := s.ledger.ApplyEvent(ctx, lr.UnitID, stockledger.EventSold, lr.Quantity, stockledger.ApplyOptions{
				AllowOnOrder: lr.AllowOnOrder,
				RecorderID:   sale.ID,
			})
			if err != nil {
				return err
			}
			line.QuantitySold = lr.Quantity - res.OnOrderBooked
			line.QuantityOnOrder = res.OnOrderBooked

			if err := s.deliveries.RegisterLine(ctx, line.ID, sale.ID, line.UnitID, line.Total()); err != nil {
				return err
			}
		}
		if err := s.repo.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "booked sale",
		"sale_id", sale.ID,
		"number", sale.Number,
		"lines", len(sale.Lines),
	)
	return sale, nil
}

// GetSale returns a sale with lines.
func (s *Service) GetSale(ctx context.Context, saleID id.ID) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("sale", saleID.String())
		}
		return nil, err
	}
	return sale, nil
}

// ListSales returns sales matching the filter.
func (s *Service) ListSales(ctx context.Context, filter Filter) ([]*Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// GetDeliveryInfo implements delivery.SaleInfoReader.
func (s *Service) GetDeliveryInfo(ctx context.Context, saleID id.ID) (delivery.SaleInfo, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return delivery.SaleInfo{}, err
	}
	if sale.DeletionMark {
		return delivery.SaleInfo{}, apperror.NewNotFound("sale", saleID.String())
	}
	return delivery.SaleInfo{
		CustomerName:    sale.CustomerName,
		CustomerPhone:   sale.CustomerPhone,
		DeliveryAddress: sale.DeliveryAddress,
	}, nil
}

// AmendLine changes a line's ordered quantity after booking. The stock
// register is adjusted by the difference, the change lands in the edit
// history, and the new quantity can never undercut what was already
// delivered.
func (s *Service) AmendLine(ctx context.Context, saleID, lineID id.ID, newQuantity types.Quantity, allowOnOrder bool) (*Sale, error) {
	if newQuantity <= 0 {
		return nil, apperror.NewValidation("amended quantity must be positive").
			WithDetail("quantity", newQuantity)
	}

	var sale *Sale
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sale, err = s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.DeletionMark {
			return apperror.NewValidation("cannot amend a deleted sale").
				WithDetail("saleId", saleID.String())
		}
		line, ok := sale.Line(lineID)
		if !ok {
			return apperror.NewNotFound("sale line item", lineID.String())
		}

		oldTotal := line.Total()
		if newQuantity == oldTotal {
			return nil
		}

		state, err := s.deliveries.GetState(ctx, lineID)
		if err != nil {
			return err
		}
		if newQuantity < state.DeliveredCumulative {
			return apperror.NewValidation("amended quantity is below the already delivered amount").
				WithDetail("lineItemId", lineID.String()).
				WithDetail("delivered", state.DeliveredCumulative)
		}

		switch {
		case newQuantity > oldTotal:
			res, err := s.ledger.ApplyEvent(ctx, line.UnitID, stockledger.EventSold, newQuantity-oldTotal, stockledger.ApplyOptions{
				AllowOnOrder: allowOnOrder,
				RecorderID:   sale.ID,
			})
			if err != nil {
				return err
			}
			line.QuantitySold += newQuantity - oldTotal - res.OnOrderBooked
			line.QuantityOnOrder += res.OnOrderBooked
		default:
			// Give back on-order demand first, then booked stock.
			reduce := oldTotal - newQuantity
			fromOnOrder := min(line.QuantityOnOrder, reduce)
			fromSold := reduce - fromOnOrder
			if err := s.ledger.ReverseSale(ctx, line.UnitID, fromSold, fromOnOrder, sale.ID); err != nil {
				return err
			}
			line.QuantitySold -= fromSold
			line.QuantityOnOrder -= fromOnOrder
		}

		expectedVersion := sale.Version
		sale.Touch()
		sale.UpdatedBy = appctx.GetUserID(ctx)
		if err := s.repo.UpdateSale(ctx, sale, expectedVersion); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}

		// Keep the delivery target in step with the amended line.
		if err := s.deliveries.AmendLineTarget(ctx, lineID, newQuantity); err != nil {
			return err
		}

		return s.recordChanges(ctx, saleID, []Change{{
			Field: "quantity:" + line.ProductName,
			Old:   strconv.FormatInt(oldTotal, 10),
			New:   strconv.FormatInt(newQuantity, 10),
		}})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "amended sale line",
		"sale_id", saleID,
		"line_item_id", lineID,
		"new_quantity", newQuantity,
	)
	return sale, nil
}

// Delete voids a sale: delivered custody is reversed, every line's sold and
// on-order quantities are given back to the stock register, and the sale is
// soft-deleted. Compensating events keep the audit trail intact.
func (s *Service) Delete(ctx context.Context, saleID id.ID) error {
	ctx, span := s.tracer.Start(ctx, "sales.Delete")
	defer span.End()

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.DeletionMark {
			return apperror.NewValidation("sale is already deleted").
				WithDetail("saleId", saleID.String())
		}

		if err := s.deliveries.ReverseForSaleDeletion(ctx, saleID); err != nil {
			return err
		}
		for _, line := range sale.Lines {
			if line.Total() == 0 {
				continue
			}
			if err := s.ledger.ReverseSale(ctx, line.UnitID, line.QuantitySold, line.QuantityOnOrder, saleID); err != nil {
				return err
			}
		}
		if err := s.repo.MarkDeleted(ctx, saleID); err != nil {
			return fmt.Errorf("mark sale deleted: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "deleted sale with compensating reversal", "sale_id", saleID)
	return nil
}

// RecordEditHistory appends audit entries for field changes made by
// collaborators that mutate sale fields outside this service (phone,
// payment amounts, addresses).
func (s *Service) RecordEditHistory(ctx context.Context, saleID id.ID, changes []Change) error {
	if len(changes) == 0 {
		return apperror.NewValidation("no changes to record")
	}
	if _, err := s.GetSale(ctx, saleID); err != nil {
		return err
	}
	return s.recordChanges(ctx, saleID, changes)
}

func (s *Service) recordChanges(ctx context.Context, saleID id.ID, changes []Change) error {
	now := time.Now().UTC()
	editedBy := appctx.GetUserID(ctx)
	entries := make([]HistoryEntry, 0, len(changes))
	for _, c := range changes {
		if c.Field == "" {
			return apperror.NewValidation("change field is required")
		}
		entries = append(entries, HistoryEntry{
			ID:       id.New(),
			SaleID:   saleID,
			Field:    c.Field,
			OldValue: c.Old,
			NewValue: c.New,
			EditedAt: now,
			EditedBy: editedBy,
		})
	}
	if err := s.history.AppendEntries(ctx, entries); err != nil {
		return fmt.Errorf("append edit history: %w", err)
	}
	return nil
}

// GetHistory returns a sale's audit trail, oldest first.
func (s *Service) GetHistory(ctx context.Context, saleID id.ID) ([]HistoryEntry, error) {
	if _, err := s.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.history.ListEntries(ctx, saleID)
}

var _ delivery.SaleInfoReader = (*Service)(nil)
