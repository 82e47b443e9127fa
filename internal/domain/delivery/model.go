// Package delivery tracks fulfillment of sale line items: cumulative
// delivered quantities across partial deliveries, and the immutable
// delivery challans produced by each confirmed delivery.
package delivery

import (
	"context"
	"time"

	"godown/internal/core/apperror"
	"godown/internal/core/entity"
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// LineStatus is the fulfillment state of one sale line item.
type LineStatus string

const (
	LineUndelivered        LineStatus = "undelivered"
	LinePartiallyDelivered LineStatus = "partially_delivered"
	LineFullyDelivered     LineStatus = "fully_delivered"
)

// SaleStatus is the derived delivery status of a whole sale.
type SaleStatus string

const (
	SaleNoDelivery         SaleStatus = "no_delivery"
	SalePartiallyDelivered SaleStatus = "partially_delivered"
	SaleFullyDelivered     SaleStatus = "fully_delivered"
)

// State is the fulfillment record of one sale line item. Created implicitly
// with the line at zero delivered; mutated only by confirmed deliveries
// (never by a proposal built but not confirmed) and by the compensating
// reversal of a sale deletion.
type State struct {
	LineItemID id.ID `db:"line_item_id" json:"lineItemId"`
	SaleID     id.ID `db:"sale_id" json:"saleId"`
	UnitID     id.ID `db:"unit_id" json:"unitId"`

	// QuantityOrdered is the line's total to fulfill (sold + on-order)
	QuantityOrdered types.Quantity `db:"quantity_ordered" json:"quantityOrdered"`

	// DeliveredCumulative only grows, except across a sale-deletion reversal
	DeliveredCumulative types.Quantity `db:"delivered_cumulative" json:"quantityDeliveredCumulative"`

	Version   int       `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Remaining is what is left to deliver on the line.
func (s State) Remaining() types.Quantity {
	return s.QuantityOrdered - s.DeliveredCumulative
}

// IsFullyDelivered reports whether the line reached its terminal state.
func (s State) IsFullyDelivered() bool {
	return s.Remaining() <= 0
}

// Status derives the line's fulfillment state.
func (s State) Status() LineStatus {
	switch {
	case s.DeliveredCumulative == 0:
		return LineUndelivered
	case s.IsFullyDelivered():
		return LineFullyDelivered
	default:
		return LinePartiallyDelivered
	}
}

// DeriveSaleStatus folds line states into the sale-level display status.
func DeriveSaleStatus(states []State) SaleStatus {
	if len(states) == 0 {
		return SaleNoDelivery
	}
	allUndelivered, allFull := true, true
	for _, s := range states {
		switch s.Status() {
		case LineUndelivered:
			allFull = false
		case LineFullyDelivered:
			allUndelivered = false
		default:
			allUndelivered, allFull = false, false
		}
	}
	switch {
	case allUndelivered:
		return SaleNoDelivery
	case allFull:
		return SaleFullyDelivered
	default:
		return SalePartiallyDelivered
	}
}

// ChallanItem is one delivered tuple on a challan.
type ChallanItem struct {
	ID           id.ID          `db:"id" json:"id"`
	ChallanID    id.ID          `db:"challan_id" json:"challanId"`
	LineItemID   id.ID          `db:"line_item_id" json:"lineItemId"`
	ProductID    id.ID          `db:"product_id" json:"productId"`
	SubProductID *id.ID         `db:"sub_product_id" json:"subProductId,omitempty"`
	UnitID       id.ID          `db:"unit_id" json:"unitId"`
	ProductName  string         `db:"product_name" json:"productName"`
	Quantity     types.Quantity `db:"quantity" json:"quantityDelivered"`
}

// Challan is the delivery document accompanying physical goods. Immutable
// once created; exactly one per confirmed delivery, persisted before any
// derived export artifact.
type Challan struct {
	entity.Document

	SaleID id.ID `db:"sale_id" json:"saleId"`

	// Customer identity, denormalized at confirmation time
	CustomerName    string `db:"customer_name" json:"customerName"`
	CustomerPhone   string `db:"customer_phone" json:"customerPhone"`
	DeliveryAddress string `db:"delivery_address" json:"deliveryAddress"`

	// TransportCharge is the transportation fee for this trip
	TransportCharge types.Money `db:"transport_charge" json:"transportationCharge"`

	// DeliveryStaff are the names of the people carrying out the delivery
	DeliveryStaff []string `db:"delivery_staff" json:"deliveryStaff"`

	Items []ChallanItem `db:"-" json:"items"`
}

// Validate implements entity.Validatable.
func (c *Challan) Validate(ctx context.Context) error {
	if err := c.Document.Validate(ctx); err != nil {
		return err
	}
	if c.Number == "" {
		return apperror.NewValidation("challan number is required").
			WithDetail("field", "number")
	}
	if id.IsNil(c.SaleID) {
		return apperror.NewValidation("sale id is required").
			WithDetail("field", "saleId")
	}
	if len(c.Items) == 0 {
		return apperror.NewValidation("challan requires at least one item").
			WithDetail("field", "items")
	}
	for i, item := range c.Items {
		if item.Quantity <= 0 {
			return apperror.NewValidation("challan item quantity must be positive").
				WithDetail("index", i)
		}
	}
	return nil
}
