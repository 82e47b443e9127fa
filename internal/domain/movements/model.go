// Package movements records physical stock leaving a location: repairs,
// inter-store transfers, and the trips that carry out customer deliveries.
package movements

import (
	"context"
	"time"

	"godown/internal/core/apperror"
	"godown/internal/core/entity"
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// Type is the business reason for stock leaving.
type Type string

const (
	TypeRepairs        Type = "repairs"
	TypeInterStore     Type = "interstore"
	TypePartOfDelivery Type = "part_of_delivery"
)

// Direction of an inter-store transfer, from this store's point of view.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Item is one moved position of an outgoing movement.
type Item struct {
	ID         id.ID `db:"id" json:"id"`
	MovementID id.ID `db:"movement_id" json:"movementId"`

	ProductID    id.ID  `db:"product_id" json:"productId"`
	SubProductID *id.ID `db:"sub_product_id" json:"subProductId,omitempty"`
	UnitID       id.ID  `db:"unit_id" json:"unitId"`
	ProductName  string `db:"product_name" json:"productName"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Reason is required for repairs and inter-store items
	Reason string `db:"reason" json:"reason,omitempty"`

	// ReturnedAt is set once when a repairs item comes back
	ReturnedAt *time.Time `db:"returned_at" json:"returnedAt,omitempty"`
}

// Movement is the outgoing challan document. Immutable once created except
// for the per-item repair-return mark.
type Movement struct {
	entity.Document

	MovementType Type `db:"movement_type" json:"movementType"`

	DriverName  string `db:"driver_name" json:"driverName"`
	Origin      string `db:"origin" json:"origin"`
	Destination string `db:"destination" json:"destination"`

	// Inter-store fields
	Direction         Direction `db:"direction" json:"direction,omitempty"`
	SendingLocation   string    `db:"sending_location" json:"sendingLocation,omitempty"`
	ReceivingLocation string    `db:"receiving_location" json:"receivingLocation,omitempty"`

	// Part-of-delivery fields. The referenced challan may be our own or an
	// externally sourced dispatch challan.
	AssociatedChallanNo string `db:"associated_challan_no" json:"associatedChallanId,omitempty"`
	CustomerName        string `db:"customer_name" json:"customerName,omitempty"`
	DeliveryAddress     string `db:"delivery_address" json:"deliveryAddress,omitempty"`

	Items []Item `db:"-" json:"items"`
}

// CrossesCustody reports whether the movement hands goods into another
// store's custody, which generates physical item requests there.
func (m *Movement) CrossesCustody() bool {
	switch m.MovementType {
	case TypeInterStore:
		return m.Direction == DirectionSend
	case TypePartOfDelivery:
		return m.ReceivingLocation != ""
	}
	return false
}

// Validate implements entity.Validatable.
func (m *Movement) Validate(ctx context.Context) error {
	if err := m.Document.Validate(ctx); err != nil {
		return err
	}
	if m.DriverName == "" {
		return apperror.NewValidation("driver name is required").WithDetail("field", "driverName")
	}
	if m.Origin == "" {
		return apperror.NewValidation("origin is required").WithDetail("field", "origin")
	}
	if m.Destination == "" {
		return apperror.NewValidation("destination is required").WithDetail("field", "destination")
	}

	switch m.MovementType {
	case TypeRepairs:
	case TypeInterStore:
		if m.Direction != DirectionSend && m.Direction != DirectionReceive {
			return apperror.NewValidation("inter-store movement requires a direction").
				WithDetail("field", "direction")
		}
		if m.SendingLocation == "" || m.ReceivingLocation == "" {
			return apperror.NewValidation("inter-store movement requires sending and receiving locations")
		}
	case TypePartOfDelivery:
		if m.AssociatedChallanNo == "" {
			return apperror.NewValidation("part-of-delivery movement requires an associated challan").
				WithDetail("field", "associatedChallanId")
		}
	default:
		return apperror.NewValidation("invalid movement type").
			WithDetail("field", "movementType").
			WithDetail("value", string(m.MovementType))
	}

	if len(m.Items) == 0 {
		return apperror.NewValidation("movement requires at least one item").
			WithDetail("field", "items")
	}
	for i, item := range m.Items {
		if item.Quantity <= 0 {
			return apperror.NewValidation("item quantity must be positive").
				WithDetail("index", i)
		}
		if id.IsNil(item.UnitID) {
			return apperror.NewValidation("item unit is required").
				WithDetail("index", i)
		}
		if (m.MovementType == TypeRepairs || m.MovementType == TypeInterStore) && item.Reason == "" {
			return apperror.NewValidation("item reason is required").
				WithDetail("index", i)
		}
	}
	return nil
}

// RequestStatus tracks physical receipt at the receiving store.
type RequestStatus string

const (
	RequestPending           RequestStatus = "pending"
	RequestPartiallyReceived RequestStatus = "partially_received"
	RequestReceived          RequestStatus = "received"
)

// PhysicalItemRequest is the receiving store's record of goods in transit.
// Receipt is tracked separately from the sale/delivery relationship because
// goods can be lost or short-shipped on the way.
type PhysicalItemRequest struct {
	ID             id.ID `db:"id" json:"id"`
	MovementID     id.ID `db:"movement_id" json:"movementId"`
	MovementItemID id.ID `db:"movement_item_id" json:"movementItemId"`

	UnitID            id.ID  `db:"unit_id" json:"unitId"`
	ProductName       string `db:"product_name" json:"productName"`
	ReceivingLocation string `db:"receiving_location" json:"receivingLocation"`

	QuantityRequested types.Quantity `db:"quantity_requested" json:"quantityRequested"`
	QuantityReceived  types.Quantity `db:"quantity_received" json:"quantityReceived"`

	Status    RequestStatus `db:"status" json:"status"`
	Version   int           `db:"version" json:"version"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// Outstanding is the quantity still in transit.
func (r PhysicalItemRequest) Outstanding() types.Quantity {
	return r.QuantityRequested - r.QuantityReceived
}

// DeriveStatus recomputes the status from quantities.
func (r PhysicalItemRequest) DeriveStatus() RequestStatus {
	switch {
	case r.QuantityReceived == 0:
		return RequestPending
	case r.QuantityReceived < r.QuantityRequested:
		return RequestPartiallyReceived
	default:
		return RequestReceived
	}
}
