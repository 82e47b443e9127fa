// Package stockledger provides the stock accumulation register: per-unit
// counters derived from an append-only stream of stock events.
package stockledger

import (
	"time"

	"godown/internal/core/id"
	"godown/internal/core/types"
)

// EventType classifies a stock event.
type EventType string

const (
	// EventReceived — stock arrived at the store (purchase, production)
	EventReceived EventType = "received"

	// EventSold — a sale committed quantity against the unit
	EventSold EventType = "sold"

	// EventReturned — a customer returned previously sold goods
	EventReturned EventType = "returned"

	// EventOutDispatched — goods left the store via an outgoing movement
	EventOutDispatched EventType = "outgoing_dispatched"

	// EventOutReturned — a repair item came back from an outgoing movement
	EventOutReturned EventType = "outgoing_returned"

	// EventDelivered — sold goods physically handed to the customer.
	// Affects in-store custody only; balance was already reduced at sale time.
	EventDelivered EventType = "delivered"

	// EventSaleReversed — compensating event for a deleted sale
	EventSaleReversed EventType = "sale_reversed"

	// EventDeliveryReversed — compensating event undoing delivered custody
	EventDeliveryReversed EventType = "delivery_reversed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventReceived, EventSold, EventReturned, EventOutDispatched,
		EventOutReturned, EventDelivered, EventSaleReversed, EventDeliveryReversed:
		return true
	}
	return false
}

// StockEvent is one append-only ledger entry. Events are never updated or
// deleted; reversals are recorded as compensating events.
type StockEvent struct {
	ID     id.ID     `db:"id" json:"id"`
	UnitID id.ID     `db:"unit_id" json:"unitId"`
	Type   EventType `db:"event_type" json:"type"`

	// Quantity is the primary amount of the event. For a sold event this is
	// the portion booked against available balance.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// OnOrderQuantity is the portion of a sold event accepted against future
	// stock (zero for all other event types).
	OnOrderQuantity types.Quantity `db:"on_order_quantity" json:"onOrderQuantity,omitempty"`

	// ConvertedQuantity is the portion of a received event that settled
	// outstanding on-order demand (zero for all other event types).
	ConvertedQuantity types.Quantity `db:"converted_quantity" json:"convertedQuantity,omitempty"`

	// RecorderID is the document that produced this event (sale, challan,
	// outgoing movement). Nil for manual stock additions.
	RecorderID id.ID `db:"recorder_id" json:"recorderId,omitempty"`

	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
	RecordedBy string    `db:"recorded_by" json:"recordedBy,omitempty"`
}

// BalanceDelta returns the event's signed contribution to the unit's balance.
func (e StockEvent) BalanceDelta() types.Quantity {
	switch e.Type {
	case EventReceived:
		return e.Quantity - e.ConvertedQuantity
	case EventSold:
		return -e.Quantity
	case EventReturned, EventOutReturned, EventSaleReversed:
		return e.Quantity
	case EventOutDispatched:
		return -e.Quantity
	default:
		// delivered / delivery_reversed move custody, not balance
		return 0
	}
}

// StockUnit holds the materialized counters for one stock-bearing unit
// (an individual product or a set's sub-product). Counters change only
// through ApplyEvent; Balance and InStore are always derived.
type StockUnit struct {
	UnitID id.ID `db:"unit_id" json:"unitId"`

	Received      types.Quantity `db:"received" json:"received"`
	Sold          types.Quantity `db:"sold" json:"sold"`
	Returned      types.Quantity `db:"returned" json:"returned"`
	OutDispatched types.Quantity `db:"out_dispatched" json:"outDispatched"`
	OutReturned   types.Quantity `db:"out_returned" json:"outReturned"`
	Delivered     types.Quantity `db:"delivered" json:"delivered"`

	// OnOrder is demand accepted against future stock (never a negative balance)
	OnOrder types.Quantity `db:"on_order" json:"onOrder"`

	// Version guards concurrent counter updates
	Version int `db:"version" json:"version"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Balance is the sellable quantity of the unit.
func (u StockUnit) Balance() types.Quantity {
	return u.Received - u.Sold + u.Returned - u.OutDispatched + u.OutReturned
}

// InStore is the quantity physically on premises: received and returned
// goods minus everything that has physically left (delivered to customers
// or dispatched out and not yet back).
func (u StockUnit) InStore() types.Quantity {
	return u.Received + u.Returned + u.OutReturned - u.Delivered - u.OutDispatched
}
