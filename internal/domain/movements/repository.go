package movements

import (
	"context"
	"time"

	"godown/internal/core/id"
	"godown/internal/core/types"
)

// Repository persists outgoing movements and physical item requests.
type Repository interface {
	// Movements

	// CreateMovement inserts the movement with its items. A number
	// collision fails with DUPLICATE_ENTRY.
	CreateMovement(ctx context.Context, movement *Movement) error

	// GetMovement returns a movement with items.
	GetMovement(ctx context.Context, movementID id.ID) (*Movement, error)

	// GetMovementByNumber returns a movement by its outgoing challan label.
	GetMovementByNumber(ctx context.Context, number string) (*Movement, error)

	// NumberExists reports whether an outgoing challan label is taken.
	NumberExists(ctx context.Context, number string) (bool, error)

	// ListMovements returns movements matching the filter, newest first.
	ListMovements(ctx context.Context, filter Filter) ([]*Movement, error)

	// CountByAssociatedChallan counts prior movements referencing a
	// delivery challan (the soft duplicate guard).
	CountByAssociatedChallan(ctx context.Context, challanNo string) (int, error)

	// SumDispatchedByChallan sums, per unit, quantities already dispatched
	// under a given associated challan.
	SumDispatchedByChallan(ctx context.Context, challanNo string) (map[id.ID]types.Quantity, error)

	// Items

	// GetItem returns one movement item together with its movement type.
	GetItem(ctx context.Context, itemID id.ID) (Item, Type, error)

	// MarkItemReturned sets the item's returned mark once. A second call
	// fails with ALREADY_RETURNED.
	MarkItemReturned(ctx context.Context, itemID id.ID, returnedAt time.Time) error

	// Physical item requests

	// CreateRequests inserts requests for cross-custody items.
	CreateRequests(ctx context.Context, requests []PhysicalItemRequest) error

	// GetRequest returns one request.
	GetRequest(ctx context.Context, requestID id.ID) (PhysicalItemRequest, error)

	// UpdateRequest writes a request conditionally on expectedVersion.
	UpdateRequest(ctx context.Context, request PhysicalItemRequest, expectedVersion int) error

	// ListRequestsByLocation returns a receiving store's open requests.
	ListRequestsByLocation(ctx context.Context, location string, includeClosed bool) ([]PhysicalItemRequest, error)
}

// Filter narrows movement listings.
type Filter struct {
	MovementType *Type
	FromDate     *time.Time
	ToDate       *time.Time
	Limit        int
	Offset       int
}
