package delivery

import (
	"context"
	"time"

	"godown/internal/core/id"
)

// StateRepository persists per-line fulfillment states.
type StateRepository interface {
	// CreateState inserts the implicit zero-delivered state for a new line.
	CreateState(ctx context.Context, state State) error

	// GetState returns the state for a line item.
	GetState(ctx context.Context, lineItemID id.ID) (State, error)

	// GetStatesBySale returns all line states of a sale.
	GetStatesBySale(ctx context.Context, saleID id.ID) ([]State, error)

	// UpdateState writes a state conditionally on expectedVersion; a
	// mismatch fails with CONCURRENT_MODIFICATION.
	UpdateState(ctx context.Context, state State, expectedVersion int) error

	// DeleteStatesBySale removes the states of a deleted sale.
	DeleteStatesBySale(ctx context.Context, saleID id.ID) error
}

// ChallanRepository persists delivery challans. Challans are insert-only.
type ChallanRepository interface {
	// CreateChallan inserts the challan with its items. A challan number
	// collision fails with DUPLICATE_ENTRY.
	CreateChallan(ctx context.Context, challan *Challan) error

	// GetChallan returns a challan with items by surrogate ID.
	GetChallan(ctx context.Context, challanID id.ID) (*Challan, error)

	// GetChallanByNumber returns a challan with items by display label.
	GetChallanByNumber(ctx context.Context, number string) (*Challan, error)

	// ChallanNumberExists reports whether a label is already taken.
	ChallanNumberExists(ctx context.Context, number string) (bool, error)

	// ListChallans returns challans matching the filter, newest first.
	ListChallans(ctx context.Context, filter ChallanFilter) ([]*Challan, error)
}

// Repository bundles both delivery stores.
type Repository interface {
	StateRepository
	ChallanRepository
}

// ChallanFilter narrows challan listings.
type ChallanFilter struct {
	SaleID   *id.ID
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
