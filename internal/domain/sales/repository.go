package sales

import (
	"context"
	"time"

	"godown/internal/core/id"
)

// Repository persists sales documents.
type Repository interface {
	// CreateSale inserts the sale with its lines.
	CreateSale(ctx context.Context, sale *Sale) error

	// GetSale returns a sale with lines. Soft-deleted sales are returned
	// with the deletion mark set.
	GetSale(ctx context.Context, saleID id.ID) (*Sale, error)

	// UpdateSale writes the sale and its lines conditionally on
	// expectedVersion; a mismatch fails with CONCURRENT_MODIFICATION.
	UpdateSale(ctx context.Context, sale *Sale, expectedVersion int) error

	// MarkDeleted soft-deletes a sale.
	MarkDeleted(ctx context.Context, saleID id.ID) error

	// ListSales returns sales matching the filter, newest first.
	ListSales(ctx context.Context, filter Filter) ([]*Sale, error)
}

// HistoryStore persists the append-only edit history of sales.
type HistoryStore interface {
	// AppendEntries adds audit records. Existing entries are never touched.
	AppendEntries(ctx context.Context, entries []HistoryEntry) error

	// ListEntries returns a sale's audit trail, oldest first.
	ListEntries(ctx context.Context, saleID id.ID) ([]HistoryEntry, error)
}

// Filter narrows sale listings.
type Filter struct {
	CustomerPhone  string
	FromDate       *time.Time
	ToDate         *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}
