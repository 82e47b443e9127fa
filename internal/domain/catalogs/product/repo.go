package product

import (
	"context"

	"godown/internal/core/id"
	"godown/internal/domain"
)

// Repository extends the generic catalog repository with sub-product access.
// Implementations must load SubProducts (ordered by line_no) on every read.
type Repository interface {
	domain.CatalogRepository[*Product]

	// GetBySubProductID resolves the owning set product of a sub-product.
	// Returns NOT_FOUND if no set owns the given stock unit.
	GetBySubProductID(ctx context.Context, subProductID id.ID) (*Product, error)

	// ListSets returns all non-deleted set products with their sub-products.
	ListSets(ctx context.Context) ([]*Product, error)
}
