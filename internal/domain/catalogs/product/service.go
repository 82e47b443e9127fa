package product

import (
	"context"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/tx"
	"godown/internal/domain"
)

// UnitInfo describes a stock unit for presentation: which product it belongs
// to and, for set parts, which sub-product it is.
type UnitInfo struct {
	UnitID       id.ID   `json:"unitId"`
	ProductID    id.ID   `json:"productId"`
	ProductName  string  `json:"productName"`
	SubProductID *id.ID  `json:"subProductId,omitempty"`
	UnitName     string  `json:"unitName"`
	SKU          *string `json:"sku,omitempty"`
}

// Service provides product catalog business logic.
type Service struct {
	*domain.CatalogService[*Product]

	repo Repository
}

// NewService creates a product service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		CatalogService: domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
			Repo:       repo,
			TxManager:  txManager,
			EntityName: "product",
		}),
		repo: repo,
	}
}

// ListSets returns all set products with their parts.
func (s *Service) ListSets(ctx context.Context) ([]*Product, error) {
	return s.repo.ListSets(ctx)
}

// ResolveUnit maps a stock unit ID back to its product. The unit is either an
// individual product's own ID or a sub-product ID of a set.
func (s *Service) ResolveUnit(ctx context.Context, unitID id.ID) (UnitInfo, error) {
	p, err := s.repo.GetByID(ctx, unitID)
	if err == nil {
		if p.IsSet() {
			// A set's own ID is never a stock unit.
			return UnitInfo{}, apperror.NewNotFound("stock unit", unitID.String())
		}
		return UnitInfo{
			UnitID:      unitID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitName:    p.Name,
			SKU:         p.SKU,
		}, nil
	}
	if !apperror.IsNotFound(err) {
		return UnitInfo{}, err
	}

	owner, err := s.repo.GetBySubProductID(ctx, unitID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return UnitInfo{}, apperror.NewNotFound("stock unit", unitID.String())
		}
		return UnitInfo{}, err
	}
	for _, sp := range owner.SubProducts {
		if sp.SubProductID == unitID {
			spID := sp.SubProductID
			return UnitInfo{
				UnitID:       unitID,
				ProductID:    owner.ID,
				ProductName:  owner.Name,
				SubProductID: &spID,
				UnitName:     owner.Name + " / " + sp.Name,
				SKU:          owner.SKU,
			}, nil
		}
	}
	return UnitInfo{}, apperror.NewNotFound("stock unit", unitID.String())
}
