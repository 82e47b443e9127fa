package sets

import (
	"context"
	"fmt"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/registers/stockledger"
)

// BrokenSetReport is the per-set view behind the Broken Sets page.
// Derived only, never stored.
type BrokenSetReport struct {
	SetProductID    id.ID          `json:"setProductId"`
	SetName         string         `json:"setName"`
	MaxCompleteSets types.Quantity `json:"currentMaxCompleteSets"`
	TargetSets      types.Quantity `json:"targetSets"`
	ToOrder         []Shortfall    `json:"toOrderSubProducts"`
}

// OutOfStockItem is one entry of the out-of-stock report.
type OutOfStockItem struct {
	ProductID id.ID  `json:"productId"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
}

// OutOfStockReport lists individuals with zero balance and sets whose every
// sub-product balance is zero.
type OutOfStockReport struct {
	Individuals []OutOfStockItem `json:"individuals"`
	Sets        []OutOfStockItem `json:"sets"`
}

// BalanceReader provides fresh balances for a batch of stock units.
type BalanceReader interface {
	GetBalances(ctx context.Context, unitIDs []id.ID) (map[id.ID]types.Quantity, error)
}

// Service composes the catalog and the stock register into reporting views.
type Service struct {
	products *product.Service
	balances BalanceReader
}

// NewService creates a set reporting service.
func NewService(products *product.Service, balances BalanceReader) *Service {
	return &Service{
		products: products,
		balances: balances,
	}
}

// BrokenSet computes the broken-set report for one set product.
func (s *Service) BrokenSet(ctx context.Context, setProductID id.ID) (BrokenSetReport, error) {
	p, err := s.products.GetByID(ctx, setProductID)
	if err != nil {
		return BrokenSetReport{}, err
	}
	if !p.IsSet() {
		return BrokenSetReport{}, apperror.NewValidation("product is not a set").
			WithDetail("productId", setProductID.String())
	}

	parts, err := s.loadParts(ctx, p)
	if err != nil {
		return BrokenSetReport{}, err
	}

	maxSets := MaxCompleteSets(parts)
	target := maxSets + 1
	return BrokenSetReport{
		SetProductID:    p.ID,
		SetName:         p.Name,
		MaxCompleteSets: maxSets,
		TargetSets:      target,
		ToOrder:         Shortfalls(parts, target),
	}, nil
}

// BrokenSets computes reports for every set in the catalog, keeping only
// sets that actually have a shortfall.
func (s *Service) BrokenSets(ctx context.Context) ([]BrokenSetReport, error) {
	setProducts, err := s.products.ListSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	reports := make([]BrokenSetReport, 0, len(setProducts))
	for _, p := range setProducts {
		parts, err := s.loadParts(ctx, p)
		if err != nil {
			return nil, err
		}
		maxSets := MaxCompleteSets(parts)
		target := maxSets + 1
		shortfalls := Shortfalls(parts, target)
		if len(shortfalls) == 0 {
			continue
		}
		reports = append(reports, BrokenSetReport{
			SetProductID:    p.ID,
			SetName:         p.Name,
			MaxCompleteSets: maxSets,
			TargetSets:      target,
			ToOrder:         shortfalls,
		})
	}
	return reports, nil
}

func (s *Service) loadParts(ctx context.Context, p *product.Product) ([]Part, error) {
	unitIDs := p.StockUnitIDs()
	balances, err := s.balances.GetBalances(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("read balances for set %s: %w", p.ID, err)
	}

	parts := make([]Part, 0, len(p.SubProducts))
	for _, sp := range p.SubProducts {
		parts = append(parts, Part{
			SubProductID: sp.SubProductID,
			Name:         sp.Name,
			Required:     sp.RequiredPerSet,
			Balance:      balances[sp.SubProductID],
		})
	}
	return parts, nil
}

// OutOfStock lists products with nothing left to sell: individuals at zero
// balance and sets where every sub-product balance is zero.
func (s *Service) OutOfStock(ctx context.Context) (OutOfStockReport, error) {
	report := OutOfStockReport{
		Individuals: make([]OutOfStockItem, 0),
		Sets:        make([]OutOfStockItem, 0),
	}

	filter := domain.DefaultListFilter()
	filter.Limit = outOfStockPageSize
	for {
		page, err := s.products.List(ctx, filter)
		if err != nil {
			return OutOfStockReport{}, fmt.Errorf("list products: %w", err)
		}
		if len(page.Items) == 0 {
			break
		}

		unitIDs := make([]id.ID, 0, len(page.Items))
		for _, p := range page.Items {
			unitIDs = append(unitIDs, p.StockUnitIDs()...)
		}
		balances, err := s.balances.GetBalances(ctx, unitIDs)
		if err != nil {
			return OutOfStockReport{}, fmt.Errorf("read balances: %w", err)
		}

		for _, p := range page.Items {
			allZero := true
			for _, unitID := range p.StockUnitIDs() {
				if balances[unitID] > 0 {
					allZero = false
					break
				}
			}
			if !allZero {
				continue
			}
			item := OutOfStockItem{ProductID: p.ID, Name: p.Name, Kind: string(p.Kind)}
			if p.IsSet() {
				report.Sets = append(report.Sets, item)
			} else {
				report.Individuals = append(report.Individuals, item)
			}
		}

		filter.Offset += len(page.Items)
		if int64(filter.Offset) >= page.TotalCount {
			break
		}
	}

	return report, nil
}

const outOfStockPageSize = 500

var _ BalanceReader = (*stockledger.Service)(nil)
