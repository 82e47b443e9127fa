// Package product provides the Product catalog: the source of truth for
// which stock-bearing units exist and how many of each sub-product a
// complete Set requires.
package product

import (
	"context"

	"godown/internal/core/apperror"
	"godown/internal/core/entity"
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// Kind distinguishes a single stock-bearing product from a composite Set.
type Kind string

const (
	// KindIndividual products own exactly one stock unit (the product itself).
	KindIndividual Kind = "individual"
	// KindSet products are composites of independently stocked sub-products.
	KindSet Kind = "set"
)

// Product represents a sellable catalog item.
//
// For Individual products the product's own ID doubles as its stock unit ID.
// For Set products every SubProduct is its own stock unit; the set itself
// carries no stock and its availability is derived (see the sets package).
type Product struct {
	entity.Catalog

	// Kind defines whether this is an individual product or a set
	Kind Kind `db:"kind" json:"kind"`

	// SKU is the retailer's article number
	SKU *string `db:"sku" json:"sku,omitempty"`

	// Description is a detailed description
	Description *string `db:"description" json:"description,omitempty"`

	// SubProducts are the set's parts, ordered (empty for individual products)
	SubProducts []SubProduct `db:"-" json:"subProducts,omitempty"`
}

// SubProduct is one part of a Set product. It is independently stock-bearing.
type SubProduct struct {
	// SubProductID is the stock unit identity of this part
	SubProductID id.ID `db:"sub_product_id" json:"subProductId"`

	// LineNo preserves the set's part ordering
	LineNo int `db:"line_no" json:"lineNo"`

	// Name is the part's display name
	Name string `db:"name" json:"name"`

	// RequiredPerSet is how many units of this part one complete set needs
	RequiredPerSet types.Quantity `db:"required_per_set" json:"requiredPerSet"`
}

// NewIndividual creates a new individual product.
func NewIndividual(code, name string) *Product {
	return &Product{
		Catalog: entity.NewCatalog(code, name),
		Kind:    KindIndividual,
	}
}

// NewSet creates a new set product with no parts yet.
func NewSet(code, name string) *Product {
	return &Product{
		Catalog:     entity.NewCatalog(code, name),
		Kind:        KindSet,
		SubProducts: make([]SubProduct, 0),
	}
}

// AddSubProduct appends a part to a set product.
func (p *Product) AddSubProduct(name string, requiredPerSet types.Quantity) {
	p.SubProducts = append(p.SubProducts, SubProduct{
		SubProductID:   id.New(),
		LineNo:         len(p.SubProducts) + 1,
		Name:           name,
		RequiredPerSet: requiredPerSet,
	})
}

// IsSet reports whether the product is a composite set.
func (p *Product) IsSet() bool {
	return p.Kind == KindSet
}

// StockUnitIDs returns the IDs of all stock-bearing units this product owns.
func (p *Product) StockUnitIDs() []id.ID {
	if !p.IsSet() {
		return []id.ID{p.ID}
	}
	units := make([]id.ID, 0, len(p.SubProducts))
	for _, sp := range p.SubProducts {
		units = append(units, sp.SubProductID)
	}
	return units
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	switch p.Kind {
	case KindIndividual:
		if len(p.SubProducts) > 0 {
			return apperror.NewValidation("individual product cannot have sub-products").
				WithDetail("field", "subProducts")
		}
	case KindSet:
		if len(p.SubProducts) == 0 {
			return apperror.NewValidation("set product requires at least one sub-product").
				WithDetail("field", "subProducts")
		}
		for i, sp := range p.SubProducts {
			if sp.Name == "" {
				return apperror.NewValidation("sub-product name is required").
					WithDetail("field", "subProducts").
					WithDetail("lineNo", i+1)
			}
			if sp.RequiredPerSet < 1 {
				return apperror.NewValidation("required quantity per set must be at least 1").
					WithDetail("field", "subProducts").
					WithDetail("lineNo", i+1)
			}
		}
	default:
		return apperror.NewValidation("invalid product kind").
			WithDetail("field", "kind").
			WithDetail("value", string(p.Kind))
	}

	return nil
}
