package dto

import (
	"godown/internal/core/types"
	"godown/internal/domain/catalogs/product"
)

// SubProductRequest is one part of a set in create/update requests.
type SubProductRequest struct {
	Name           string `json:"name" binding:"required"`
	RequiredPerSet int64  `json:"requiredPerSet" binding:"required,min=1"`
}

// CreateProductRequest for creating products.
type CreateProductRequest struct {
	Code        string              `json:"code"`
	Name        string              `json:"name" binding:"required"`
	Kind        string              `json:"kind" binding:"required,oneof=individual set"`
	SKU         *string             `json:"sku"`
	Description *string             `json:"description"`
	SubProducts []SubProductRequest `json:"subProducts"`
}

// ToProduct builds the domain entity from the request.
func (r CreateProductRequest) ToProduct() *product.Product {
	var p *product.Product
	if product.Kind(r.Kind) == product.KindSet {
		p = product.NewSet(r.Code, r.Name)
		for _, sp := range r.SubProducts {
			p.AddSubProduct(sp.Name, types.Quantity(sp.RequiredPerSet))
		}
	} else {
		p = product.NewIndividual(r.Code, r.Name)
	}
	p.SKU = r.SKU
	p.Description = r.Description
	return p
}

// UpdateProductRequest for updating products. Kind is immutable.
type UpdateProductRequest struct {
	Code        *string `json:"code"`
	Name        *string `json:"name"`
	SKU         *string `json:"sku"`
	Description *string `json:"description"`

	// Version for optimistic locking
	Version int `json:"version" binding:"required,min=1"`
}
