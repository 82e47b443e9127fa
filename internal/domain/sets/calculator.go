// Package sets derives set completion figures from sub-product balances:
// how many complete sets the current stock supports, and what to order to
// complete more. All derivations are pure and recomputed per request —
// cached results go stale the moment stock moves, and stale shortfalls
// drive wrong purchase decisions.
package sets

import (
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// Part is one sub-product's inputs to the calculation.
type Part struct {
	SubProductID id.ID          `json:"subProductId"`
	Name         string         `json:"name"`
	Required     types.Quantity `json:"requiredPerSet"`
	Balance      types.Quantity `json:"balance"`
}

// Shortfall is a sub-product whose balance blocks the target set count.
type Shortfall struct {
	SubProductID id.ID          `json:"subProductId"`
	Name         string         `json:"name"`
	Required     types.Quantity `json:"requiredPerSet"`
	Balance      types.Quantity `json:"balance"`
	Shortfall    types.Quantity `json:"shortfall"`
}

// MaxCompleteSets returns how many full sets the given balances support:
// the minimum over parts of floor(balance / required). Parts with a
// non-positive required quantity are skipped (invalid catalog data must not
// zero out the whole set). No parts means no sets.
func MaxCompleteSets(parts []Part) types.Quantity {
	first := true
	var sets types.Quantity
	for _, p := range parts {
		if p.Required <= 0 {
			continue
		}
		balance := max(p.Balance, 0)
		n := balance / p.Required
		if first || n < sets {
			sets = n
			first = false
		}
	}
	if first {
		return 0
	}
	return sets
}

// Shortfalls returns, for a target of building targetSets complete sets,
// each part whose balance falls short of required*targetSets. Parts already
// sufficient are omitted; an empty result means nothing blocks the target.
func Shortfalls(parts []Part, targetSets types.Quantity) []Shortfall {
	out := make([]Shortfall, 0)
	for _, p := range parts {
		if p.Required <= 0 {
			continue
		}
		needed := p.Required * targetSets
		short := needed - p.Balance
		if short > 0 {
			out = append(out, Shortfall{
				SubProductID: p.SubProductID,
				Name:         p.Name,
				Required:     p.Required,
				Balance:      p.Balance,
				Shortfall:    short,
			})
		}
	}
	return out
}

// NextSetTarget is the business rule for how far ahead to order: one set
// beyond what the current stock completes.
func NextSetTarget(parts []Part) types.Quantity {
	return MaxCompleteSets(parts) + 1
}
