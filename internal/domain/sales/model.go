// Package sales owns the sale document: booking line items against the
// stock register, amending them with a full audit trail, and deleting a
// sale with its compensating reversals.
package sales

import (
	"context"
	"time"

	"godown/internal/core/apperror"
	"godown/internal/core/entity"
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// LineItem is one sold position. QuantitySold and QuantityOnOrder are fixed
// at booking; they change only through an explicit amendment, which is
// captured in the sale's edit history.
type LineItem struct {
	ID     id.ID `db:"id" json:"id"`
	SaleID id.ID `db:"sale_id" json:"saleId"`

	ProductID    id.ID  `db:"product_id" json:"productId"`
	SubProductID *id.ID `db:"sub_product_id" json:"subProductId,omitempty"`
	UnitID       id.ID  `db:"unit_id" json:"unitId"`
	ProductName  string `db:"product_name" json:"productName"`

	// QuantitySold was booked against available balance
	QuantitySold types.Quantity `db:"quantity_sold" json:"quantitySold"`

	// QuantityOnOrder was accepted against future stock
	QuantityOnOrder types.Quantity `db:"quantity_on_order" json:"quantityOnOrder"`
}

// Total is the line's full ordered quantity.
func (l LineItem) Total() types.Quantity {
	return l.QuantitySold + l.QuantityOnOrder
}

// Sale is the sales document.
type Sale struct {
	entity.Document

	CustomerName    string `db:"customer_name" json:"customerName"`
	CustomerPhone   string `db:"customer_phone" json:"customerPhone"`
	DeliveryAddress string `db:"delivery_address" json:"deliveryAddress"`

	Lines []LineItem `db:"-" json:"lines"`
}

// Validate implements entity.Validatable.
func (s *Sale) Validate(ctx context.Context) error {
	if err := s.Document.Validate(ctx); err != nil {
		return err
	}
	if s.CustomerName == "" {
		return apperror.NewValidation("customer name is required").
			WithDetail("field", "customerName")
	}
	if len(s.Lines) == 0 {
		return apperror.NewValidation("sale requires at least one line item").
			WithDetail("field", "lines")
	}
	for i, line := range s.Lines {
		if id.IsNil(line.UnitID) {
			return apperror.NewValidation("line unit is required").
				WithDetail("index", i)
		}
		if line.Total() <= 0 {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("index", i)
		}
	}
	return nil
}

// Line finds a line item by ID.
func (s *Sale) Line(lineID id.ID) (*LineItem, bool) {
	for i := range s.Lines {
		if s.Lines[i].ID == lineID {
			return &s.Lines[i], true
		}
	}
	return nil, false
}

// HistoryEntry is one append-only audit record of a tracked field change.
// Entries are never mutated or deleted.
type HistoryEntry struct {
	ID       id.ID     `db:"id" json:"id"`
	SaleID   id.ID     `db:"sale_id" json:"saleId"`
	Field    string    `db:"field" json:"field"`
	OldValue string    `db:"old_value" json:"oldValue"`
	NewValue string    `db:"new_value" json:"newValue"`
	EditedAt time.Time `db:"edited_at" json:"editedAt"`
	EditedBy string    `db:"edited_by" json:"editedBy,omitempty"`
}

// Change is one field change reported by a collaborator.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}
