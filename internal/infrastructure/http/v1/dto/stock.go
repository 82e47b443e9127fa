package dto

// ApplyStockEventRequest records one event against a stock unit.
type ApplyStockEventRequest struct {
	Type     string `json:"type" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,min=1"`

	// AllowOnOrder lets a sold event book the excess as on-order.
	AllowOnOrder bool `json:"allowOnOrder,omitempty"`
}
