package dto

import (
	"godown/internal/domain/sales"
)

// AmendLineRequest changes a line item's quantity.
type AmendLineRequest struct {
	Quantity     int64 `json:"quantity" binding:"required,min=1"`
	AllowOnOrder bool  `json:"allowOnOrder,omitempty"`
}

// RecordHistoryRequest appends field changes to a sale's edit history.
type RecordHistoryRequest struct {
	Changes []sales.Change `json:"changes" binding:"required,min=1"`
}

// ReceiveItemRequest records physical receipt against an item request.
type ReceiveItemRequest struct {
	Quantity int64 `json:"quantity" binding:"required,min=1"`
}
