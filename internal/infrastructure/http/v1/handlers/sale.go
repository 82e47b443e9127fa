package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"godown/internal/core/types"
	"godown/internal/domain/sales"
	"godown/internal/infrastructure/http/v1/dto"
)

// SaleHandler serves the sales endpoints.
type SaleHandler struct {
	*BaseHandler
	sales *sales.Service
}

func NewSaleHandler(salesService *sales.Service) *SaleHandler {
	return &SaleHandler{
		BaseHandler: NewBaseHandler(),
		sales:       salesService,
	}
}

// Book handles POST /sales.
func (h *SaleHandler) Book(c *gin.Context) {
	var req sales.BookRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.sales.Book(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, sale)
}

// Get handles GET /sales/:saleId.
func (h *SaleHandler) Get(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	sale, err := h.sales.GetSale(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, sale)
}

// List handles GET /sales.
func (h *SaleHandler) List(c *gin.Context) {
	filter := sales.Filter{
		CustomerPhone:  c.Query("customerPhone"),
		IncludeDeleted: c.Query("includeDeleted") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 50),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.FromDate = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.ToDate = &ts
		}
	}

	items, err := h.sales.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: items})
}

// AmendLine handles PUT /sales/:saleId/lines/:lineId.
func (h *SaleHandler) AmendLine(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}

	var req dto.AmendLineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.sales.AmendLine(c.Request.Context(), saleID, lineID, types.Quantity(req.Quantity), req.AllowOnOrder)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, sale)
}

// Delete handles DELETE /sales/:saleId. Reverses ledger and delivery effects.
func (h *SaleHandler) Delete(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	if err := h.sales.Delete(c.Request.Context(), saleID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// RecordHistory handles POST /sales/:saleId/history.
func (h *SaleHandler) RecordHistory(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	var req dto.RecordHistoryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.sales.RecordEditHistory(c.Request.Context(), saleID, req.Changes); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "history recorded")
}

// GetHistory handles GET /sales/:saleId/history.
func (h *SaleHandler) GetHistory(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	entries, err := h.sales.GetHistory(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: entries})
}
