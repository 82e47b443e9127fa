package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/domain/delivery"
	"godown/internal/infrastructure/http/v1/dto"
)

// DeliveryHandler serves the delivery fulfillment endpoints.
type DeliveryHandler struct {
	*BaseHandler
	deliveries *delivery.Service
}

func NewDeliveryHandler(deliveries *delivery.Service) *DeliveryHandler {
	return &DeliveryHandler{
		BaseHandler: NewBaseHandler(),
		deliveries:  deliveries,
	}
}

// GetLineState handles GET /deliveries/lines/:lineItemId.
func (h *DeliveryHandler) GetLineState(c *gin.Context) {
	lineItemID, ok := h.ParseID(c, "lineItemId")
	if !ok {
		return
	}

	state, err := h.deliveries.GetState(c.Request.Context(), lineItemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, state)
}

// GetSaleStatus handles GET /deliveries/sales/:saleId/status.
func (h *DeliveryHandler) GetSaleStatus(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	status, err := h.deliveries.GetSaleStatus(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"saleId": saleID, "status": status})
}

// Propose handles GET /deliveries/sales/:saleId/proposal. Read-only: nothing
// is recorded until the proposal is confirmed.
func (h *DeliveryHandler) Propose(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	proposal, err := h.deliveries.Propose(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, proposal)
}

// Confirm handles POST /deliveries/sales/:saleId/confirm.
func (h *DeliveryHandler) Confirm(c *gin.Context) {
	saleID, ok := h.ParseID(c, "saleId")
	if !ok {
		return
	}

	var req delivery.ConfirmRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.deliveries.Confirm(c.Request.Context(), saleID, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// GetChallan handles GET /deliveries/challans/:id.
func (h *DeliveryHandler) GetChallan(c *gin.Context) {
	challanID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	ch, err := h.deliveries.GetChallan(c.Request.Context(), challanID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, ch)
}

// GetChallanByNumber handles GET /deliveries/challans/by-number/:number.
func (h *DeliveryHandler) GetChallanByNumber(c *gin.Context) {
	ch, err := h.deliveries.GetChallanByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, ch)
}

// ListChallans handles GET /deliveries/challans.
func (h *DeliveryHandler) ListChallans(c *gin.Context) {
	filter := delivery.ChallanFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("saleId"); raw != "" {
		saleID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid saleId format"))
			return
		}
		filter.SaleID = &saleID
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

	challans, err := h.deliveries.ListChallans(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: challans})
}
