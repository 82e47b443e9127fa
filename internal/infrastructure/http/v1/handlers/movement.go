package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"godown/internal/core/types"
	"godown/internal/domain/movements"
	"godown/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves the outgoing movement endpoints.
type MovementHandler struct {
	*BaseHandler
	movements *movements.Service
}

func NewMovementHandler(movementsService *movements.Service) *MovementHandler {
	return &MovementHandler{
		BaseHandler: NewBaseHandler(),
		movements:   movementsService,
	}
}

// Create handles POST /movements.
//
// A repeated associated challan number is advisory, not blocking: the first
// attempt returns 409 with the duplicate details, and the client resubmits
// with acknowledgeDuplicate to proceed.
func (h *MovementHandler) Create(c *gin.Context) {
	var req movements.CreateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.movements.Create(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	if result.RequiresConfirmation {
		c.JSON(http.StatusConflict, result)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Get handles GET /movements/:id.
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	m, err := h.movements.GetMovement(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, m)
}

// List handles GET /movements.
func (h *MovementHandler) List(c *gin.Context) {
	filter := movements.Filter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("type"); raw != "" {
		mt := movements.Type(raw)
		filter.MovementType = &mt
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

	items, err := h.movements.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: items})
}

// MarkReturned handles POST /movements/items/:itemId/return.
func (h *MovementHandler) MarkReturned(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}

	if err := h.movements.MarkRepairReturned(c.Request.Context(), itemID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "repair item marked returned")
}

// ReceiveRequest handles POST /movements/requests/:requestItemId/receive.
func (h *MovementHandler) ReceiveRequest(c *gin.Context) {
	requestID, ok := h.ParseID(c, "requestItemId")
	if !ok {
		return
	}

	var req dto.ReceiveItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.movements.ReceivePhysicalItem(c.Request.Context(), requestID, types.Quantity(req.Quantity))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, updated)
}

// ListRequests handles GET /movements/requests.
func (h *MovementHandler) ListRequests(c *gin.Context) {
	location := c.Query("location")
	includeClosed := c.Query("includeClosed") == "true"

	requests, err := h.movements.ListRequests(c.Request.Context(), location, includeClosed)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: requests})
}
