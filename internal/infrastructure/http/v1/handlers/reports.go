package handlers

import (
	"github.com/gin-gonic/gin"

	"godown/internal/domain/sets"
	"godown/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves set completion and stock shortage reports.
type ReportsHandler struct {
	*BaseHandler
	sets *sets.Service
}

func NewReportsHandler(setsService *sets.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: NewBaseHandler(),
		sets:        setsService,
	}
}

// BrokenSet handles GET /reports/broken-sets/:productId.
func (h *ReportsHandler) BrokenSet(c *gin.Context) {
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	report, err := h.sets.BrokenSet(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, report)
}

// BrokenSets handles GET /reports/broken-sets.
func (h *ReportsHandler) BrokenSets(c *gin.Context) {
	reports, err := h.sets.BrokenSets(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: reports})
}

// OutOfStock handles GET /reports/out-of-stock.
func (h *ReportsHandler) OutOfStock(c *gin.Context) {
	report, err := h.sets.OutOfStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, report)
}
