package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/registers/stockledger"
	"godown/internal/infrastructure/http/v1/dto"
)

// StockHandler serves the stock ledger endpoints.
type StockHandler struct {
	*BaseHandler
	ledger   *stockledger.Service
	products *product.Service
}

func NewStockHandler(ledger *stockledger.Service, products *product.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: NewBaseHandler(),
		ledger:      ledger,
		products:    products,
	}
}

// GetUnit handles GET /stock/units/:unitId. Returns the unit's counters
// together with derived balance, in-store and unit identity.
func (h *StockHandler) GetUnit(c *gin.Context) {
	unitID, ok := h.ParseID(c, "unitId")
	if !ok {
		return
	}

	info, err := h.products.ResolveUnit(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	unit, err := h.ledger.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"unit":    info,
		"ledger":  unit,
		"balance": unit.Balance(),
		"inStore": unit.InStore(),
	})
}

// ApplyEvent handles POST /stock/units/:unitId/events.
func (h *StockHandler) ApplyEvent(c *gin.Context) {
	unitID, ok := h.ParseID(c, "unitId")
	if !ok {
		return
	}

	var req dto.ApplyStockEventRequest
	if !h.BindJSON(c, &req) {
		return
	}

	// Manual ledger entries are recorded without a source document.
	result, err := h.ledger.ApplyEvent(
		c.Request.Context(),
		unitID,
		stockledger.EventType(req.Type),
		types.Quantity(req.Quantity),
		stockledger.ApplyOptions{AllowOnOrder: req.AllowOnOrder},
	)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// GetHistory handles GET /stock/units/:unitId/events.
func (h *StockHandler) GetHistory(c *gin.Context) {
	unitID, ok := h.ParseID(c, "unitId")
	if !ok {
		return
	}

	filter := stockledger.EventFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	for _, t := range c.QueryArray("type") {
		filter.Types = append(filter.Types, stockledger.EventType(t))
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

	events, err := h.ledger.GetHistory(c.Request.Context(), unitID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: events})
}

// GetBalances handles GET /stock/balances?unitId=...&unitId=...
func (h *StockHandler) GetBalances(c *gin.Context) {
	var unitIDs []id.ID
	for _, raw := range c.QueryArray("unitId") {
		unitID, err := id.Parse(raw)
		if err != nil {
			continue
		}
		unitIDs = append(unitIDs, unitID)
	}

	balances, err := h.ledger.GetBalances(c.Request.Context(), unitIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, balances)
}
