// Package v1 wires the HTTP API.
package v1

import (
	"context"

	"github.com/gin-gonic/gin"

	"godown/internal/core/id"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/delivery"
	"godown/internal/domain/movements"
	"godown/internal/domain/registers/stockledger"
	"godown/internal/domain/sales"
	"godown/internal/domain/sets"
	"godown/internal/infrastructure/http/v1/handlers"
	"godown/internal/infrastructure/http/v1/middleware"
	"godown/internal/infrastructure/storage/postgres"
	"godown/pkg/logger"
)

// Services bundles the domain services the API exposes.
type Services struct {
	Products   *product.Service
	Ledger     *stockledger.Service
	Sets       *sets.Service
	Deliveries *delivery.Service
	Movements  *movements.Service
	Sales      *sales.Service
}

// RouterConfig carries router dependencies.
type RouterConfig struct {
	Logger   *logger.Logger
	Pool     *postgres.Pool
	Services Services
	Version  string
	Env      string
}

// SaleInfoBridge breaks the construction cycle between the sales and
// delivery services: deliveries read customer data through it, and the
// sales service is bound after both are constructed.
type SaleInfoBridge struct {
	sales *sales.Service
}

func (b *SaleInfoBridge) Bind(s *sales.Service) { b.sales = s }

func (b *SaleInfoBridge) GetDeliveryInfo(ctx context.Context, saleID id.ID) (delivery.SaleInfo, error) {
	return b.sales.GetDeliveryInfo(ctx, saleID)
}

var _ delivery.SaleInfoReader = (*SaleInfoBridge)(nil)

// NewRouter builds the Gin engine with middleware and all v1 routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	health := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
	router.GET("/health/info", health.Info)

	api := router.Group("/api/v1")
	api.Use(middleware.UserContext())

	registerProductRoutes(api, cfg.Services.Products)
	registerStockRoutes(api, cfg.Services.Ledger, cfg.Services.Products)
	registerDeliveryRoutes(api, cfg.Services.Deliveries)
	registerReportRoutes(api, cfg.Services.Sets)
	registerMovementRoutes(api, cfg.Services.Movements)
	registerSaleRoutes(api, cfg.Services.Sales)

	return router
}

func registerProductRoutes(api *gin.RouterGroup, products *product.Service) {
	h := handlers.NewProductHandler(products)

	g := api.Group("/products")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/sets", h.ListSets)
	g.GET("/by-code/:code", h.GetByCode)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func registerStockRoutes(api *gin.RouterGroup, ledger *stockledger.Service, products *product.Service) {
	h := handlers.NewStockHandler(ledger, products)

	g := api.Group("/stock")
	g.GET("/balances", h.GetBalances)
	g.GET("/units/:unitId", h.GetUnit)
	g.POST("/units/:unitId/events", h.ApplyEvent)
	g.GET("/units/:unitId/events", h.GetHistory)
}

func registerDeliveryRoutes(api *gin.RouterGroup, deliveries *delivery.Service) {
	h := handlers.NewDeliveryHandler(deliveries)

	g := api.Group("/deliveries")
	g.GET("/lines/:lineItemId", h.GetLineState)
	g.GET("/sales/:saleId/status", h.GetSaleStatus)
	g.GET("/sales/:saleId/proposal", h.Propose)
	g.POST("/sales/:saleId/confirm", h.Confirm)
	g.GET("/challans", h.ListChallans)
	g.GET("/challans/by-number/:number", h.GetChallanByNumber)
	g.GET("/challans/:id", h.GetChallan)
}

func registerReportRoutes(api *gin.RouterGroup, setsService *sets.Service) {
	h := handlers.NewReportsHandler(setsService)

	g := api.Group("/reports")
	g.GET("/broken-sets", h.BrokenSets)
	g.GET("/broken-sets/:productId", h.BrokenSet)
	g.GET("/out-of-stock", h.OutOfStock)
}

func registerMovementRoutes(api *gin.RouterGroup, movementsService *movements.Service) {
	h := handlers.NewMovementHandler(movementsService)

	g := api.Group("/movements")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/requests", h.ListRequests)
	g.POST("/requests/:requestItemId/receive", h.ReceiveRequest)
	g.POST("/items/:itemId/return", h.MarkReturned)
	g.GET("/:id", h.Get)
}

func registerSaleRoutes(api *gin.RouterGroup, salesService *sales.Service) {
	h := handlers.NewSaleHandler(salesService)

	g := api.Group("/sales")
	g.POST("", h.Book)
	g.GET("", h.List)
	g.GET("/:saleId", h.Get)
	g.DELETE("/:saleId", h.Delete)
	g.PUT("/:saleId/lines/:lineId", h.AmendLine)
	g.POST("/:saleId/history", h.RecordHistory)
	g.GET("/:saleId/history", h.GetHistory)
}
