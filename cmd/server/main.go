// Package main is the entry point for the godown API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/delivery"
	"godown/internal/domain/movements"
	"godown/internal/domain/registers/stockledger"
	"godown/internal/domain/sales"
	"godown/internal/domain/sets"
	"godown/internal/infrastructure/config"
	v1 "godown/internal/infrastructure/http/v1"
	"godown/internal/infrastructure/storage/postgres"
	"godown/internal/infrastructure/storage/postgres/catalog_repo"
	"godown/internal/infrastructure/storage/postgres/document_repo"
	"godown/internal/infrastructure/storage/postgres/register_repo"
	"godown/pkg/challan"
	"godown/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Infow("starting godown server", "env", cfg.App.Env, "store", cfg.App.StoreLocation)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN())
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	productRepo := catalog_repo.NewProductRepo(txManager)
	stockRepo := register_repo.NewStockLedgerRepo(txManager)
	deliveryRepo := document_repo.NewDeliveryRepo(txManager)
	movementRepo := document_repo.NewMovementRepo(txManager)
	saleRepo := document_repo.NewSaleRepo(txManager)

	historyStore, err := postgres.NewSaleHistoryStore(txManager)
	if err != nil {
		log.Fatalw("failed to initialize history store", "error", err)
	}

	// --- Services ---
	labels := challan.New()

	productService := product.NewService(productRepo, txManager)
	ledgerService := stockledger.NewService(stockRepo, txManager)
	setsService := sets.NewService(productService, ledgerService)

	// Sales and deliveries reference each other; the bridge lets both be
	// constructed before the sales side is bound.
	saleInfo := &v1.SaleInfoBridge{}
	deliveryService := delivery.NewService(deliveryRepo, ledgerService, saleInfo, productService, labels, txManager)
	salesService := sales.NewService(saleRepo, historyStore, ledgerService, deliveryService, productService, labels, txManager)
	saleInfo.Bind(salesService)

	movementService := movements.NewService(movementRepo, ledgerService, deliveryService, productService, labels, txManager)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger: log,
		Pool:   pool,
		Services: v1.Services{
			Products:   productService,
			Ledger:     ledgerService,
			Sets:       setsService,
			Deliveries: deliveryService,
			Movements:  movementService,
			Sales:      salesService,
		},
		Version: version,
		Env:     cfg.App.Env,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
