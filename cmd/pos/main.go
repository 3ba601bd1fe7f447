package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/app"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/catalog"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/customers"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/observability"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments/daraja"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/cache"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/db"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/reporting"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	catalogService := catalog.NewService(catalog.NewRepository(pool), catalog.ServiceConfig{
		DefaultLowStockThreshold: cfg.LowStockThreshold,
	})
	catalogHandler := catalog.NewHandler(logger, catalogService)

	customersHandler := customers.NewHandler(logger, customers.NewService(customers.NewRepository(pool)))

	ledger := stock.NewLedger(stock.NewRepository(pool), auditLogger, idempotency, stock.LedgerConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})
	stockHandler := stock.NewHandler(logger, ledger)

	ordersService := orders.NewService(orders.NewRepository(pool), ledger, auditLogger, orders.ServiceConfig{
		TaxRate: cfg.TaxRate,
	})
	ordersHandler := orders.NewHandler(logger, ordersService, cfg.StoreName)

	gateway := daraja.NewClient(daraja.Config{
		Environment:    cfg.MpesaEnvironment,
		ShortCode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		CallbackURL:    cfg.MpesaCallbackURL,
	})
	reportingService := reporting.NewService(reporting.NewRepository(pool), reporting.NewCache(redisClient, time.Minute))
	reportingHandler := reporting.NewHandler(logger, reportingService)

	paymentsService := payments.NewService(payments.NewRepository(pool), gateway, auditLogger, reportingService, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		CustomersHandler: customersHandler,
		StockHandler:     stockHandler,
		OrdersHandler:    ordersHandler,
		PaymentsHandler:  paymentsHandler,
		ReportingHandler: reportingHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
