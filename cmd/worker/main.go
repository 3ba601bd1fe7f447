package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/app"
	jobmetrics "github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/jobs"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments/daraja"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/cache"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/db"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/reporting"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	metrics := jobmetrics.NewMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	gateway := daraja.NewClient(daraja.Config{
		Environment:    cfg.MpesaEnvironment,
		ShortCode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		CallbackURL:    cfg.MpesaCallbackURL,
	})
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
	reportingService := reporting.NewService(reporting.NewRepository(pool), reporting.NewCache(redisClient, time.Minute))

	paymentsService := payments.NewService(payments.NewRepository(pool), gateway, auditLogger, reportingService, logger)

	reconcileJob := jobs.NewPaymentsReconcileJob(paymentsService, logger, metrics)
	lowStockJob := jobs.NewStockLowScanJob(pool, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotency, logger, metrics)

	reconcileTask, err := jobs.NewPaymentsReconcileTask(jobs.PaymentsReconcilePayload{OlderThanMinutes: 5, Limit: 50})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{RetentionHours: 48})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPaymentsReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskStockLowScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: reconcileTask},
			{Spec: "0 * * * *", Task: jobs.NewStockLowScanTask()},
			{Spec: "30 3 * * *", Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
