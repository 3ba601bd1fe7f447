package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/jobs"
)

// StockLowScanJob counts active products at or below their low stock
// threshold, publishes the gauge and logs the worst offenders so the
// store can reorder.
type StockLowScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockLowScanJob initialises the low stock scan handler.
func NewStockLowScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockLowScanJob {
	return &StockLowScanJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *StockLowScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("low stock scan: handler not configured")
	}

	tracker := j.metrics().Track(TaskStockLowScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan")

	rows, err := j.Pool.Query(ctx, `
		SELECT id, name, stock_quantity, low_stock_threshold
		FROM products
		WHERE is_active AND stock_quantity <= low_stock_threshold
		ORDER BY stock_quantity ASC
		LIMIT 100`)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        int64
			name      string
			qty       int
			threshold int
		)
		if err := rows.Scan(&id, &name, &qty, &threshold); err != nil {
			resultErr = err
			return resultErr
		}
		count++
		logger.Warn("product low on stock",
			slog.Int64("product_id", id),
			slog.String("name", name),
			slog.Int("stock_quantity", qty),
			slog.Int("threshold", threshold),
		)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	j.metrics().SetLowStock(count)
	logger.Info("completed low stock scan", slog.Int("low_stock_products", count))
	return nil
}

func (j *StockLowScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockLowScan))
	}
	return slog.Default().With(slog.String("job", TaskStockLowScan))
}

func (j *StockLowScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
