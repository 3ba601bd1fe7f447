package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/jobs"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments"
)

// PaymentsReconcileJob sweeps pending M-Pesa payments whose callback
// never arrived and settles them against a Daraja status query.
type PaymentsReconcileJob struct {
	Service *payments.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPaymentsReconcileJob initialises the reconciliation handler.
func NewPaymentsReconcileJob(service *payments.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentsReconcileJob {
	return &PaymentsReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation sweep.
func (j *PaymentsReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("payments reconcile: handler not configured")
	}
	var payload PaymentsReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.OlderThanMinutes <= 0 {
		payload.OlderThanMinutes = 5
	}
	if payload.Limit <= 0 {
		payload.Limit = 50
	}

	tracker := j.metrics().Track(TaskPaymentsReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("older_than_minutes", payload.OlderThanMinutes))
	if payload.RunID != "" {
		logger = logger.With(slog.String("run_id", payload.RunID))
	}
	logger.Info("starting payment reconciliation")

	settled, err := j.Service.ReconcileStale(ctx, time.Duration(payload.OlderThanMinutes)*time.Minute, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("reconciliation failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed payment reconciliation", slog.Int("settled", settled))
	return nil
}

func (j *PaymentsReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPaymentsReconcile))
	}
	return slog.Default().With(slog.String("job", TaskPaymentsReconcile))
}

func (j *PaymentsReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
