// Package jobs holds the background task definitions and the Asynq
// worker glue: payment reconciliation, low stock scanning and
// idempotency key cleanup.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentsReconcile resolves pending M-Pesa payments whose
	// callback never arrived.
	TaskPaymentsReconcile = "payments:reconcile"
	// TaskStockLowScan counts products at or below their threshold.
	TaskStockLowScan = "stock:low_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PaymentsReconcilePayload tunes one reconciliation sweep. RunID ties
// the worker's log lines back to the enqueue site.
type PaymentsReconcilePayload struct {
	RunID            string `json:"run_id"`
	OlderThanMinutes int    `json:"older_than_minutes"`
	Limit            int    `json:"limit"`
}

// NewPaymentsReconcileTask constructs the reconciliation task.
func NewPaymentsReconcileTask(payload PaymentsReconcilePayload) (*asynq.Task, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentsReconcile, data), nil
}

// NewStockLowScanTask constructs the low stock scan task.
func NewStockLowScanTask() *asynq.Task {
	return asynq.NewTask(TaskStockLowScan, nil)
}

// IdempotencyCleanupPayload tunes key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueuePaymentsReconcile enqueues an immediate reconciliation sweep.
func (c *Client) EnqueuePaymentsReconcile(ctx context.Context, payload PaymentsReconcilePayload) (*asynq.TaskInfo, error) {
	task, err := NewPaymentsReconcileTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
