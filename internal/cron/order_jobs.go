package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
)

const (
	defaultPendingTTL = 30 * time.Minute
	defaultBatchSize  = 100
)

type pendingExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type refundRetrier interface {
	RetryFailedRefunds(ctx context.Context, limit int) (int, error)
}

// PendingOrderExpiryParams configure the pending order expiry job.
type PendingOrderExpiryParams struct {
	Logger    *logger.Logger
	Orders    pendingExpirer
	TTL       time.Duration
	BatchSize int
}

// NewPendingOrderExpiryJob builds the job that fails orders left unpaid
// longer than TTL.
func NewPendingOrderExpiryJob(params PendingOrderExpiryParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &pendingOrderExpiryJob{logg: params.Logger, orders: params.Orders, ttl: ttl, batch: batch, now: time.Now}, nil
}

type pendingOrderExpiryJob struct {
	logg   *logger.Logger
	orders pendingExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpirePending(ctx, cutoff, j.batch)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "expired pending orders")
	}
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	return nil
}

// RefundReconcileParams configure the refund reconciliation job.
type RefundReconcileParams struct {
	Logger    *logger.Logger
	Orders    refundRetrier
	BatchSize int
}

// NewRefundReconcileJob builds the job that retries provider refunds that
// failed when an order was cancelled or failed.
func NewRefundReconcileJob(params RefundReconcileParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &refundReconcileJob{logg: params.Logger, orders: params.Orders, batch: batch}, nil
}

type refundReconcileJob struct {
	logg   *logger.Logger
	orders refundRetrier
	batch  int
}

func (j *refundReconcileJob) Name() string { return "refund-reconcile" }

func (j *refundReconcileJob) Run(ctx context.Context) error {
	refunded, err := j.orders.RetryFailedRefunds(ctx, j.batch)
	if refunded > 0 {
		j.logg.Info(j.logg.WithField(ctx, "refunded", refunded), "reconciled failed refunds")
	}
	if err != nil {
		return fmt.Errorf("retry failed refunds: %w", err)
	}
	return nil
}
