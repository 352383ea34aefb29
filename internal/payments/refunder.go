package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
	"github.com/angelmondragon/fueldrop-backend/pkg/retry"
)

// Refunder returns provider captures. The order service uses it when a paid
// card or eft order is cancelled or fails.
type Refunder struct {
	providers Providers
	policy    retry.Policy
	currency  string
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
}

func NewRefunder(providers Providers, policy retry.Policy, currency string, m *metrics.OrderMetrics, logg *logger.Logger) (*Refunder, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("payment providers required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Refunder{providers: providers, policy: policy, currency: currency, metrics: m, logg: logg}, nil
}

// RefundCapture refunds the full paid amount of order and returns the
// provider refund id.
func (r *Refunder) RefundCapture(ctx context.Context, order *models.Order, reason string) (string, error) {
	if order == nil || order.PaymentTransactionID == nil || *order.PaymentTransactionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order has no captured payment")
	}
	return r.refund(ctx, order.PaymentMethod, order.ID, *order.PaymentTransactionID, order.PaidAmountCents, reason)
}

func (r *Refunder) refund(ctx context.Context, method enums.PaymentMethod, orderID uuid.UUID, transactionID string, amountCents int64, reason string) (string, error) {
	provider, err := r.providers.For(method)
	if err != nil {
		return "", err
	}
	res, err := retry.Do(ctx, r.policy, retryable, func(ctx context.Context) (Result, error) {
		return provider.Refund(ctx, RefundRequest{
			TransactionID:  transactionID,
			AmountCents:    amountCents,
			Currency:       r.currency,
			IdempotencyKey: IdempotencyKey(orderID.String(), opRefund),
			Reason:         reason,
		})
	})
	if err != nil {
		r.metrics.Payment(opRefund, method.String(), "error")
		return "", err
	}
	r.metrics.Payment(opRefund, method.String(), "ok")
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"order_id":  orderID.String(),
		"provider":  provider.Name(),
		"refund_id": res.TransactionID,
	}), "capture refunded")
	return res.TransactionID, nil
}

// retryable keeps declines and validation failures from being re-sent.
func retryable(err error) bool {
	e := pkgerrors.As(err)
	return e == nil || e.Code() == pkgerrors.CodeDependency
}
