package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/internal/orders"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
	"github.com/angelmondragon/fueldrop-backend/pkg/retry"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const confirmFailedReason = "order could not be confirmed"

type orderPayments interface {
	Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*orders.OrderDTO, error)
	ConfirmPayment(ctx context.Context, input orders.ConfirmPaymentInput) (*orders.OrderDTO, error)
	AbandonPayment(ctx context.Context, input orders.ConfirmPaymentInput) (*orders.OrderDTO, error)
}

// ProcessInput is a customer paying for a pending card or eft order.
type ProcessInput struct {
	Actor        types.Actor
	OrderID      uuid.UUID
	AmountCents  int64
	Method       enums.PaymentMethod
	ProviderData map[string]string
}

// ProcessResult carries the provider transaction id so clients can replay.
type ProcessResult struct {
	OrderID       uuid.UUID           `json:"orderId"`
	TransactionID string              `json:"transactionId"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int64               `json:"amount"`
	Replayed      bool                `json:"replayed"`
	Order         *orders.OrderDTO    `json:"order"`
}

type Service interface {
	Process(ctx context.Context, input ProcessInput) (*ProcessResult, error)
}

type Options struct {
	Orders    orderPayments
	Providers Providers
	Refunder  *Refunder
	Policy    retry.Policy
	Currency  string
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

type service struct {
	orders    orderPayments
	providers Providers
	refunder  *Refunder
	policy    retry.Policy
	currency  string
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
}

func NewService(opts Options) (Service, error) {
	if opts.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("payment providers required")
	}
	if opts.Refunder == nil {
		return nil, fmt.Errorf("refunder required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &service{
		orders:    opts.Orders,
		providers: opts.Providers,
		refunder:  opts.Refunder,
		policy:    opts.Policy,
		currency:  opts.Currency,
		metrics:   opts.Metrics,
		logg:      opts.Logger,
	}, nil
}

// Process captures payment for a pending order and confirms it. Captures are
// keyed on the order so a retried request replays at the provider. If the
// order cannot be confirmed after a capture, the order is failed and the
// capture refunded.
func (s *service) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	order, err := s.orders.Get(ctx, input.Actor, input.OrderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if holdsCapture(order) {
		return &ProcessResult{
			OrderID:       order.ID,
			TransactionID: *order.PaymentTransactionID,
			Status:        order.PaymentStatus,
			AmountCents:   order.PaidAmountCents,
			Replayed:      true,
			Order:         order,
		}, nil
	}
	if err := s.checkPayable(order, input); err != nil {
		return nil, err
	}

	provider, err := s.providers.For(input.Method)
	if err != nil {
		return nil, err
	}
	captured, err := retry.Do(ctx, s.policy, retryable, func(ctx context.Context) (Result, error) {
		return provider.Capture(ctx, CaptureRequest{
			AmountCents:    input.AmountCents,
			Currency:       s.currency,
			Reference:      order.OrderNumber,
			IdempotencyKey: IdempotencyKey(order.ID.String(), opCapture),
			Data:           input.ProviderData,
		})
	})
	if err != nil {
		s.metrics.Payment(opCapture, input.Method.String(), "error")
		s.logg.Error(ctx, "payment capture failed", err)
		return nil, err
	}
	s.metrics.Payment(opCapture, input.Method.String(), "ok")

	capture := orders.ConfirmPaymentInput{
		OrderID:       order.ID,
		Provider:      provider.Name(),
		TransactionID: captured.TransactionID,
		AmountCents:   input.AmountCents,
	}
	confirmed, err := s.orders.ConfirmPayment(ctx, capture)
	if err != nil {
		if current := s.confirmedWith(ctx, order.ID, captured.TransactionID); current != nil {
			return &ProcessResult{
				OrderID:       current.ID,
				TransactionID: captured.TransactionID,
				Status:        current.PaymentStatus,
				AmountCents:   current.PaidAmountCents,
				Replayed:      true,
				Order:         current,
			}, nil
		}
		s.logg.Error(ctx, "confirm after capture failed", err)
		s.releaseCapture(ctx, input.Method, capture)
		return nil, err
	}

	return &ProcessResult{
		OrderID:       confirmed.ID,
		TransactionID: captured.TransactionID,
		Status:        confirmed.PaymentStatus,
		AmountCents:   confirmed.PaidAmountCents,
		Order:         confirmed,
	}, nil
}

// confirmedWith returns the order when a concurrent request already
// confirmed it with transactionID.
func (s *service) confirmedWith(ctx context.Context, orderID uuid.UUID, transactionID string) *orders.OrderDTO {
	current, err := s.orders.Get(ctx, types.System, orderID)
	if err != nil {
		s.logg.Error(ctx, "reload order after failed confirm", err)
		return nil
	}
	if !holdsCapture(current) || *current.PaymentTransactionID != transactionID {
		return nil
	}
	return current
}

// holdsCapture reports whether order is live and paid by a recorded capture.
func holdsCapture(order *orders.OrderDTO) bool {
	if order.PaymentStatus != enums.PaymentStatusPaid || order.PaymentTransactionID == nil {
		return false
	}
	switch order.Status {
	case enums.OrderStatusPending, enums.OrderStatusFailed, enums.OrderStatusCancelled:
		return false
	}
	return true
}

// releaseCapture fails the order against the capture, which refunds it. An
// order that already left pending never held this capture, so it is refunded
// directly. Any other failure keeps the capture, because the order is still
// pending and a retry replays the same capture.
func (s *service) releaseCapture(ctx context.Context, method enums.PaymentMethod, capture orders.ConfirmPaymentInput) {
	ctx = s.logg.WithField(ctx, "transaction_id", capture.TransactionID)
	_, err := s.orders.AbandonPayment(ctx, capture)
	if err == nil {
		return
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		s.logg.Error(ctx, "capture held on a pending order", err)
		return
	}
	if _, refundErr := s.refunder.refund(ctx, method, capture.OrderID, capture.TransactionID, capture.AmountCents, confirmFailedReason); refundErr != nil {
		s.logg.Error(ctx, "refund after failed confirm failed", refundErr)
	}
}

func (s *service) checkPayable(order *orders.OrderDTO, input ProcessInput) error {
	if order.PaymentStatus != enums.PaymentStatusUnpaid {
		return pkgerrors.New(pkgerrors.CodeConflict, "order payment is already settled").
			WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot pay for an order in %s", order.Status)).
			WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusConfirmed})
	}
	if order.PaymentMethod == enums.PaymentMethodWallet {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet orders are paid when they are placed")
	}
	if input.Method != order.PaymentMethod {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method does not match the order").
			WithDetails(map[string]any{"expected": order.PaymentMethod, "got": input.Method})
	}
	if input.AmountCents != order.Pricing.PayableCents() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the order total").
			WithDetails(map[string]any{"expectedCents": order.Pricing.PayableCents(), "amountCents": input.AmountCents})
	}
	return nil
}
