package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/square"
)

const (
	opCapture = "capture"
	opRefund  = "refund"

	squareProviderName = "square"
	eftProviderName    = "eft"
)

// CaptureRequest asks a provider to take payment for an order.
type CaptureRequest struct {
	AmountCents    int64
	Currency       string
	Reference      string
	IdempotencyKey string
	Data           map[string]string
}

// RefundRequest returns a captured amount.
type RefundRequest struct {
	TransactionID  string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

// Result is the provider's record of a capture or refund.
type Result struct {
	TransactionID string
	Status        string
}

// Provider is an external payment collaborator. Implementations must treat
// a repeated idempotency key as a replay.
type Provider interface {
	Name() string
	Capture(ctx context.Context, req CaptureRequest) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (Result, error)
}

// IdempotencyKey derives the provider key for an order operation.
func IdempotencyKey(orderID, operation string) string {
	return orderID + ":" + operation
}

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (square.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (square.Payment, error)
}

// SquareProvider captures card payments through Square.
type SquareProvider struct {
	client squareAPI
}

func NewSquareProvider(client squareAPI) (*SquareProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareProvider{client: client}, nil
}

func (p *SquareProvider) Name() string { return squareProviderName }

func (p *SquareProvider) Capture(ctx context.Context, req CaptureRequest) (Result, error) {
	source := strings.TrimSpace(req.Data["sourceId"])
	if source == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "providerData.sourceId is required for card payments")
	}
	payment, err := p.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       source,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.Reference,
		Note:           "fuel order " + req.Reference,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{TransactionID: payment.ID, Status: payment.Status}, nil
}

func (p *SquareProvider) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	refund, err := p.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      req.TransactionID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Reason:         req.Reason,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{TransactionID: refund.ID, Status: refund.Status}, nil
}

// EFTProvider accepts bank transfers that were verified upstream and carry
// the bank reference. Refunds are queued for manual settlement.
type EFTProvider struct{}

func (EFTProvider) Name() string { return eftProviderName }

func (EFTProvider) Capture(ctx context.Context, req CaptureRequest) (Result, error) {
	reference := strings.TrimSpace(req.Data["bankReference"])
	if reference == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "providerData.bankReference is required for eft payments")
	}
	return Result{TransactionID: "eft_" + reference, Status: "COMPLETED"}, nil
}

func (EFTProvider) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	return Result{TransactionID: "refund_" + req.TransactionID, Status: "PENDING"}, nil
}

// Providers routes a payment method to its provider.
type Providers map[enums.PaymentMethod]Provider

func (p Providers) For(method enums.PaymentMethod) (Provider, error) {
	provider, ok := p[method]
	if !ok || provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %s is not supported", method))
	}
	return provider, nil
}
