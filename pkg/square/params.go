package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams encapsulates the inputs for a Square payment.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) toSquareRequest() *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: p.IdempotencyKey,
		LocationID:     ptrString(p.LocationID),
		SourceID:       p.SourceID,
		AmountMoney:    moneyPtr(p.AmountCents, p.Currency),
		Note:           ptrString(strings.TrimSpace(p.Note)),
		ReferenceID:    ptrString(strings.TrimSpace(p.ReferenceID)),
	}
	return req
}

// RefundParams encapsulates the inputs for refunding a captured payment.
type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

func (p RefundParams) toSquareRequest() *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: p.IdempotencyKey,
		AmountMoney:    moneyPtr(p.AmountCents, p.Currency),
		PaymentID:      ptrString(p.PaymentID),
		Reason:         ptrString(strings.TrimSpace(p.Reason)),
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "ZAR"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
