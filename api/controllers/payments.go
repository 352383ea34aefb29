package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/api/responses"
	"github.com/angelmondragon/fueldrop-backend/api/validators"
	"github.com/angelmondragon/fueldrop-backend/internal/payments"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
)

// PaymentProcessor captures payment for a pending order.
type PaymentProcessor interface {
	Process(ctx context.Context, input payments.ProcessInput) (*payments.ProcessResult, error)
}

type processPaymentRequest struct {
	OrderID      uuid.UUID         `json:"orderId" validate:"required"`
	Amount       int64             `json:"amount" validate:"gt=0"`
	Method       string            `json:"method" validate:"required"`
	ProviderData map[string]string `json:"providerData"`
}

// ProcessPayment captures a card or EFT payment and confirms the order.
func ProcessPayment(svc PaymentProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		var req processPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, req.OrderID.String())
		}
		result, err := svc.Process(ctx, payments.ProcessInput{
			Actor:        actor,
			OrderID:      req.OrderID,
			AmountCents:  req.Amount,
			Method:       method,
			ProviderData: req.ProviderData,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
