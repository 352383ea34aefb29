package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/api/responses"
	"github.com/angelmondragon/fueldrop-backend/api/validators"
	"github.com/angelmondragon/fueldrop-backend/internal/ledger"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
)

// WalletReader exposes balances and the transaction log.
type WalletReader interface {
	Balance(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole) (*models.Wallet, error)
	Transactions(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole, params pagination.Params) (ledger.TransactionPage, error)
}

type walletResponse struct {
	OwnerID      uuid.UUID       `json:"ownerId"`
	OwnerRole    enums.ActorRole `json:"ownerRole"`
	BalanceCents int64           `json:"balanceCents"`
	Currency     string          `json:"currency"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type walletTransactionResponse struct {
	ID          uuid.UUID                     `json:"id"`
	Type        enums.WalletTransactionType   `json:"type"`
	AmountCents int64                         `json:"amountCents"`
	OrderID     *uuid.UUID                    `json:"orderId,omitempty"`
	Status      enums.WalletTransactionStatus `json:"status"`
	Reason      string                        `json:"reason"`
	CreatedAt   time.Time                     `json:"createdAt"`
}

// Wallet returns the caller's balance.
func Wallet(svc WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		wallet, err := svc.Balance(r.Context(), actor.ID, actor.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletResponse{
			OwnerID:      wallet.OwnerID,
			OwnerRole:    wallet.OwnerRole,
			BalanceCents: wallet.BalanceCents,
			Currency:     wallet.Currency,
			UpdatedAt:    wallet.UpdatedAt,
		})
	}
}

// WalletTransactions pages through the caller's wallet log, newest first.
func WalletTransactions(svc WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Transactions(r.Context(), actor.ID, actor.Role, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]walletTransactionResponse, 0, len(page.Transactions))
		for _, txn := range page.Transactions {
			out = append(out, walletTransactionResponse{
				ID:          txn.ID,
				Type:        txn.Type,
				AmountCents: txn.AmountCents,
				OrderID:     txn.OrderID,
				Status:      txn.Status,
				Reason:      txn.Reason,
				CreatedAt:   txn.CreatedAt,
			})
		}
		responses.WritePage(w, out, page.NextCursor)
	}
}
