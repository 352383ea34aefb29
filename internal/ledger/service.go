package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of wallet balances. Every method that takes a
// tx joins it when non-nil and otherwise opens its own transaction.
type Service interface {
	Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error)
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error)
	CreditOnce(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, bool, error)
	Balance(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole) (*models.Wallet, error)
	Transactions(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole, params pagination.Params) (TransactionPage, error)
}

// Entry describes one balance movement. AmountCents is always positive; the
// direction comes from the operation.
type Entry struct {
	OwnerID     uuid.UUID
	OwnerRole   enums.ActorRole
	AmountCents int64
	Type        enums.WalletTransactionType
	Reason      string
	OrderID     *uuid.UUID
}

// TransactionPage is a newest-first slice of the wallet log.
type TransactionPage struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"nextCursor,omitempty"`
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) run(ctx context.Context, tx *gorm.DB, fn func(repo Repository) error) error {
	if tx != nil {
		return fn(s.repo.WithTx(tx))
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	var txn *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		wallet, err := repo.EnsureWallet(ctx, entry.OwnerID, entry.OwnerRole)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		ok, err := repo.DebitBalance(ctx, wallet.ID, entry.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
				WithDetails(map[string]any{
					"balanceCents":  wallet.BalanceCents,
					"requiredCents": entry.AmountCents,
				})
		}
		txn = newTransaction(wallet.ID, entry, -entry.AmountCents)
		if err := repo.InsertTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record wallet debit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	var txn *models.WalletTransaction
	err := s.run(ctx, tx, func(repo Repository) error {
		wallet, err := repo.EnsureWallet(ctx, entry.OwnerID, entry.OwnerRole)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		txn = newTransaction(wallet.ID, entry, entry.AmountCents)
		if err := repo.InsertTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record wallet credit")
		}
		if err := repo.CreditBalance(ctx, wallet.ID, entry.AmountCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// CreditOnce applies a credit at most once per (wallet, order, type). The
// boolean reports whether this call applied it.
func (s *service) CreditOnce(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, bool, error) {
	if err := validateEntry(entry); err != nil {
		return nil, false, err
	}
	if entry.OrderID == nil || *entry.OrderID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order reference required for one-time credit")
	}

	var (
		txn     *models.WalletTransaction
		applied bool
	)
	err := s.run(ctx, tx, func(repo Repository) error {
		wallet, err := repo.EnsureWallet(ctx, entry.OwnerID, entry.OwnerRole)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		txn = newTransaction(wallet.ID, entry, entry.AmountCents)
		inserted, err := repo.InsertTransactionOnce(ctx, txn)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record wallet credit")
		}
		if !inserted {
			return nil
		}
		if err := repo.CreditBalance(ctx, wallet.ID, entry.AmountCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, nil
	}
	return txn, true, nil
}

func (s *service) Balance(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet owner required")
	}
	wallet, err := s.repo.FindWalletByOwner(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !isNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	wallet, err = s.repo.EnsureWallet(ctx, ownerID, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func (s *service) Transactions(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole, params pagination.Params) (TransactionPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	wallet, err := s.Balance(ctx, ownerID, role)
	if err != nil {
		return TransactionPage{}, err
	}
	rows, err := s.repo.ListTransactions(ctx, wallet.ID, params, cursor)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(t models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	if rows == nil {
		rows = []models.WalletTransaction{}
	}
	return TransactionPage{Transactions: rows, NextCursor: next}, nil
}

func validateEntry(entry Entry) error {
	if entry.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet owner required")
	}
	if !entry.OwnerRole.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet owner role")
	}
	if entry.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amountCents": entry.AmountCents})
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	return nil
}

func newTransaction(walletID uuid.UUID, entry Entry, signed int64) *models.WalletTransaction {
	reason := strings.TrimSpace(entry.Reason)
	if reason == "" {
		reason = entry.Type.String()
	}
	return &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    walletID,
		Type:        entry.Type,
		AmountCents: signed,
		OrderID:     entry.OrderID,
		Status:      enums.WalletTransactionStatusCompleted,
		Reason:      reason,
	}
}
