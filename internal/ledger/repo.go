package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
)

// Repository manages persistence for wallets and their transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole) (*models.Wallet, error)
	FindWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Wallet, error)
	DebitBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (bool, error)
	CreditBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) error
	InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error
	InsertTransactionOnce(ctx context.Context, txn *models.WalletTransaction) (bool, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params, cursor *pagination.Cursor) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureWallet inserts a zero-balance wallet unless one exists, then loads it.
func (r *repository) EnsureWallet(ctx context.Context, ownerID uuid.UUID, role enums.ActorRole) (*models.Wallet, error) {
	wallet := &models.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerRole: role,
		Currency:  "ZAR",
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "owner_id"}}, DoNothing: true}).
		Create(wallet).Error; err != nil {
		return nil, err
	}
	return r.FindWalletByOwner(ctx, ownerID)
}

func (r *repository) FindWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// DebitBalance subtracts amountCents only when the balance covers it. The
// boolean is false when no row qualified.
func (r *repository) DebitBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND balance_cents >= ?", walletID, amountCents).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreditBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

// InsertTransactionOnce relies on the per-order uniqueness index; false means
// an equivalent row already exists.
func (r *repository) InsertTransactionOnce(ctx context.Context, txn *models.WalletTransaction) (bool, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params, cursor *pagination.Cursor) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if err := pagination.Apply(q, params, cursor).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
