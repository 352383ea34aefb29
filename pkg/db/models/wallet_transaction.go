package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger row. AmountCents is signed:
// credits positive, debits negative.
type WalletTransaction struct {
	ID          uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	WalletID    uuid.UUID                     `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type        enums.WalletTransactionType   `gorm:"column:type;type:text;not null"`
	AmountCents int64                         `gorm:"column:amount_cents;not null"`
	OrderID     *uuid.UUID                    `gorm:"column:order_id;type:uuid"`
	Status      enums.WalletTransactionStatus `gorm:"column:status;type:text;not null"`
	Reason      string                        `gorm:"column:reason;not null"`
	CreatedAt   time.Time                     `gorm:"column:created_at;autoCreateTime"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
