package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

// Wallet holds an actor's balance. BalanceCents only moves together with a
// completed WalletTransaction in the same database transaction.
type Wallet struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID      uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;uniqueIndex"`
	OwnerRole    enums.ActorRole `gorm:"column:owner_role;type:text;not null"`
	BalanceCents int64           `gorm:"column:balance_cents;not null;default:0"`
	Currency     string          `gorm:"column:currency;not null;default:'ZAR'"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }
