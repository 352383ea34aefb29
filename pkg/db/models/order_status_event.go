package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

// OrderStatusEvent is an append-only history row; never updated.
type OrderStatusEvent struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Note      *string           `gorm:"column:note"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEvent) TableName() string { return "order_status_events" }
