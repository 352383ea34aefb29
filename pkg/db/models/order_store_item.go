package models

import "github.com/google/uuid"

// OrderStoreItem is a convenience-store line bought alongside the fuel.
type OrderStoreItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
}

func (OrderStoreItem) TableName() string { return "order_store_items" }
