package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

// Order is the aggregate root for a single fuel delivery.
type Order struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber          string                 `gorm:"column:order_number;not null;uniqueIndex"`
	Status               enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	CustomerID           uuid.UUID              `gorm:"column:customer_id;type:uuid;not null"`
	StationID            uuid.UUID              `gorm:"column:station_id;type:uuid;not null"`
	DriverID             *uuid.UUID             `gorm:"column:driver_id;type:uuid"`
	FuelType             enums.FuelType         `gorm:"column:fuel_type;type:text;not null"`
	QuantityLitres       decimal.Decimal        `gorm:"column:quantity_litres;type:numeric(10,2);not null"`
	UnitPriceCents       int64                  `gorm:"column:unit_price_cents;not null"`
	Pricing              types.PricingBreakdown `gorm:"embedded;embeddedPrefix:pricing_"`
	Delivery             types.DeliveryAddress  `gorm:"embedded;embeddedPrefix:delivery_"`
	PaymentMethod        enums.PaymentMethod    `gorm:"column:payment_method;type:text;not null"`
	PaymentProvider      *string                `gorm:"column:payment_provider"`
	PaymentStatus        enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentTransactionID *string                `gorm:"column:payment_transaction_id"`
	PaidAmountCents      int64                  `gorm:"column:paid_amount_cents;not null;default:0"`
	PaidAt               *time.Time             `gorm:"column:paid_at"`
	Notes                *string                `gorm:"column:notes"`
	StoreItems           []OrderStoreItem       `gorm:"foreignKey:OrderID"`
	ConfirmedAt          *time.Time             `gorm:"column:confirmed_at"`
	DeliveredAt          *time.Time             `gorm:"column:delivered_at"`
	CancelledAt          *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
