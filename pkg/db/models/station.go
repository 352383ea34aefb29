package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

type Station struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name      string             `gorm:"column:name;not null"`
	Suburb    string             `gorm:"column:suburb;not null"`
	City      string             `gorm:"column:city;not null"`
	Lat       float64            `gorm:"column:lat;not null"`
	Lon       float64            `gorm:"column:lon;not null"`
	Active    bool               `gorm:"column:active;not null;default:true"`
	FuelStock []StationFuelStock `gorm:"foreignKey:StationID"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Station) TableName() string { return "stations" }

// StationFuelStock is keyed by (station_id, fuel_type). AvailableLitres only
// changes through conditional updates that keep it non-negative.
type StationFuelStock struct {
	StationID       uuid.UUID       `gorm:"column:station_id;type:uuid;primaryKey"`
	FuelType        enums.FuelType  `gorm:"column:fuel_type;type:text;primaryKey"`
	PriceCents      int64           `gorm:"column:price_cents;not null"`
	AvailableLitres decimal.Decimal `gorm:"column:available_litres;type:numeric(12,2);not null"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StationFuelStock) TableName() string { return "station_fuel_stock" }
