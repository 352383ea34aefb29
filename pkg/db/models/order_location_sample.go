package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderLocationSample struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	DriverID   uuid.UUID `gorm:"column:driver_id;type:uuid;not null"`
	Lat        float64   `gorm:"column:lat;not null"`
	Lon        float64   `gorm:"column:lon;not null"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
}

func (OrderLocationSample) TableName() string { return "order_location_samples" }
