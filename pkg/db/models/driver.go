package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Driver struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name         string         `gorm:"column:name;not null"`
	Phone        string         `gorm:"column:phone;not null"`
	Vehicle      string         `gorm:"column:vehicle;not null"`
	Rating       float64        `gorm:"column:rating;not null;default:5"`
	ServiceAreas pq.StringArray `gorm:"column:service_areas;type:text[]"`
	Available    bool           `gorm:"column:available;not null;default:false"`
	Lat          *float64       `gorm:"column:lat"`
	Lon          *float64       `gorm:"column:lon"`
	LastSeenAt   *time.Time     `gorm:"column:last_seen_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Driver) TableName() string { return "drivers" }
