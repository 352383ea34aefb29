package drivers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
)

// Repository handles driver persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, driver *models.Driver) error {
	if driver.ID == uuid.Nil {
		driver.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(driver).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&driver).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

// UpdatePresence writes availability and, when given, the last known position.
func (r *Repository) UpdatePresence(ctx context.Context, id uuid.UUID, available bool, lat, lon *float64, seenAt time.Time) error {
	updates := map[string]any{
		"available":    available,
		"last_seen_at": seenAt,
	}
	if lat != nil && lon != nil {
		updates["lat"] = *lat
		updates["lon"] = *lon
	}
	res := r.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetAvailable flips the availability flag only.
func (r *Repository) SetAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	res := r.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).Update("available", available)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Occupy marks an available driver busy. It reports false when the driver is
// missing or already busy.
func (r *Repository) Occupy(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Driver{}).
		Where("id = ? AND available = ?", id, true).
		Update("available", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
