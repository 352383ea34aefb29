package stations

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

// Repository handles station and fuel stock persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to station operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a station together with its stock rows.
func (r *Repository) Create(ctx context.Context, station *models.Station) error {
	if station.ID == uuid.Nil {
		station.ID = uuid.New()
	}
	for i := range station.FuelStock {
		station.FuelStock[i].StationID = station.ID
	}
	return r.db.WithContext(ctx).Create(station).Error
}

// FindByID loads a station with its fuel stock.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	var station models.Station
	if err := r.db.WithContext(ctx).
		Preload("FuelStock").
		Where("id = ?", id).
		First(&station).Error; err != nil {
		return nil, err
	}
	return &station, nil
}

// FindStock loads the stock row for one fuel type.
func (r *Repository) FindStock(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType) (*models.StationFuelStock, error) {
	var stock models.StationFuelStock
	if err := r.db.WithContext(ctx).
		Where("station_id = ? AND fuel_type = ?", stationID, fuel).
		First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

// Deduct removes litres only while enough stock remains. The boolean is false
// when the guard rejected the update.
func (r *Repository) Deduct(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StationFuelStock{}).
		Where("station_id = ? AND fuel_type = ? AND available_litres >= ?", stationID, fuel, litres).
		Update("available_litres", gorm.Expr("available_litres - ?", litres))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Restore returns litres to the station.
func (r *Repository) Restore(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.StationFuelStock{}).
		Where("station_id = ? AND fuel_type = ?", stationID, fuel).
		Update("available_litres", gorm.Expr("available_litres + ?", litres))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
