package stations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
)

type stationRepository interface {
	WithTx(tx *gorm.DB) *Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Station, error)
	FindStock(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType) (*models.StationFuelStock, error)
	Deduct(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) (bool, error)
	Restore(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error
}

// Service exposes station lookups and stock movements.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Station, error)
	Quote(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) (*Quote, error)
	Deduct(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error
	Restore(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error
}

// Quote is the station-side input to pricing.
type Quote struct {
	Station        *models.Station
	UnitPriceCents int64
}

type service struct {
	repo stationRepository
}

// NewService builds a station service.
func NewService(repo stationRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stations repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "station id required")
	}
	station, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "station not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load station")
	}
	return station, nil
}

// Quote resolves the current unit price and checks the station can cover the
// requested litres. Stock is not reserved.
func (s *service) Quote(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) (*Quote, error) {
	if !fuel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown fuel type").
			WithDetails(map[string]any{"fuelType": fuel})
	}
	station, err := s.Get(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if !station.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "station is not accepting orders")
	}
	for _, stock := range station.FuelStock {
		if stock.FuelType != fuel {
			continue
		}
		if stock.AvailableLitres.LessThan(litres) {
			return nil, insufficientStock(fuel, stock.AvailableLitres, litres)
		}
		return &Quote{Station: station, UnitPriceCents: stock.PriceCents}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "station does not sell this fuel type").
		WithDetails(map[string]any{"fuelType": fuel})
}

func (s *service) Deduct(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error {
	if !litres.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "litres must be positive")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.Deduct(ctx, stationID, fuel, litres)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct station stock")
	}
	if ok {
		return nil
	}
	stock, err := repo.FindStock(ctx, stationID, fuel)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "station stock not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load station stock")
	}
	return insufficientStock(fuel, stock.AvailableLitres, litres)
}

func (s *service) Restore(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error {
	if !litres.IsPositive() {
		return nil
	}
	if err := s.repo.WithTx(tx).Restore(ctx, stationID, fuel, litres); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "station stock not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore station stock")
	}
	return nil
}

func insufficientStock(fuel enums.FuelType, available, requested decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "station cannot cover requested litres").
		WithDetails(map[string]any{
			"fuelType":        fuel,
			"availableLitres": available.StringFixed(2),
			"requestedLitres": requested.StringFixed(2),
		})
}
