package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

type driverRepository interface {
	WithTx(tx *gorm.DB) *Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	UpdatePresence(ctx context.Context, id uuid.UUID, available bool, lat, lon *float64, seenAt time.Time) error
	SetAvailable(ctx context.Context, id uuid.UUID, available bool) error
	Occupy(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service exposes driver profile and presence operations.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	SetAvailability(ctx context.Context, driverID uuid.UUID, input AvailabilityInput) (*models.Driver, error)
	Occupy(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error
}

// AvailabilityInput is a driver going online or offline.
type AvailabilityInput struct {
	Available bool
	Location  *types.GeoPoint
}

type service struct {
	repo      driverRepository
	publisher realtime.Publisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(repo driverRepository, publisher realtime.Publisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("drivers repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("realtime publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, publisher: publisher, logg: logg, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) load(ctx context.Context, repo driverRepository, id uuid.UUID) (*models.Driver, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	driver, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver")
	}
	return driver, nil
}

// SetAvailability records presence. A driver coming online is announced to
// stations.
func (s *service) SetAvailability(ctx context.Context, driverID uuid.UUID, input AvailabilityInput) (*models.Driver, error) {
	var lat, lon *float64
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
		}
		lat, lon = &input.Location.Lat, &input.Location.Lon
	}

	before, err := s.load(ctx, s.repo, driverID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePresence(ctx, driverID, input.Available, lat, lon, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver presence")
	}
	driver, err := s.load(ctx, s.repo, driverID)
	if err != nil {
		return nil, err
	}

	if input.Available && !before.Available {
		var location *types.GeoPoint
		if driver.Lat != nil && driver.Lon != nil {
			location = &types.GeoPoint{Lat: *driver.Lat, Lon: *driver.Lon}
		}
		event := realtime.Event{
			Type: enums.EventTypeDriverAvailable,
			Data: realtime.DriverAvailablePayload{DriverID: driver.ID, Location: location, Rating: driver.Rating},
		}
		if err := s.publisher.Publish(ctx, realtime.RoleAudience(enums.ActorRoleStation), event); err != nil {
			s.logg.Error(ctx, "publish driver_available failed", err)
		}
	}
	return driver, nil
}

// Occupy takes the driver out of the available pool on assignment. Only one
// of any number of concurrent claims on the same driver succeeds; the rest
// get a conflict and must roll back.
func (s *service) Occupy(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	ok, err := repo.Occupy(ctx, driverID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "occupy driver")
	}
	if ok {
		return nil
	}
	if _, err := s.load(ctx, repo, driverID); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "driver is not available").
		WithDetails(map[string]any{"driverId": driverID})
}

// Release returns the driver to the available pool.
func (s *service) Release(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error {
	return s.setAvailable(ctx, tx, driverID, true)
}

func (s *service) setAvailable(ctx context.Context, tx *gorm.DB, driverID uuid.UUID, available bool) error {
	if err := s.repo.WithTx(tx).SetAvailable(ctx, driverID, available); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver availability")
	}
	return nil
}
