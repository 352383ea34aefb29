package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/api/responses"
	"github.com/angelmondragon/fueldrop-backend/api/validators"
	"github.com/angelmondragon/fueldrop-backend/internal/drivers"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

// AvailabilitySetter toggles a driver online or offline.
type AvailabilitySetter interface {
	SetAvailability(ctx context.Context, driverID uuid.UUID, input drivers.AvailabilityInput) (*models.Driver, error)
}

type availabilityRequest struct {
	Available *bool    `json:"available" validate:"required"`
	Lat       *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon       *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
}

type driverResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Vehicle      string     `json:"vehicle"`
	Rating       float64    `json:"rating"`
	ServiceAreas []string   `json:"serviceAreas"`
	Available    bool       `json:"available"`
	Lat          *float64   `json:"lat,omitempty"`
	Lon          *float64   `json:"lon,omitempty"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
}

// DriverAvailability sets the calling driver's availability and position.
func DriverAvailability(svc AvailabilitySetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		var req availabilityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if (req.Lat == nil) != (req.Lon == nil) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "lat and lon must be sent together"))
			return
		}

		input := drivers.AvailabilityInput{Available: *req.Available}
		if req.Lat != nil {
			input.Location = &types.GeoPoint{Lat: *req.Lat, Lon: *req.Lon}
		}
		driver, err := svc.SetAvailability(r.Context(), actor.ID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, driverResponse{
			ID:           driver.ID,
			Name:         driver.Name,
			Vehicle:      driver.Vehicle,
			Rating:       driver.Rating,
			ServiceAreas: driver.ServiceAreas,
			Available:    driver.Available,
			Lat:          driver.Lat,
			Lon:          driver.Lon,
			LastSeenAt:   driver.LastSeenAt,
		})
	}
}
