package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/api/responses"
	"github.com/angelmondragon/fueldrop-backend/api/validators"
	internalorders "github.com/angelmondragon/fueldrop-backend/internal/orders"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const maxNoteLength = 500

// OrderService is the slice of the order service the HTTP layer calls.
type OrderService interface {
	Create(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.OrderDTO, error)
	Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*internalorders.OrderDTO, error)
	List(ctx context.Context, actor types.Actor, status *enums.OrderStatus, params pagination.Params) (*internalorders.OrderList, error)
	UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*internalorders.OrderDTO, error)
	RecordLocation(ctx context.Context, driverID, orderID uuid.UUID, point types.GeoPoint) error
}

// Dispatcher matches ready orders with drivers.
type Dispatcher interface {
	ListAvailable(ctx context.Context, driverID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	Accept(ctx context.Context, orderID, driverID uuid.UUID) (*internalorders.OrderDTO, error)
	Assign(ctx context.Context, orderID, driverID, stationID uuid.UUID) (*internalorders.OrderDTO, error)
}

type createOrderRequest struct {
	StationID      uuid.UUID                       `json:"stationId" validate:"required"`
	FuelType       string                          `json:"fuelType" validate:"required"`
	QuantityLitres decimal.Decimal                 `json:"quantityLitres"`
	StoreItems     []internalorders.StoreItemInput `json:"storeItems" validate:"omitempty,max=20,dive"`
	Delivery       types.DeliveryAddress           `json:"delivery"`
	PaymentMethod  string                          `json:"paymentMethod" validate:"required"`
	Notes          *string                         `json:"notes"`
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note"`
}

type assignRequest struct {
	DriverID uuid.UUID `json:"driverId" validate:"required"`
}

type locationRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Create places a customer order and returns it with its pricing breakdown.
func Create(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fuel, err := enums.ParseFuelType(req.FuelType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fuel type"))
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			CustomerID:     actor.ID,
			StationID:      req.StationID,
			FuelType:       fuel,
			QuantityLitres: req.QuantityLitres,
			StoreItems:     req.StoreItems,
			Delivery:       req.Delivery,
			PaymentMethod:  method,
			Notes:          sanitizeNote(req.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List returns the caller's orders, newest first, optionally filtered by status.
func List(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.List(r.Context(), actor, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, list.Orders, list.NextCursor)
	}
}

// Available lists ready orders in the calling driver's service areas.
func Available(dispatch Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := dispatch.ListAvailable(r.Context(), actor.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, list.Orders, list.NextCursor)
	}
}

// Detail returns one order with its history. Orders the caller cannot see are
// reported as not found.
func Detail(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateStatus moves an order along the lifecycle on behalf of the caller.
func UpdateStatus(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Actor:   actor,
			Status:  status,
			Note:    sanitizeNote(req.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Accept lets the calling driver claim a ready order.
func Accept(dispatch Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := dispatch.Accept(r.Context(), orderID, actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Assign lets the calling station hand one of its ready orders to a driver.
func Assign(dispatch Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := dispatch.Assign(r.Context(), orderID, req.DriverID, actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// DriverLocation records the assigned driver's position and relays it to the
// order's customer.
func DriverLocation(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req locationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RecordLocation(r.Context(), actor.ID, orderID, types.GeoPoint{Lat: req.Lat, Lon: req.Lon}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"orderId": orderID, "recorded": true})
	}
}

func actorAndOrder(r *http.Request) (types.Actor, uuid.UUID, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return types.Actor{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing")
	}
	orderID, err := validators.ParseUUID(chi.URLParam(r, "orderId"), "orderId")
	if err != nil {
		return types.Actor{}, uuid.Nil, err
	}
	return actor, orderID, nil
}

func sanitizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := validators.SanitizeString(*note, maxNoteLength)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
