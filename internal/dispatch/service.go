package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/internal/orders"
	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const (
	sourceAccept = "accept"
	sourceManual = "manual"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type driverDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	Occupy(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error
}

type orderReader interface {
	Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*orders.OrderDTO, error)
}

// Service matches ready orders with drivers.
type Service interface {
	ListAvailable(ctx context.Context, driverID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
	Accept(ctx context.Context, orderID, driverID uuid.UUID) (*orders.OrderDTO, error)
	Assign(ctx context.Context, orderID, driverID, stationID uuid.UUID) (*orders.OrderDTO, error)
}

// Params lists the collaborators of the dispatch service.
type Params struct {
	Repo      orders.Repository
	Tx        txRunner
	Orders    orderReader
	Drivers   driverDirectory
	Publisher realtime.Publisher
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      orders.Repository
	tx        txRunner
	orders    orderReader
	drivers   driverDirectory
	publisher realtime.Publisher
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if p.Drivers == nil {
		return nil, fmt.Errorf("drivers service required")
	}
	if p.Publisher == nil {
		return nil, fmt.Errorf("realtime publisher required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		orders:    p.Orders,
		drivers:   p.Drivers,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// ListAvailable returns ready, unassigned orders in the driver's service areas.
func (s *service) ListAvailable(ctx context.Context, driverID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListAvailable(ctx, driver.ServiceAreas, params, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available orders")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &orders.OrderList{Orders: make([]orders.OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, orders.NewOrderDTO(&rows[i], nil))
	}
	return out, nil
}

// Accept lets a driver claim a ready order. Of any number of concurrent
// claims exactly one wins; the rest get ORDER_NO_LONGER_AVAILABLE.
func (s *service) Accept(ctx context.Context, orderID, driverID uuid.UUID) (*orders.OrderDTO, error) {
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !servesArea(driver, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order is outside the driver's service areas")
	}
	actor := types.Actor{ID: driverID, Role: enums.ActorRoleDriver}
	return s.assign(ctx, order, driver, actor, sourceAccept)
}

// Assign is a station handing a ready order to a specific driver through the
// same primitive drivers use.
func (s *service) Assign(ctx context.Context, orderID, driverID, stationID uuid.UUID) (*orders.OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StationID != stationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	actor := types.Actor{ID: stationID, Role: enums.ActorRoleStation}
	return s.assign(ctx, order, driver, actor, sourceManual)
}

func (s *service) assign(ctx context.Context, order *models.Order, driver *models.Driver, actor types.Actor, source string) (*orders.OrderDTO, error) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.Status != enums.OrderStatusReady || order.DriverID != nil {
		s.metrics.Assignment(source, "lost")
		return nil, noLongerAvailable(order.ID)
	}
	if !driver.Available {
		s.metrics.Assignment(source, "driver_busy")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "driver is not available").
			WithDetails(map[string]any{"driverId": driver.ID})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Assign(ctx, order.ID, driver.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}
		if !ok {
			return noLongerAvailable(order.ID)
		}
		if err := s.drivers.Occupy(ctx, tx, driver.ID); err != nil {
			return err
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusEvent{
			OrderID:   order.ID,
			Status:    enums.OrderStatusAssigned,
			ActorRole: actor.Role,
			ActorID:   actor.IDPtr(),
			CreatedAt: s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		return nil
	})
	if err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeOrderNoLongerAvailable):
			s.metrics.Assignment(source, "lost")
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			s.metrics.Assignment(source, "driver_busy")
		default:
			s.metrics.Assignment(source, "error")
		}
		return nil, err
	}

	s.metrics.Assignment(source, "ok")
	s.metrics.Transition(enums.OrderStatusReady.String(), enums.OrderStatusAssigned.String(), "ok")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"driver_id": driver.ID.String(), "source": source}), "order assigned")
	s.publishAssigned(ctx, order, driver)

	return s.orders.Get(ctx, types.System, order.ID)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) publishAssigned(ctx context.Context, order *models.Order, driver *models.Driver) {
	audience := realtime.OrderAudience(order.CustomerID, order.StationID, &driver.ID)
	assigned := realtime.Event{
		Type: enums.EventTypeOrderAssigned,
		Data: realtime.OrderAssignedPayload{
			OrderID: order.ID,
			Driver: realtime.AssignedDriver{
				ID:      driver.ID,
				Name:    driver.Name,
				Phone:   driver.Phone,
				Vehicle: driver.Vehicle,
			},
		},
	}
	if err := s.publisher.Publish(ctx, audience, assigned); err != nil {
		s.logg.Error(ctx, "publish order_assigned failed", err)
	}
	status := realtime.Event{
		Type: enums.EventTypeOrderStatusUpdate,
		Data: realtime.OrderStatusPayload{
			OrderID:   order.ID,
			Status:    enums.OrderStatusAssigned,
			Timestamp: s.now().UTC(),
		},
	}
	if err := s.publisher.Publish(ctx, audience, status); err != nil {
		s.logg.Error(ctx, "publish order status failed", err)
	}
}

func servesArea(driver *models.Driver, order *models.Order) bool {
	suburb := types.NormalizeArea(order.Delivery.Suburb)
	city := types.NormalizeArea(order.Delivery.City)
	for _, area := range driver.ServiceAreas {
		a := types.NormalizeArea(area)
		if a != "" && (a == suburb || a == city) {
			return true
		}
	}
	return false
}

func noLongerAvailable(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeOrderNoLongerAvailable, "order is no longer available").
		WithDetails(map[string]any{"orderId": orderID})
}
