package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fueldrop-backend/internal/drivers"
	"github.com/angelmondragon/fueldrop-backend/internal/orders"
	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

type recordingPublisher struct {
	mu        sync.Mutex
	events    []realtime.Event
	audiences []realtime.Audience
}

func (r *recordingPublisher) Publish(ctx context.Context, audience realtime.Audience, event realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.audiences = append(r.audiences, audience)
	return nil
}

type repoReader struct {
	repo orders.Repository
}

func (r repoReader) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*orders.OrderDTO, error) {
	order, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := r.repo.History(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := orders.NewOrderDTO(order, history)
	return &dto, nil
}

type fixture struct {
	svc       Service
	repo      orders.Repository
	drivers   *drivers.Repository
	publisher *recordingPublisher
	stationID uuid.UUID
	seq       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	repo := orders.NewRepository(client.DB())
	driverRepo := drivers.NewRepository(client.DB())
	publisher := &recordingPublisher{}
	driverSvc, err := drivers.NewService(driverRepo, publisher, nil)
	require.NoError(t, err)

	svc, err := NewService(Params{
		Repo:      repo,
		Tx:        client,
		Orders:    repoReader{repo: repo},
		Drivers:   driverSvc,
		Publisher: publisher,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, drivers: driverRepo, publisher: publisher, stationID: uuid.New()}
}

func (f *fixture) order(t *testing.T, status enums.OrderStatus, suburb, city string) *models.Order {
	t.Helper()
	f.seq++
	order := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    fmt.Sprintf("FD-20250401-%06d", f.seq),
		Status:         status,
		CustomerID:     uuid.New(),
		StationID:      f.stationID,
		FuelType:       enums.FuelTypeDiesel50,
		QuantityLitres: decimal.NewFromInt(40),
		UnitPriceCents: 2300,
		Pricing:        types.PricingBreakdown{TotalCents: 120000, DeliveryFeeCents: 3500},
		Delivery:       types.DeliveryAddress{Street: "1 Main Rd", Suburb: suburb, City: city, Lat: -26.1, Lon: 28.0},
		PaymentMethod:  enums.PaymentMethodWallet,
		PaymentStatus:  enums.PaymentStatusPaid,
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) driver(t *testing.T, available bool, areas ...string) *models.Driver {
	t.Helper()
	driver := &models.Driver{
		Name:         "Driver",
		Phone:        "+27820000000",
		Vehicle:      "Isuzu D-Max",
		Rating:       4.5,
		ServiceAreas: pq.StringArray(areas),
		Available:    available,
	}
	require.NoError(t, f.drivers.Create(context.Background(), driver))
	if !available {
		require.NoError(t, f.drivers.SetAvailable(context.Background(), driver.ID, false))
	}
	return driver
}

func TestListAvailableMatchesServiceAreas(t *testing.T) {
	f := newFixture(t)
	bySuburb := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	byCity := f.order(t, enums.OrderStatusReady, "Hatfield", "Pretoria")
	f.order(t, enums.OrderStatusReady, "Bellville", "Cape Town")
	f.order(t, enums.OrderStatusPreparing, "Randburg", "Johannesburg")
	driver := f.driver(t, true, "randburg", " PRETORIA ")

	list, err := f.svc.ListAvailable(context.Background(), driver.ID, pagination.Params{})
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, o := range list.Orders {
		ids = append(ids, o.ID)
	}
	require.ElementsMatch(t, []uuid.UUID{bySuburb.ID, byCity.ID}, ids)

	nowhere := f.driver(t, true)
	list, err = f.svc.ListAvailable(context.Background(), nowhere.ID, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, list.Orders)
}

func TestAcceptRaceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")

	const contenders = 8
	candidates := make([]*models.Driver, contenders)
	for i := range candidates {
		candidates[i] = f.driver(t, true, "Randburg")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		losers  int
		other   []error
	)
	start := make(chan struct{})
	for _, d := range candidates {
		wg.Add(1)
		go func(driverID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.Accept(context.Background(), order.ID, driverID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, driverID)
			case pkgerrors.IsCode(err, pkgerrors.CodeOrderNoLongerAvailable):
				losers++
			default:
				other = append(other, err)
			}
		}(d.ID)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, winners, 1)
	require.Equal(t, contenders-1, losers)

	stored, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAssigned, stored.Status)
	require.NotNil(t, stored.DriverID)
	require.Equal(t, winners[0], *stored.DriverID)

	history, err := f.repo.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	for _, d := range candidates {
		got, err := f.drivers.FindByID(context.Background(), d.ID)
		require.NoError(t, err)
		require.Equal(t, d.ID != winners[0], got.Available)
	}
}

func TestAcceptPublishesAssignment(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	driver := f.driver(t, true, "Randburg")

	dto, err := f.svc.Accept(context.Background(), order.ID, driver.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAssigned, dto.Status)
	require.Equal(t, driver.ID, *dto.DriverID)

	require.Len(t, f.publisher.events, 2)
	require.Equal(t, enums.EventTypeOrderAssigned, f.publisher.events[0].Type)
	payload := f.publisher.events[0].Data.(realtime.OrderAssignedPayload)
	require.Equal(t, driver.Vehicle, payload.Driver.Vehicle)
	require.Equal(t, enums.EventTypeOrderStatusUpdate, f.publisher.events[1].Type)
	require.ElementsMatch(t, []uuid.UUID{order.CustomerID, order.StationID, driver.ID}, f.publisher.audiences[0].ActorIDs)

	_, err = f.svc.Accept(context.Background(), order.ID, f.driver(t, true, "Randburg").ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNoLongerAvailable))
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")

	_, err := f.svc.Accept(context.Background(), order.ID, f.driver(t, true, "Durban").ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Accept(context.Background(), order.ID, f.driver(t, false, "Randburg").ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Accept(context.Background(), uuid.New(), f.driver(t, true, "Randburg").ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	preparing := f.order(t, enums.OrderStatusPreparing, "Randburg", "Johannesburg")
	_, err = f.svc.Accept(context.Background(), preparing.ID, f.driver(t, true, "Randburg").ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNoLongerAvailable))
}

func TestStationAssign(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	driver := f.driver(t, true, "Soweto")

	_, err := f.svc.Assign(context.Background(), order.ID, driver.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	dto, err := f.svc.Assign(context.Background(), order.ID, driver.ID, f.stationID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusAssigned, dto.Status)
	require.Len(t, dto.History, 1)
	require.Equal(t, enums.ActorRoleStation, dto.History[0].ActorRole)
	require.WithinDuration(t, time.Now(), dto.History[0].CreatedAt, time.Minute)
}

func (f *fixture) heldBy(t *testing.T, driverID uuid.UUID, orders ...*models.Order) int {
	t.Helper()
	held := 0
	for _, o := range orders {
		stored, err := f.repo.FindByID(context.Background(), o.ID)
		require.NoError(t, err)
		if stored.DriverID != nil && *stored.DriverID == driverID {
			held++
		}
	}
	return held
}

func TestDriverCannotHoldTwoOrdersFromStaleRead(t *testing.T) {
	f := newFixture(t)
	first := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	second := f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	driver := f.driver(t, true, "Randburg")
	svc := f.svc.(*service)
	actor := types.Actor{ID: driver.ID, Role: enums.ActorRoleDriver}

	// both claims carry the snapshot taken before either wrote
	snapshot := *driver
	_, err := svc.assign(context.Background(), first, &snapshot, actor, sourceAccept)
	require.NoError(t, err)
	_, err = svc.assign(context.Background(), second, &snapshot, actor, sourceAccept)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	require.Equal(t, 1, f.heldBy(t, driver.ID, first, second))
	stored, err := f.repo.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusReady, stored.Status)
	require.Nil(t, stored.DriverID)
	history, err := f.repo.History(context.Background(), second.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSameDriverRaceAcrossOrders(t *testing.T) {
	f := newFixture(t)
	const count = 4
	ready := make([]*models.Order, count)
	for i := range ready {
		ready[i] = f.order(t, enums.OrderStatusReady, "Randburg", "Johannesburg")
	}
	driver := f.driver(t, true, "Randburg")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		busy  int
		other []error
	)
	start := make(chan struct{})
	for _, o := range ready {
		wg.Add(1)
		go func(orderID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.Accept(context.Background(), orderID, driver.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				busy++
			default:
				other = append(other, err)
			}
		}(o.ID)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 1, wins)
	require.Equal(t, count-1, busy)
	require.Equal(t, 1, f.heldBy(t, driver.ID, ready...))

	got, err := f.drivers.FindByID(context.Background(), driver.ID)
	require.NoError(t, err)
	require.False(t, got.Available)
}
