package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/internal/drivers"
	"github.com/angelmondragon/fueldrop-backend/internal/ledger"
	"github.com/angelmondragon/fueldrop-backend/internal/pricing"
	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/internal/stations"
	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/db"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

type counterNumbers struct {
	mu   sync.Mutex
	next int64
}

func (c *counterNumbers) Next(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return FormatOrderNumber(now, c.next), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	aud    []realtime.Audience
}

func (r *recordingPublisher) Publish(ctx context.Context, audience realtime.Audience, event realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.aud = append(r.aud, audience)
	return nil
}

func (r *recordingPublisher) types() []enums.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubRefunder struct {
	calls []uuid.UUID
	err   error
}

func (s *stubRefunder) RefundCapture(ctx context.Context, order *models.Order, reason string) (string, error) {
	s.calls = append(s.calls, order.ID)
	if s.err != nil {
		return "", s.err
	}
	return "refund-" + order.OrderNumber, nil
}

// stepClock advances one second per reading so history rows keep their order.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixedStage int

func (f fixedStage) Stage(ctx context.Context, area string) int { return int(f) }

type harness struct {
	client    *db.Client
	svc       Service
	repo      Repository
	ledger    ledger.Service
	drivers   *drivers.Repository
	stations  *stations.Repository
	publisher *recordingPublisher
	refunder  *stubRefunder
	clock     *stepClock
	station   *models.Station
	driver    *models.Driver
	customer  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	stationRepo := stations.NewRepository(gdb)
	stationSvc, err := stations.NewService(stationRepo)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gdb), client)
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	driverRepo := drivers.NewRepository(gdb)
	driverSvc, err := drivers.NewService(driverRepo, publisher, nil)
	require.NoError(t, err)
	engine, err := pricing.NewEngine(pricing.Config{
		VATCutover:        mustDate(t, "2025-05-01T00:00:00Z"),
		BaseDeliveryFee:   2500,
		MinimumOrderValue: 5000,
		AffluentAreas:     []string{"sandton"},
		StressedAreas:     []string{"soweto"},
	})
	require.NoError(t, err)

	refunder := &stubRefunder{}
	clock := &stepClock{now: mustDate(t, "2025-04-01T09:00:00Z")}
	repo := NewRepository(gdb)
	svc, err := NewService(ServiceParams{
		Repo:         repo,
		Tx:           client,
		Numbers:      &counterNumbers{},
		Pricing:      engine,
		Stations:     stationSvc,
		Ledger:       ledgerSvc,
		Drivers:      driverSvc,
		LoadShedding: fixedStage(0),
		Refunder:     refunder,
		Publisher:    publisher,
		Config:       config.OrdersConfig{DriverEarningRate: 0.8},
		AllowEFT:     true,
		Now:          clock.Now,
	})
	require.NoError(t, err)

	station := &models.Station{
		Name:   "Randburg Shell",
		Suburb: "Randburg",
		City:   "Johannesburg",
		Lat:    -26.0,
		Lon:    28.0,
		Active: true,
		FuelStock: []models.StationFuelStock{
			{FuelType: enums.FuelTypePetrol95, PriceCents: 2550, AvailableLitres: decimal.NewFromInt(1000)},
		},
	}
	require.NoError(t, stationRepo.Create(context.Background(), station))

	driver := &models.Driver{
		Name:         "Sipho",
		Phone:        "+27821112222",
		Vehicle:      "Toyota Hilux GP 77-12",
		Rating:       4.9,
		ServiceAreas: pq.StringArray{"randburg"},
		Available:    true,
	}
	require.NoError(t, driverRepo.Create(context.Background(), driver))

	return &harness{
		client:    client,
		svc:       svc,
		repo:      repo,
		ledger:    ledgerSvc,
		drivers:   driverRepo,
		stations:  stationRepo,
		publisher: publisher,
		refunder:  refunder,
		clock:     clock,
		station:   station,
		driver:    driver,
		customer:  uuid.New(),
	}
}

func (h *harness) fund(t *testing.T, cents int64) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), nil, ledger.Entry{
		OwnerID:     h.customer,
		OwnerRole:   enums.ActorRoleCustomer,
		AmountCents: cents,
		Type:        enums.WalletTransactionTypeTopUp,
	})
	require.NoError(t, err)
}

func (h *harness) create(t *testing.T, method enums.PaymentMethod) (*OrderDTO, error) {
	t.Helper()
	return h.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:     h.customer,
		StationID:      h.station.ID,
		FuelType:       enums.FuelTypePetrol95,
		QuantityLitres: decimal.NewFromInt(50),
		Delivery: types.DeliveryAddress{
			Street: "12 Hill Street",
			Suburb: "Randburg",
			City:   "Johannesburg",
			Lat:    -26.054,
			Lon:    28.0,
		},
		PaymentMethod: method,
	})
}

func (h *harness) balance(t *testing.T, owner uuid.UUID, role enums.ActorRole) int64 {
	t.Helper()
	wallet, err := h.ledger.Balance(context.Background(), owner, role)
	require.NoError(t, err)
	return wallet.BalanceCents
}

func (h *harness) stock(t *testing.T) decimal.Decimal {
	t.Helper()
	stock, err := h.stations.FindStock(context.Background(), h.station.ID, enums.FuelTypePetrol95)
	require.NoError(t, err)
	return stock.AvailableLitres
}

func (h *harness) stationActor() types.Actor {
	return types.Actor{ID: h.station.ID, Role: enums.ActorRoleStation}
}

func (h *harness) driverActor() types.Actor {
	return types.Actor{ID: h.driver.ID, Role: enums.ActorRoleDriver}
}

func (h *harness) customerActor() types.Actor {
	return types.Actor{ID: h.customer, Role: enums.ActorRoleCustomer}
}

func (h *harness) move(t *testing.T, orderID uuid.UUID, actor types.Actor, to enums.OrderStatus) *OrderDTO {
	t.Helper()
	dto, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: orderID, Actor: actor, Status: to})
	require.NoError(t, err, "move to %s", to)
	return dto
}

// toAssigned drives a confirmed order to assigned through the dispatch primitive.
func (h *harness) toAssigned(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	h.move(t, orderID, h.stationActor(), enums.OrderStatusPreparing)
	h.move(t, orderID, h.stationActor(), enums.OrderStatusReady)
	ok, err := h.repo.Assign(context.Background(), orderID, h.driver.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.repo.AppendHistory(context.Background(), &models.OrderStatusEvent{
		OrderID:   orderID,
		Status:    enums.OrderStatusAssigned,
		ActorRole: enums.ActorRoleSystem,
		CreatedAt: h.clock.Now(),
	}))
	require.NoError(t, h.drivers.SetAvailable(context.Background(), h.driver.ID, false))
}

func TestCreateWalletOrderConfirmsInOneStep(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)

	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
	require.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	require.Equal(t, int64(150125), order.Pricing.TotalCents)
	require.Equal(t, int64(150125), order.PaidAmountCents)
	require.Regexp(t, `^FD-20250401-\d{6}$`, order.OrderNumber)
	require.Len(t, order.History, 2)
	require.Equal(t, enums.OrderStatusPending, order.History[0].Status)
	require.Equal(t, enums.OrderStatusConfirmed, order.History[1].Status)

	require.Equal(t, int64(200000-150125), h.balance(t, h.customer, enums.ActorRoleCustomer))
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(950)))
	require.Equal(t, []enums.EventType{enums.EventTypePaymentReceived, enums.EventTypeOrderStatusUpdate}, h.publisher.types())
}

func TestCreateWalletOrderWithoutFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1000)

	_, err := h.create(t, enums.PaymentMethodWallet)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds), "got %v", err)

	var count int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
	require.Equal(t, int64(1000), h.balance(t, h.customer, enums.ActorRoleCustomer))
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(1000)))
	require.Empty(t, h.publisher.types())
}

func TestCardOrderConfirmsThroughPayment(t *testing.T) {
	h := newHarness(t)
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(1000)))

	_, err = h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_1", AmountCents: 100})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	confirmed, err := h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_1", AmountCents: 150125})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.Equal(t, "sq_1", *confirmed.PaymentTransactionID)
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(950)))

	replay, err := h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_1", AmountCents: 150125})
	require.NoError(t, err)
	require.Equal(t, confirmed.ID, replay.ID)
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(950)), "replay must not deduct twice")

	_, err = h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_2", AmountCents: 150125})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestAbandonPaymentFailsOrderAndRefundsCapture(t *testing.T) {
	h := newHarness(t)
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)
	require.NoError(t, h.client.DB().Model(&models.StationFuelStock{}).
		Where("station_id = ? AND fuel_type = ?", h.station.ID, enums.FuelTypePetrol95).
		Update("available_litres", decimal.NewFromInt(10)).Error)

	capture := ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_5", AmountCents: 150125}
	_, err = h.svc.ConfirmPayment(context.Background(), capture)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	failed, err := h.svc.AbandonPayment(context.Background(), capture)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, failed.Status)
	require.Equal(t, enums.PaymentStatusRefunded, failed.PaymentStatus)
	require.Equal(t, "sq_5", *failed.PaymentTransactionID)
	require.Equal(t, []uuid.UUID{order.ID}, h.refunder.calls)
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(10)))
	require.Equal(t, enums.OrderStatusFailed, failed.History[len(failed.History)-1].Status)

	// a replay of the refunded capture cannot confirm the order
	require.NoError(t, h.client.DB().Model(&models.StationFuelStock{}).
		Where("station_id = ? AND fuel_type = ?", h.station.ID, enums.FuelTypePetrol95).
		Update("available_litres", decimal.NewFromInt(1000)).Error)
	_, err = h.svc.ConfirmPayment(context.Background(), capture)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)

	_, err = h.svc.AbandonPayment(context.Background(), capture)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)
	require.Len(t, h.refunder.calls, 1)

	got, err := h.svc.Get(context.Background(), h.customerActor(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, got.Status)
	require.Equal(t, enums.PaymentStatusRefunded, got.PaymentStatus)
}

func TestAbandonPaymentFlagsFailedRefund(t *testing.T) {
	h := newHarness(t)
	h.refunder.err = errors.New("provider down")
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)

	failed, err := h.svc.AbandonPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_6", AmountCents: 150125})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, failed.Status)
	require.Equal(t, enums.PaymentStatusRefundFailed, failed.PaymentStatus)

	h.refunder.err = nil
	n, err := h.svc.RetryFailedRefunds(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCreateRejectsDisallowedInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:     h.customer,
		StationID:      h.station.ID,
		FuelType:       enums.FuelTypePetrol95,
		QuantityLitres: decimal.Zero,
		PaymentMethod:  enums.PaymentMethodCard,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:     h.customer,
		StationID:      h.station.ID,
		FuelType:       enums.FuelTypePetrol95,
		QuantityLitres: decimal.NewFromInt(5000),
		Delivery:       types.DeliveryAddress{Street: "a", Suburb: "b", City: "c"},
		PaymentMethod:  enums.PaymentMethodCard,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTransitionLegality(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	ctx := context.Background()

	// out of table
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Actor: h.stationActor(), Status: enums.OrderStatusReady})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)

	// legal edge, wrong role
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Actor: h.customerActor(), Status: enums.OrderStatusPreparing})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	// assignment only through dispatch
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Actor: h.stationActor(), Status: enums.OrderStatusAssigned})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	// stranger sees nothing
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Actor: types.Actor{ID: uuid.New(), Role: enums.ActorRoleStation}, Status: enums.OrderStatusPreparing})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	current, err := h.svc.Get(ctx, h.customerActor(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, current.Status)
	require.Len(t, current.History, 2)

	h.move(t, order.ID, h.stationActor(), enums.OrderStatusPreparing)
	after, err := h.svc.Get(ctx, h.stationActor(), order.ID)
	require.NoError(t, err)
	events := make([]models.OrderStatusEvent, 0, len(after.History))
	for _, ev := range after.History {
		events = append(events, models.OrderStatusEvent{Status: ev.Status})
	}
	status, err := CurrentStatus(events)
	require.NoError(t, err)
	require.Equal(t, after.Status, status)
}

func TestDeliveryPaysOutExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	h.toAssigned(t, order.ID)

	h.move(t, order.ID, h.driverActor(), enums.OrderStatusInTransit)
	delivered := h.move(t, order.ID, h.driverActor(), enums.OrderStatusDelivered)
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DriverID)
	require.NotNil(t, delivered.DeliveredAt)

	require.Equal(t, int64(2800), h.balance(t, h.driver.ID, enums.ActorRoleDriver))
	require.Equal(t, int64(127500), h.balance(t, h.station.ID, enums.ActorRoleStation))

	_, err = h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Actor: h.driverActor(), Status: enums.OrderStatusDelivered})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, int64(2800), h.balance(t, h.driver.ID, enums.ActorRoleDriver))
	require.Equal(t, int64(127500), h.balance(t, h.station.ID, enums.ActorRoleStation))

	driver, err := h.drivers.FindByID(context.Background(), h.driver.ID)
	require.NoError(t, err)
	require.True(t, driver.Available)
}

func TestConcurrentDeliveryPaysOnce(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	h.toAssigned(t, order.ID)
	h.move(t, order.ID, h.driverActor(), enums.OrderStatusInTransit)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Actor: h.driverActor(), Status: enums.OrderStatusDelivered})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
	require.Equal(t, int64(2800), h.balance(t, h.driver.ID, enums.ActorRoleDriver))
}

func TestCancelAssignedOrderRefundsAndReleasesDriver(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	h.toAssigned(t, order.ID)
	stockBefore := h.stock(t)

	note := "customer unreachable"
	cancelled, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Actor:   h.stationActor(),
		Status:  enums.OrderStatusCancelled,
		Note:    &note,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.DriverID)
	require.Equal(t, enums.PaymentStatusRefunded, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledAt)

	require.Equal(t, int64(200000), h.balance(t, h.customer, enums.ActorRoleCustomer))
	require.True(t, h.stock(t).Equal(stockBefore), "fuel already left preparation")

	driver, err := h.drivers.FindByID(context.Background(), h.driver.ID)
	require.NoError(t, err)
	require.True(t, driver.Available)

	h.publisher.mu.Lock()
	last := h.publisher.aud[len(h.publisher.aud)-1]
	h.publisher.mu.Unlock()
	require.Contains(t, last.ActorIDs, h.driver.ID, "released driver still hears about the cancellation")
}

func TestCustomerCancelRestoresStock(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)

	h.move(t, order.ID, h.customerActor(), enums.OrderStatusCancelled)
	require.True(t, h.stock(t).Equal(decimal.NewFromInt(1000)))
	require.Equal(t, int64(200000), h.balance(t, h.customer, enums.ActorRoleCustomer))
}

func TestCancelCardOrderRefundsThroughProvider(t *testing.T) {
	h := newHarness(t)
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)
	_, err = h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_9", AmountCents: 150125})
	require.NoError(t, err)

	cancelled := h.move(t, order.ID, h.customerActor(), enums.OrderStatusCancelled)
	require.Equal(t, enums.PaymentStatusRefunded, cancelled.PaymentStatus)
	require.Equal(t, []uuid.UUID{order.ID}, h.refunder.calls)
}

func TestFailedProviderRefundIsFlagged(t *testing.T) {
	h := newHarness(t)
	h.refunder.err = errors.New("provider down")
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)
	_, err = h.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{OrderID: order.ID, Provider: "square", TransactionID: "sq_3", AmountCents: 150125})
	require.NoError(t, err)

	cancelled := h.move(t, order.ID, h.stationActor(), enums.OrderStatusCancelled)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, enums.PaymentStatusRefundFailed, cancelled.PaymentStatus)

	n, err := h.svc.RetryFailedRefunds(context.Background(), 10)
	require.Error(t, err)
	require.Zero(t, n)

	h.refunder.err = nil
	n, err = h.svc.RetryFailedRefunds(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, err := h.svc.Get(context.Background(), h.customerActor(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusRefunded, got.PaymentStatus)
	require.Len(t, h.refunder.calls, 3)
}

func TestExpirePendingFailsStaleOrders(t *testing.T) {
	h := newHarness(t)
	order, err := h.create(t, enums.PaymentMethodCard)
	require.NoError(t, err)

	n, err := h.svc.ExpirePending(context.Background(), order.CreatedAt.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = h.svc.ExpirePending(context.Background(), order.CreatedAt.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := h.svc.Get(context.Background(), h.customerActor(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusFailed, got.Status)
	last := got.History[len(got.History)-1]
	require.Equal(t, enums.ActorRoleSystem, last.ActorRole)
	require.Equal(t, "payment not received", *last.Note)
	require.Empty(t, h.refunder.calls)
}

func TestRecordLocationOnlyForAssignedDriver(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 200000)
	order, err := h.create(t, enums.PaymentMethodWallet)
	require.NoError(t, err)
	point := types.GeoPoint{Lat: -26.02, Lon: 28.0}

	err = h.svc.RecordLocation(context.Background(), h.driver.ID, order.ID, point)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	h.toAssigned(t, order.ID)
	require.NoError(t, h.svc.RecordLocation(context.Background(), h.driver.ID, order.ID, point))

	var samples []models.OrderLocationSample
	require.NoError(t, h.client.DB().Where("order_id = ?", order.ID).Find(&samples).Error)
	require.Len(t, samples, 1)
	require.Equal(t, enums.EventTypeDriverLocationUpdate, h.publisher.types()[len(h.publisher.types())-1])

	err = h.svc.RecordLocation(context.Background(), h.driver.ID, order.ID, types.GeoPoint{Lat: 200})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListIsRoleScoped(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 500000)
	for i := 0; i < 3; i++ {
		_, err := h.create(t, enums.PaymentMethodWallet)
		require.NoError(t, err)
	}

	mine, err := h.svc.List(context.Background(), h.customerActor(), nil, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 2)
	require.NotEmpty(t, mine.NextCursor)

	station, err := h.svc.List(context.Background(), h.stationActor(), nil, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, station.Orders, 3)

	driver, err := h.svc.List(context.Background(), h.driverActor(), nil, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, driver.Orders)

	other, err := h.svc.List(context.Background(), types.Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}, nil, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, other.Orders)
}
