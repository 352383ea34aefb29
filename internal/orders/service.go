package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/internal/ledger"
	"github.com/angelmondragon/fueldrop-backend/internal/pricing"
	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/internal/stations"
	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const (
	walletProvider       = "wallet"
	defaultDriverRate    = 0.8
	expiryNote           = "payment not received"
	paymentReceivedNote  = "payment received"
	paymentAbandonedNote = "payment could not be applied"
	refundReasonCancel   = "order cancelled"
	refundReasonFailed   = "order failed"
	defaultExpiryBatch   = 100
	maxQuantityLitresStr = "2000"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type priceCalculator interface {
	Calculate(in pricing.Input) (types.PricingBreakdown, error)
}

type stationStock interface {
	Quote(ctx context.Context, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) (*stations.Quote, error)
	Deduct(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error
	Restore(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, fuel enums.FuelType, litres decimal.Decimal) error
}

type walletLedger interface {
	Debit(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, error)
	CreditOnce(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, bool, error)
}

type driverPool interface {
	Release(ctx context.Context, tx *gorm.DB, driverID uuid.UUID) error
}

// StageProvider reports the current load-shedding stage for an area. It
// never fails; unknown means stage 0.
type StageProvider interface {
	Stage(ctx context.Context, area string) int
}

// CaptureRefunder returns a provider capture to the customer and yields the
// provider refund id.
type CaptureRefunder interface {
	RefundCapture(ctx context.Context, order *models.Order, reason string) (string, error)
}

// Service coordinates the order lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, actor types.Actor, status *enums.OrderStatus, params pagination.Params) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*OrderDTO, error)
	AbandonPayment(ctx context.Context, input ConfirmPaymentInput) (*OrderDTO, error)
	RecordLocation(ctx context.Context, driverID, orderID uuid.UUID, point types.GeoPoint) error
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
	RetryFailedRefunds(ctx context.Context, limit int) (int, error)
	Load(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// ServiceParams lists the collaborators of the order service.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Numbers      NumberGenerator
	Pricing      priceCalculator
	Stations     stationStock
	Ledger       walletLedger
	Drivers      driverPool
	LoadShedding StageProvider
	Refunder     CaptureRefunder
	Publisher    realtime.Publisher
	Metrics      *metrics.OrderMetrics
	Config       config.OrdersConfig
	AllowEFT     bool
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	numbers    NumberGenerator
	pricing    priceCalculator
	stations   stationStock
	ledger     walletLedger
	drivers    driverPool
	stages     StageProvider
	refunder   CaptureRefunder
	publisher  realtime.Publisher
	metrics    *metrics.OrderMetrics
	driverRate decimal.Decimal
	allowEFT   bool
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Numbers == nil {
		return nil, fmt.Errorf("order number generator required")
	}
	if p.Pricing == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if p.Stations == nil {
		return nil, fmt.Errorf("stations service required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Drivers == nil {
		return nil, fmt.Errorf("drivers service required")
	}
	if p.Refunder == nil {
		return nil, fmt.Errorf("capture refunder required")
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
	rate := p.Config.DriverEarningRate
	if rate <= 0 || rate > 1 {
		rate = defaultDriverRate
	}
	return &service{
		repo:       p.Repo,
		tx:         p.Tx,
		numbers:    p.Numbers,
		pricing:    p.Pricing,
		stations:   p.Stations,
		ledger:     p.Ledger,
		drivers:    p.Drivers,
		stages:     p.LoadShedding,
		refunder:   p.Refunder,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
		driverRate: decimal.NewFromFloat(rate),
		allowEFT:   p.AllowEFT,
		logg:       p.Logger,
		now:        p.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	quote, err := s.stations.Quote(ctx, input.StationID, input.FuelType, input.QuantityLitres)
	if err != nil {
		return nil, err
	}
	stage := 0
	if s.stages != nil {
		stage = s.stages.Stage(ctx, input.Delivery.Suburb)
	}

	now := s.now().UTC()
	pricingItems := make([]pricing.StoreItem, 0, len(input.StoreItems))
	storeItems := make([]models.OrderStoreItem, 0, len(input.StoreItems))
	for _, item := range input.StoreItems {
		pricingItems = append(pricingItems, pricing.StoreItem{Name: item.Name, PriceCents: item.PriceCents, Quantity: item.Quantity})
		storeItems = append(storeItems, models.OrderStoreItem{Name: strings.TrimSpace(item.Name), UnitPriceCents: item.PriceCents, Quantity: item.Quantity})
	}
	breakdown, err := s.pricing.Calculate(pricing.Input{
		QuantityLitres:    input.QuantityLitres,
		UnitPriceCents:    quote.UnitPriceCents,
		StoreItems:        pricingItems,
		Suburb:            input.Delivery.Suburb,
		Delivery:          input.Delivery.Point(),
		Station:           types.GeoPoint{Lat: quote.Station.Lat, Lon: quote.Station.Lon},
		Date:              now,
		LoadSheddingStage: stage,
	})
	if err != nil {
		return nil, err
	}

	delivery := input.Delivery
	delivery.Street = strings.TrimSpace(delivery.Street)
	delivery.Suburb = strings.TrimSpace(delivery.Suburb)
	delivery.City = strings.TrimSpace(delivery.City)

	order := &models.Order{
		ID:             uuid.New(),
		Status:         enums.OrderStatusPending,
		CustomerID:     input.CustomerID,
		StationID:      input.StationID,
		FuelType:       input.FuelType,
		QuantityLitres: input.QuantityLitres,
		UnitPriceCents: quote.UnitPriceCents,
		Pricing:        breakdown,
		Delivery:       delivery,
		PaymentMethod:  input.PaymentMethod,
		PaymentStatus:  enums.PaymentStatusUnpaid,
		Notes:          input.Notes,
		StoreItems:     storeItems,
	}
	customer := types.Actor{ID: input.CustomerID, Role: enums.ActorRoleCustomer}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		number, err := s.numbers.Next(ctx, tx, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.OrderNumber = number
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.appendHistory(ctx, repo, order.ID, enums.OrderStatusPending, customer, nil); err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodWallet {
			return nil
		}

		txn, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			OwnerID:     order.CustomerID,
			OwnerRole:   enums.ActorRoleCustomer,
			AmountCents: order.Pricing.PayableCents(),
			Type:        enums.WalletTransactionTypeOrderPayment,
			Reason:      "payment for " + order.OrderNumber,
			OrderID:     &order.ID,
		})
		if err != nil {
			return err
		}
		return s.confirm(ctx, tx, repo, order, walletProvider, txn.ID.String(), order.Pricing.PayableCents())
	})
	if err != nil {
		s.metrics.Transition("none", enums.OrderStatusPending.String(), "error")
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order created")
	s.metrics.Transition("none", enums.OrderStatusPending.String(), "ok")
	if order.Status == enums.OrderStatusConfirmed {
		s.metrics.Transition(enums.OrderStatusPending.String(), enums.OrderStatusConfirmed.String(), "ok")
		s.publishPayment(ctx, order)
		note := paymentReceivedNote
		s.publishStatus(ctx, order, order.DriverID, &note)
	}
	return s.view(ctx, order.ID)
}

// confirm deducts stock and moves a pending order to confirmed with its
// payment recorded. It must run inside tx.
func (s *service) confirm(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, provider, transactionID string, amountCents int64) error {
	if err := s.stations.Deduct(ctx, tx, order.StationID, order.FuelType, order.QuantityLitres); err != nil {
		return err
	}
	now := s.now().UTC()
	ok, err := repo.Transition(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, map[string]any{
		"payment_status":         enums.PaymentStatusPaid,
		"payment_provider":       provider,
		"payment_transaction_id": transactionID,
		"paid_amount_cents":      amountCents,
		"paid_at":                now,
		"confirmed_at":           now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
	}
	if !ok {
		return invalidTransition(order.Status, enums.OrderStatusConfirmed)
	}
	note := paymentReceivedNote
	if err := s.appendHistory(ctx, repo, order.ID, enums.OrderStatusConfirmed, types.System, &note); err != nil {
		return err
	}

	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaymentProvider = &provider
	order.PaymentTransactionID = &transactionID
	order.PaidAmountCents = amountCents
	order.PaidAt = &now
	order.ConfirmedAt = &now
	return nil
}

// ConfirmPayment records a verified provider capture against a pending
// order. A replay for an already confirmed order with the same transaction
// returns the order unchanged.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var order *models.Order
	replay := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.find(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == enums.PaymentStatusPaid && order.PaymentTransactionID != nil && *order.PaymentTransactionID == input.TransactionID {
			replay = true
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return invalidTransition(order.Status, enums.OrderStatusConfirmed)
		}
		if input.AmountCents != order.Pricing.PayableCents() {
			return pkgerrors.New(pkgerrors.CodeValidation, "captured amount does not match order total").
				WithDetails(map[string]any{"expectedCents": order.Pricing.PayableCents(), "capturedCents": input.AmountCents})
		}
		return s.confirm(ctx, tx, repo, order, input.Provider, input.TransactionID, input.AmountCents)
	})
	if err != nil {
		s.metrics.Transition(enums.OrderStatusPending.String(), enums.OrderStatusConfirmed.String(), resultLabel(err))
		return nil, err
	}
	if !replay {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
		s.metrics.Transition(enums.OrderStatusPending.String(), enums.OrderStatusConfirmed.String(), "ok")
		s.publishPayment(ctx, order)
		note := paymentReceivedNote
		s.publishStatus(ctx, order, order.DriverID, &note)
	}
	return s.view(ctx, order.ID)
}

// AbandonPayment fails a pending order whose capture could not be applied.
// The capture is recorded on the order and then refunded, so a replay of the
// same provider transaction finds the order settled instead of pending.
func (s *service) AbandonPayment(ctx context.Context, input ConfirmPaymentInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.find(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return invalidTransition(order.Status, enums.OrderStatusFailed)
		}
		now := s.now().UTC()
		ok, err := repo.Transition(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusFailed, map[string]any{
			"payment_status":         enums.PaymentStatusPaid,
			"payment_provider":       input.Provider,
			"payment_transaction_id": input.TransactionID,
			"paid_amount_cents":      input.AmountCents,
			"paid_at":                now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail order")
		}
		if !ok {
			return invalidTransition(order.Status, enums.OrderStatusFailed)
		}
		note := paymentAbandonedNote
		if err := s.appendHistory(ctx, repo, order.ID, enums.OrderStatusFailed, types.System, &note); err != nil {
			return err
		}

		order.Status = enums.OrderStatusFailed
		order.PaymentStatus = enums.PaymentStatusPaid
		order.PaymentProvider = &input.Provider
		order.PaymentTransactionID = &input.TransactionID
		order.PaidAmountCents = input.AmountCents
		order.PaidAt = &now
		return nil
	})
	if err != nil {
		s.metrics.Transition(enums.OrderStatusPending.String(), enums.OrderStatusFailed.String(), resultLabel(err))
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.metrics.Transition(enums.OrderStatusPending.String(), enums.OrderStatusFailed.String(), "ok")
	s.logg.Warn(s.logg.WithField(ctx, "transaction_id", input.TransactionID), "order failed after capture")
	// a failed refund leaves refund_failed for the reconciliation job
	_ = s.refundCapture(ctx, order, enums.OrderStatusFailed)
	note := paymentAbandonedNote
	s.publishStatus(ctx, order, nil, &note)
	return s.view(ctx, order.ID)
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": input.Status})
	}
	order, err := s.loadScoped(ctx, input.Actor, input.OrderID)
	if err != nil {
		return nil, err
	}

	from, to := order.Status, input.Status
	switch {
	case to == enums.OrderStatusConfirmed:
		return nil, invalidTransition(from, to).WithDetails(map[string]any{"from": from, "to": to, "reason": "orders are confirmed by payment"})
	case to == enums.OrderStatusAssigned:
		return nil, invalidTransition(from, to).WithDetails(map[string]any{"from": from, "to": to, "reason": "orders are assigned through dispatch"})
	case !CanTransition(from, to):
		s.metrics.Transition(from.String(), to.String(), "rejected")
		return nil, invalidTransition(from, to)
	case !RoleMayTransition(input.Actor.Role, from, to):
		s.metrics.Transition(from.String(), to.String(), "forbidden")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s may not move an order from %s to %s", input.Actor.Role, from, to))
	}

	if err := s.transition(ctx, order, to, input.Actor, trimNote(input.Note)); err != nil {
		return nil, err
	}
	return s.view(ctx, order.ID)
}

// transition applies from->to with its side effects in one transaction,
// then publishes the status event and settles provider refunds.
func (s *service) transition(ctx context.Context, order *models.Order, to enums.OrderStatus, actor types.Actor, note *string) error {
	from := order.Status
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	audienceDriver := order.DriverID
	providerRefund := false

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		updates := map[string]any{}
		switch to {
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
		case enums.OrderStatusCancelled, enums.OrderStatusFailed:
			if to == enums.OrderStatusCancelled {
				updates["cancelled_at"] = now
			}
			if order.DriverID != nil {
				updates["driver_id"] = nil
			}
		}

		ok, err := repo.Transition(ctx, order.ID, from, to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return invalidTransition(from, to).WithDetails(map[string]any{"from": from, "to": to, "reason": "order changed concurrently"})
		}
		if err := s.appendHistory(ctx, repo, order.ID, to, actor, note); err != nil {
			return err
		}

		switch to {
		case enums.OrderStatusDelivered:
			return s.payout(ctx, tx, order)
		case enums.OrderStatusCancelled, enums.OrderStatusFailed:
			if order.DriverID != nil {
				if err := s.drivers.Release(ctx, tx, *order.DriverID); err != nil {
					return err
				}
			}
			if order.PaymentStatus == enums.PaymentStatusPaid && stockRestorable(from) {
				if err := s.stations.Restore(ctx, tx, order.StationID, order.FuelType, order.QuantityLitres); err != nil {
					return err
				}
			}
			if order.PaymentStatus != enums.PaymentStatusPaid {
				return nil
			}
			if order.PaymentMethod != enums.PaymentMethodWallet {
				providerRefund = true
				return nil
			}
			return s.refundWallet(ctx, tx, repo, order, to)
		}
		return nil
	})
	if err != nil {
		s.metrics.Transition(from.String(), to.String(), resultLabel(err))
		return err
	}

	s.metrics.Transition(from.String(), to.String(), "ok")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from.String(), "to": to.String()}), "order status changed")
	order.Status = to

	if providerRefund {
		// the status change stands; a failed refund is retried by the reconciliation job
		_ = s.refundCapture(ctx, order, to)
	}
	s.publishStatus(ctx, order, audienceDriver, note)
	return nil
}

// payout credits the driver and the station from the stored breakdown. The
// one-time credits make a repeated delivery a no-op.
func (s *service) payout(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.DriverID != nil {
		earning := decimal.NewFromInt(order.Pricing.DeliveryFeeCents).Mul(s.driverRate).Round(0).IntPart()
		if earning > 0 {
			if _, _, err := s.ledger.CreditOnce(ctx, tx, ledger.Entry{
				OwnerID:     *order.DriverID,
				OwnerRole:   enums.ActorRoleDriver,
				AmountCents: earning,
				Type:        enums.WalletTransactionTypeDriverEarning,
				Reason:      "delivery of " + order.OrderNumber,
				OrderID:     &order.ID,
			}); err != nil {
				return err
			}
		}
		if err := s.drivers.Release(ctx, tx, *order.DriverID); err != nil {
			return err
		}
	}
	if station := order.Pricing.StationEarningCents(); station > 0 {
		if _, _, err := s.ledger.CreditOnce(ctx, tx, ledger.Entry{
			OwnerID:     order.StationID,
			OwnerRole:   enums.ActorRoleStation,
			AmountCents: station,
			Type:        enums.WalletTransactionTypeStationEarning,
			Reason:      "sale " + order.OrderNumber,
			OrderID:     &order.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) refundWallet(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.OrderStatus) error {
	if order.PaidAmountCents <= 0 {
		return nil
	}
	if _, _, err := s.ledger.CreditOnce(ctx, tx, ledger.Entry{
		OwnerID:     order.CustomerID,
		OwnerRole:   enums.ActorRoleCustomer,
		AmountCents: order.PaidAmountCents,
		Type:        enums.WalletTransactionTypeRefund,
		Reason:      refundReason(to) + " " + order.OrderNumber,
		OrderID:     &order.ID,
	}); err != nil {
		return err
	}
	if err := repo.UpdatePayment(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusRefunded}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	order.PaymentStatus = enums.PaymentStatusRefunded
	return nil
}

// refundCapture runs after the status change commits. A failed refund leaves
// the order flagged refund_failed for reconciliation.
func (s *service) refundCapture(ctx context.Context, order *models.Order, to enums.OrderStatus) error {
	status := enums.PaymentStatusRefunded
	refundID, refundErr := s.refunder.RefundCapture(ctx, order, refundReason(to))
	if refundErr != nil {
		status = enums.PaymentStatusRefundFailed
		s.logg.Error(ctx, "provider refund failed", refundErr)
	} else {
		s.logg.Info(s.logg.WithField(ctx, "refund_id", refundID), "provider refund issued")
	}
	if err := s.repo.UpdatePayment(ctx, order.ID, map[string]any{"payment_status": status}); err != nil {
		s.logg.Error(ctx, "record refund outcome failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund outcome")
	}
	order.PaymentStatus = status
	return refundErr
}

// RetryFailedRefunds re-sends provider refunds for orders flagged
// refund_failed. The provider key is stable per order, so a refund that did
// go through the first time is replayed, not repeated.
func (s *service) RetryFailedRefunds(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	rows, err := s.repo.ListByPaymentStatus(ctx, enums.PaymentStatusRefundFailed, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list failed refunds")
	}

	var (
		refunded int
		errs     error
	)
	for i := range rows {
		order := &rows[i]
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		if err := s.refundCapture(orderCtx, order, order.Status); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refund order %s: %w", order.OrderNumber, err))
			continue
		}
		refunded++
	}
	return refunded, errs
}

func (s *service) RecordLocation(ctx context.Context, driverID, orderID uuid.UUID, point types.GeoPoint) error {
	if err := point.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}
	order, err := s.loadScoped(ctx, types.Actor{ID: driverID, Role: enums.ActorRoleDriver}, orderID)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusAssigned && order.Status != enums.OrderStatusInTransit {
		return pkgerrors.New(pkgerrors.CodeValidation, "location updates are accepted only while the order is assigned or in transit").
			WithDetails(map[string]any{"status": order.Status})
	}
	if err := s.repo.AppendLocation(ctx, &models.OrderLocationSample{
		OrderID:    order.ID,
		DriverID:   driverID,
		Lat:        point.Lat,
		Lon:        point.Lon,
		RecordedAt: s.now().UTC(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record driver location")
	}

	event := realtime.Event{
		Type: enums.EventTypeDriverLocationUpdate,
		Data: realtime.DriverLocationPayload{OrderID: order.ID, Lat: point.Lat, Lon: point.Lon},
	}
	if err := s.publisher.Publish(ctx, realtime.OrderAudience(order.CustomerID, order.StationID, nil), event); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "publish driver location failed: "+err.Error())
	}
	return nil
}

// ExpirePending fails orders that stayed pending past cutoff. Orders that
// were paid in the meantime are skipped.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	rows, err := s.repo.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}

	var (
		expired int
		errs    error
	)
	note := expiryNote
	for i := range rows {
		order := &rows[i]
		if err := s.transition(ctx, order, enums.OrderStatusFailed, types.System, &note); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.OrderNumber, err))
			continue
		}
		expired++
	}
	return expired, errs
}

func (s *service) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadScoped(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	dto := NewOrderDTO(order, history)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor types.Actor, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	filter := ListFilter{Status: status}
	switch actor.Role {
	case enums.ActorRoleCustomer:
		filter.CustomerID = &actor.ID
	case enums.ActorRoleStation:
		filter.StationID = &actor.ID
	case enums.ActorRoleDriver:
		filter.DriverID = &actor.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}

	rows, err := s.repo.List(ctx, filter, params, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, NewOrderDTO(&rows[i], nil))
	}
	return out, nil
}

func (s *service) Load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.find(ctx, s.repo, id)
}

func (s *service) find(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// loadScoped hides orders the actor has no relationship with.
func (s *service) loadScoped(ctx context.Context, actor types.Actor, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.find(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !Visible(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Visible reports whether actor is party to the order.
func Visible(order *models.Order, actor types.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleSystem:
		return true
	case enums.ActorRoleCustomer:
		return order.CustomerID == actor.ID
	case enums.ActorRoleStation:
		return order.StationID == actor.ID
	case enums.ActorRoleDriver:
		return order.DriverID != nil && *order.DriverID == actor.ID
	}
	return false
}

func (s *service) view(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	return s.Get(ctx, types.System, id)
}

func (s *service) appendHistory(ctx context.Context, repo Repository, orderID uuid.UUID, status enums.OrderStatus, actor types.Actor, note *string) error {
	if err := repo.AppendHistory(ctx, &models.OrderStatusEvent{
		OrderID:   orderID,
		Status:    status,
		ActorRole: actor.Role,
		ActorID:   actor.IDPtr(),
		Note:      note,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return nil
}

func (s *service) publishStatus(ctx context.Context, order *models.Order, driverID *uuid.UUID, note *string) {
	event := realtime.Event{
		Type: enums.EventTypeOrderStatusUpdate,
		Data: realtime.OrderStatusPayload{
			OrderID:   order.ID,
			Status:    order.Status,
			Timestamp: s.now().UTC(),
			Note:      note,
		},
	}
	if err := s.publisher.Publish(ctx, realtime.OrderAudience(order.CustomerID, order.StationID, driverID), event); err != nil {
		s.logg.Error(ctx, "publish order status failed", err)
	}
}

func (s *service) publishPayment(ctx context.Context, order *models.Order) {
	event := realtime.Event{
		Type: enums.EventTypePaymentReceived,
		Data: realtime.PaymentReceivedPayload{OrderID: order.ID, AmountCents: order.PaidAmountCents},
	}
	if err := s.publisher.Publish(ctx, realtime.OrderAudience(order.CustomerID, order.StationID, nil), event); err != nil {
		s.logg.Error(ctx, "publish payment received failed", err)
	}
}

func (s *service) validateCreate(input CreateOrderInput) error {
	if input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if input.StationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "station id required")
	}
	if !input.FuelType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown fuel type").
			WithDetails(map[string]any{"fuelType": input.FuelType})
	}
	if !input.QuantityLitres.IsPositive() || input.QuantityLitres.GreaterThan(decimal.RequireFromString(maxQuantityLitresStr)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 0 and "+maxQuantityLitresStr+" litres").
			WithDetails(map[string]any{"quantityLitres": input.QuantityLitres.String()})
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if input.PaymentMethod == enums.PaymentMethodEFT && !s.allowEFT {
		return pkgerrors.New(pkgerrors.CodeValidation, "eft payments are disabled")
	}
	if strings.TrimSpace(input.Delivery.Suburb) == "" || strings.TrimSpace(input.Delivery.City) == "" || strings.TrimSpace(input.Delivery.Street) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery street, suburb and city are required")
	}
	if err := input.Delivery.Point().Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery location")
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to, "allowed": NextStatuses(from)})
}

func refundReason(to enums.OrderStatus) string {
	if to == enums.OrderStatusFailed {
		return refundReasonFailed
	}
	return refundReasonCancel
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func resultLabel(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
		return "rejected"
	case pkgerrors.IsCode(err, pkgerrors.CodeForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
