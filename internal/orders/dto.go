package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

// StoreItemInput is a convenience-store line requested with the order.
type StoreItemInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	PriceCents int64  `json:"priceCents" validate:"gt=0"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=50"`
}

// CreateOrderInput carries a customer's order request.
type CreateOrderInput struct {
	CustomerID     uuid.UUID
	StationID      uuid.UUID
	FuelType       enums.FuelType
	QuantityLitres decimal.Decimal
	StoreItems     []StoreItemInput
	Delivery       types.DeliveryAddress
	PaymentMethod  enums.PaymentMethod
	Notes          *string
}

// UpdateStatusInput is a status change requested by an actor.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Actor   types.Actor
	Status  enums.OrderStatus
	Note    *string
}

// ConfirmPaymentInput records a verified provider capture.
type ConfirmPaymentInput struct {
	OrderID       uuid.UUID
	Provider      string
	TransactionID string
	AmountCents   int64
}

type StoreItemDTO struct {
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

type HistoryDTO struct {
	Status    enums.OrderStatus `json:"status"`
	ActorRole enums.ActorRole   `json:"actorRole"`
	ActorID   *uuid.UUID        `json:"actorId,omitempty"`
	Note      *string           `json:"note,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                   uuid.UUID              `json:"id"`
	OrderNumber          string                 `json:"orderNumber"`
	Status               enums.OrderStatus      `json:"status"`
	CustomerID           uuid.UUID              `json:"customerId"`
	StationID            uuid.UUID              `json:"stationId"`
	DriverID             *uuid.UUID             `json:"driverId,omitempty"`
	FuelType             enums.FuelType         `json:"fuelType"`
	QuantityLitres       decimal.Decimal        `json:"quantityLitres"`
	UnitPriceCents       int64                  `json:"unitPriceCents"`
	StoreItems           []StoreItemDTO         `json:"storeItems"`
	Pricing              types.PricingBreakdown `json:"pricing"`
	Delivery             types.DeliveryAddress  `json:"delivery"`
	PaymentMethod        enums.PaymentMethod    `json:"paymentMethod"`
	PaymentStatus        enums.PaymentStatus    `json:"paymentStatus"`
	PaymentTransactionID *string                `json:"paymentTransactionId,omitempty"`
	PaidAmountCents      int64                  `json:"paidAmountCents"`
	Notes                *string                `json:"notes,omitempty"`
	History              []HistoryDTO           `json:"history,omitempty"`
	ConfirmedAt          *time.Time             `json:"confirmedAt,omitempty"`
	DeliveredAt          *time.Time             `json:"deliveredAt,omitempty"`
	CancelledAt          *time.Time             `json:"cancelledAt,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// OrderList is a page of orders, newest first.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// NewOrderDTO maps the model and optional history onto the API shape.
func NewOrderDTO(order *models.Order, history []models.OrderStatusEvent) OrderDTO {
	items := make([]StoreItemDTO, 0, len(order.StoreItems))
	for _, item := range order.StoreItems {
		items = append(items, StoreItemDTO{Name: item.Name, UnitPriceCents: item.UnitPriceCents, Quantity: item.Quantity})
	}
	var events []HistoryDTO
	for _, ev := range history {
		events = append(events, HistoryDTO{
			Status:    ev.Status,
			ActorRole: ev.ActorRole,
			ActorID:   ev.ActorID,
			Note:      ev.Note,
			CreatedAt: ev.CreatedAt,
		})
	}
	return OrderDTO{
		ID:                   order.ID,
		OrderNumber:          order.OrderNumber,
		Status:               order.Status,
		CustomerID:           order.CustomerID,
		StationID:            order.StationID,
		DriverID:             order.DriverID,
		FuelType:             order.FuelType,
		QuantityLitres:       order.QuantityLitres,
		UnitPriceCents:       order.UnitPriceCents,
		StoreItems:           items,
		Pricing:              order.Pricing,
		Delivery:             order.Delivery,
		PaymentMethod:        order.PaymentMethod,
		PaymentStatus:        order.PaymentStatus,
		PaymentTransactionID: order.PaymentTransactionID,
		PaidAmountCents:      order.PaidAmountCents,
		Notes:                order.Notes,
		History:              events,
		ConfirmedAt:          order.ConfirmedAt,
		DeliveredAt:          order.DeliveredAt,
		CancelledAt:          order.CancelledAt,
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
	}
}
