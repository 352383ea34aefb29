package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params, cursor *pagination.Cursor) ([]models.Order, error)
	ListAvailable(ctx context.Context, areas []string, params pagination.Params, cursor *pagination.Cursor) ([]models.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListByPaymentStatus(ctx context.Context, status enums.PaymentStatus, limit int) ([]models.Order, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	Assign(ctx context.Context, id, driverID uuid.UUID) (bool, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error)
	AppendLocation(ctx context.Context, sample *models.OrderLocationSample) error
}

// ListFilter scopes an order list to the actor's relationship.
type ListFilter struct {
	CustomerID *uuid.UUID
	StationID  *uuid.UUID
	DriverID   *uuid.UUID
	Status     *enums.OrderStatus
}
