package orders

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.StoreItems {
		if order.StoreItems[i].ID == uuid.Nil {
			order.StoreItems[i].ID = uuid.New()
		}
		order.StoreItems[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("StoreItems").
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params, cursor *pagination.Cursor) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("StoreItems")
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.StationID != nil {
		q = q.Where("station_id = ?", *filter.StationID)
	}
	if filter.DriverID != nil {
		q = q.Where("driver_id = ?", *filter.DriverID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}

	var rows []models.Order
	if err := pagination.Apply(q, params, cursor).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAvailable returns unassigned ready orders whose delivery suburb or city
// is one of the normalised areas.
func (r *repository) ListAvailable(ctx context.Context, areas []string, params pagination.Params, cursor *pagination.Cursor) ([]models.Order, error) {
	normalized := make([]string, 0, len(areas))
	for _, area := range areas {
		if a := types.NormalizeArea(area); a != "" {
			normalized = append(normalized, a)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("StoreItems").
		Where("status = ? AND driver_id IS NULL", enums.OrderStatusReady).
		Where("(LOWER(delivery_suburb) IN ? OR LOWER(delivery_city) IN ?)", normalized, normalized)

	var rows []models.Order
	if err := pagination.Apply(q, params, cursor).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByPaymentStatus(ctx context.Context, status enums.PaymentStatus, limit int) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("payment_status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves the order only if it is still in from. The boolean is
// false when another writer got there first.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Assign is the single assignment primitive: at most one concurrent caller
// matches the ready-and-unassigned guard.
func (r *repository) Assign(ctx context.Context, id, driverID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND driver_id IS NULL", id, enums.OrderStatusReady).
		Updates(map[string]any{
			"driver_id": driverID,
			"status":    enums.OrderStatusAssigned,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error) {
	var events []models.OrderStatusEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	// Every edge moves forward, so rank breaks timestamp ties.
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return statusRank(events[i].Status) < statusRank(events[j].Status)
	})
	return events, nil
}

func (r *repository) AppendLocation(ctx context.Context, sample *models.OrderLocationSample) error {
	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sample).Error
}
