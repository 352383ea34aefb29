// Package realtime pushes order and driver events to connected clients.
package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

// Event is the wire envelope written to every connection.
type Event struct {
	Type   enums.EventType `json:"type"`
	Data   any             `json:"data"`
	SentAt time.Time       `json:"sentAt"`
}

// Audience names the recipients of an event. ActorIDs reach every live
// connection of those actors; Roles reach every connection of that role.
type Audience struct {
	ActorIDs []uuid.UUID       `json:"actorIds,omitempty"`
	Roles    []enums.ActorRole `json:"roles,omitempty"`
}

// IsEmpty reports whether nobody would receive the event.
func (a Audience) IsEmpty() bool {
	return len(a.ActorIDs) == 0 && len(a.Roles) == 0
}

// OrderAudience is the customer and station of an order, plus the driver
// when one is assigned. Station connections authenticate with the station id.
func OrderAudience(customerID, stationID uuid.UUID, driverID *uuid.UUID) Audience {
	ids := []uuid.UUID{customerID, stationID}
	if driverID != nil && *driverID != uuid.Nil {
		ids = append(ids, *driverID)
	}
	return Audience{ActorIDs: ids}
}

// RoleAudience reaches every connection of the given role.
func RoleAudience(role enums.ActorRole) Audience {
	return Audience{Roles: []enums.ActorRole{role}}
}

// Publisher is implemented by the local Hub and by the Redis relay.
type Publisher interface {
	Publish(ctx context.Context, audience Audience, event Event) error
}

type OrderStatusPayload struct {
	OrderID   uuid.UUID         `json:"orderId"`
	Status    enums.OrderStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Note      *string           `json:"note,omitempty"`
}

type DriverLocationPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
}

type AssignedDriver struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	Vehicle string    `json:"vehicle"`
}

type OrderAssignedPayload struct {
	OrderID uuid.UUID      `json:"orderId"`
	Driver  AssignedDriver `json:"driver"`
}

type PaymentReceivedPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	AmountCents int64     `json:"amount"`
}

type DriverAvailablePayload struct {
	DriverID uuid.UUID       `json:"driverId"`
	Location *types.GeoPoint `json:"location,omitempty"`
	Rating   float64         `json:"rating"`
}
