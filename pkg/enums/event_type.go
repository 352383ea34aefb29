package enums

import "fmt"

// EventType names the real-time event kinds pushed to connected clients.
type EventType string

const (
	EventTypeOrderStatusUpdate    EventType = "order_status_update"
	EventTypeDriverLocationUpdate EventType = "driver_location_update"
	EventTypeOrderAssigned        EventType = "order_assigned"
	EventTypePaymentReceived      EventType = "payment_received"
	EventTypeDriverAvailable      EventType = "driver_available"
)

var validEventTypes = []EventType{
	EventTypeOrderStatusUpdate,
	EventTypeDriverLocationUpdate,
	EventTypeOrderAssigned,
	EventTypePaymentReceived,
	EventTypeDriverAvailable,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventType.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into a EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
