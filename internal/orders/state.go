package orders

import (
	"fmt"

	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusPreparing: {enums.OrderStatusReady, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusReady:     {enums.OrderStatusAssigned, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusAssigned:  {enums.OrderStatusInTransit, enums.OrderStatusCancelled, enums.OrderStatusFailed},
	enums.OrderStatusInTransit: {enums.OrderStatusDelivered, enums.OrderStatusFailed},
}

// CanTransition reports whether the edge exists in the order graph.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from the given one.
func NextStatuses(from enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

type edge struct {
	from, to enums.OrderStatus
}

// Edges each role may drive through a status update. pending->confirmed
// belongs to the payment path and ready->assigned to dispatch, so no role
// reaches them here.
var roleEdges = map[enums.ActorRole]map[edge]bool{
	enums.ActorRoleCustomer: {
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:   true,
		{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}: true,
	},
	enums.ActorRoleStation: {
		{enums.OrderStatusConfirmed, enums.OrderStatusPreparing}: true,
		{enums.OrderStatusPreparing, enums.OrderStatusReady}:     true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:   true,
		{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusReady, enums.OrderStatusCancelled}:     true,
		{enums.OrderStatusAssigned, enums.OrderStatusCancelled}:  true,
		{enums.OrderStatusPending, enums.OrderStatusFailed}:      true,
		{enums.OrderStatusConfirmed, enums.OrderStatusFailed}:    true,
		{enums.OrderStatusPreparing, enums.OrderStatusFailed}:    true,
		{enums.OrderStatusReady, enums.OrderStatusFailed}:        true,
		{enums.OrderStatusAssigned, enums.OrderStatusFailed}:     true,
	},
	enums.ActorRoleDriver: {
		{enums.OrderStatusAssigned, enums.OrderStatusInTransit}:  true,
		{enums.OrderStatusInTransit, enums.OrderStatusDelivered}: true,
		{enums.OrderStatusInTransit, enums.OrderStatusFailed}:    true,
	},
}

// RoleMayTransition reports whether role may request the edge. The system
// actor may take any edge in the graph.
func RoleMayTransition(role enums.ActorRole, from, to enums.OrderStatus) bool {
	if role == enums.ActorRoleSystem {
		return CanTransition(from, to)
	}
	return roleEdges[role][edge{from, to}]
}

// CurrentStatus derives the status from the last history entry after
// checking the history is a valid walk of the graph from pending.
func CurrentStatus(history []models.OrderStatusEvent) (enums.OrderStatus, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("order history is empty")
	}
	if history[0].Status != enums.OrderStatusPending {
		return "", fmt.Errorf("order history starts at %s", history[0].Status)
	}
	for i := 1; i < len(history); i++ {
		if !CanTransition(history[i-1].Status, history[i].Status) {
			return "", fmt.Errorf("illegal history step %s -> %s", history[i-1].Status, history[i].Status)
		}
	}
	return history[len(history)-1].Status, nil
}

// stockRestorable reports whether fuel deducted at confirmation is still at
// the station.
func stockRestorable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusConfirmed || status == enums.OrderStatusPreparing
}

func statusRank(status enums.OrderStatus) int {
	switch status {
	case enums.OrderStatusPending:
		return 0
	case enums.OrderStatusConfirmed:
		return 1
	case enums.OrderStatusPreparing:
		return 2
	case enums.OrderStatusReady:
		return 3
	case enums.OrderStatusAssigned:
		return 4
	case enums.OrderStatusInTransit:
		return 5
	default:
		return 6
	}
}
