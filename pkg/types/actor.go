package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
)

// Actor is the authenticated caller. Station actors use the station id.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// System is the actor recorded for automated transitions.
var System = Actor{Role: enums.ActorRoleSystem}

func (a Actor) IDPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}
