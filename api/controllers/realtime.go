package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/api/responses"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
)

// SocketServer upgrades and runs one realtime connection.
type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, actorID uuid.UUID, role enums.ActorRole)
}

// RealtimeSocket hands an authenticated request to the realtime endpoint.
func RealtimeSocket(endpoint SocketServer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
			return
		}
		endpoint.Serve(w, r, actor.ID, actor.Role)
	}
}
