package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

type contextKey string

const (
	ctxActorID contextKey = "actor_id"
	ctxRole    contextKey = "actor_role"
)

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	if ctx == nil {
		return types.Actor{}, false
	}
	id, ok := ctx.Value(ctxActorID).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return types.Actor{}, false
	}
	role, _ := ctx.Value(ctxRole).(enums.ActorRole)
	return types.Actor{ID: id, Role: role}, true
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// WithActor injects the caller into the context.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, actor.ID)
	return context.WithValue(ctx, ctxRole, actor.Role)
}
