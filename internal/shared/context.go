package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorContextKey struct{}

// Actor identifies who performs a privileged operation, plus request provenance
// forwarded by the host application.
type Actor struct {
	UserID    uuid.UUID
	IPAddress string
	UserAgent string
}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
