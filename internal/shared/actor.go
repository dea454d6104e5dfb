package shared

import "context"

// Role is the coarse permission level of a caller. Authentication happens at
// the gateway; the resolved identity arrives with the request.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   int64
	Name string
	Role Role
}

// Privileged reports whether the actor may approve, reject or void
// transactions and bypass the pending queue.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}

type actorContextKey struct{}

// ContextWithActor stores the actor on the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the request actor; a missing actor comes back as
// the zero value, whose role is unprivileged.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
