package shared

import (
	"context"
	"strings"
)

// Role is the department role the identity collaborator assigns to a user.
type Role string

const (
	RoleSales       Role = "sales"
	RoleProcurement Role = "procurement"
	RoleLogistics   Role = "logistics"
	RoleCustoms     Role = "customs"
	RoleFinance     Role = "finance"
	RoleController  Role = "controller"
	RoleAdmin       Role = "admin"
)

// ParseRole normalises a role string. Unknown roles are kept as-is and simply
// never match a permitted set.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64
	OrgID  int64
	Role   Role
}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.UserID == 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
