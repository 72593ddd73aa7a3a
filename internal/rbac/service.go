package rbac

import (
	"fmt"
	"slices"
	"sort"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Authorize checks that actor may perform action on res. Every state-changing
// operation calls it before touching storage, and evaluates it the same way.
func Authorize(actor shared.Actor, action Action, res Resource) error {
	if actor.IsZero() {
		return shared.ErrUnauthenticated
	}
	if res.OrgID != 0 && actor.OrgID != res.OrgID {
		return fmt.Errorf("%w: resource belongs to another organization", shared.ErrForbidden)
	}
	if !Permits(actor.Role, action) {
		return fmt.Errorf("%w: role %q may not %s", shared.ErrForbidden, actor.Role, action)
	}
	return nil
}

// Permits reports whether role may perform action regardless of tenant.
func Permits(role shared.Role, action Action) bool {
	if role == shared.RoleAdmin {
		return true
	}
	roles, ok := policy[action]
	if !ok {
		return false
	}
	return slices.Contains(roles, role)
}

// ActionsFor lists the actions role may perform, sorted.
func ActionsFor(role shared.Role) []Action {
	out := make([]Action, 0, len(policy))
	for action := range policy {
		if Permits(role, action) {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
