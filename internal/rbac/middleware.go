package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Gateway headers carrying the identity collaborator's verdict.
const (
	HeaderUserID = "X-User-ID"
	HeaderOrgID  = "X-Org-ID"
	HeaderRole   = "X-User-Role"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Actor resolves the caller from gateway headers and stores it in context.
// Requests without a usable identity pass through unauthenticated; RequireAny
// rejects them.
func (m Middleware) Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := m.actorFromHeaders(r)
		if ok {
			r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the caller's role permits at least one of the actions.
func (m Middleware) RequireAny(actions ...Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			for _, action := range actions {
				if Permits(actor.Role, action) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied", slog.Int64("user_id", actor.UserID), slog.String("role", string(actor.Role)), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func (m Middleware) actorFromHeaders(r *http.Request) (shared.Actor, bool) {
	rawUser := strings.TrimSpace(r.Header.Get(HeaderUserID))
	rawOrg := strings.TrimSpace(r.Header.Get(HeaderOrgID))
	if rawUser == "" || rawOrg == "" {
		return shared.Actor{}, false
	}
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil || userID <= 0 {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", rawUser))
		}
		return shared.Actor{}, false
	}
	orgID, err := strconv.ParseInt(rawOrg, 10, 64)
	if err != nil || orgID <= 0 {
		if m.Logger != nil {
			m.Logger.Error("rbac parse org id", slog.String("value", rawOrg))
		}
		return shared.Actor{}, false
	}
	return shared.Actor{UserID: userID, OrgID: orgID, Role: shared.ParseRole(r.Header.Get(HeaderRole))}, true
}
