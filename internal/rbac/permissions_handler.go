package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// PermissionsHandler reports what the caller may do.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(ActionRead))
		r.Get("/", h.listPermissions)
	})
}

type permissionsResponse struct {
	UserID  int64    `json:"user_id"`
	OrgID   int64    `json:"org_id"`
	Role    string   `json:"role"`
	Actions []Action `json:"actions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		UserID:  actor.UserID,
		OrgID:   actor.OrgID,
		Role:    string(actor.Role),
		Actions: ActionsFor(actor.Role),
	})
}
