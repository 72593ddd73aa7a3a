package logistics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Handler exposes stage tracker endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers logistics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/deals/{id}/stages", h.listStages)
		r.Get("/stages/{id}/expenses", h.listExpenses)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionStageProvision))
		r.Post("/deals/{id}/stages", h.provision)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionStageManage))
		r.Post("/stages/{id}/start", h.start)
		r.Post("/stages/{id}/complete", h.complete)
		r.Put("/stages/{id}/responsible", h.assignResponsible)
		r.Put("/stages/{id}/warehouse", h.setWarehouse)
		r.Put("/stages/{id}/notes", h.updateNotes)
		r.Post("/stages/{id}/expenses", h.addExpense)
	})
}

type responsibleRequest struct {
	UserID *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

type warehouseRequest struct {
	WarehouseID *int64 `json:"warehouse_id" validate:"omitempty,gt=0"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type expenseRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	IncurredOn string          `json:"incurred_on" validate:"omitempty,datetime=2006-01-02"`
	Note       string          `json:"note"`
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	stages, err := h.service.ListStages(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, stages, err)
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	stages, err := h.service.ProvisionStages(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, stages, err)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	expenses, err := h.service.ListExpenses(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, expenses, err)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	stage, err := h.service.StartStage(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, stage, err)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	stage, err := h.service.CompleteStage(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, stage, err)
}

func (h *Handler) assignResponsible(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req responsibleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stage, err := h.service.AssignResponsible(r.Context(), actorOf(r), id, req.UserID)
	h.respond(w, r, http.StatusOK, stage, err)
}

func (h *Handler) setWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stage, err := h.service.SetWarehouse(r.Context(), actorOf(r), id, req.WarehouseID)
	h.respond(w, r, http.StatusOK, stage, err)
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stage, err := h.service.UpdateNotes(r.Context(), actorOf(r), id, req.Notes)
	h.respond(w, r, http.StatusOK, stage, err)
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var incurred time.Time
	if req.IncurredOn != "" {
		incurred, _ = time.Parse(time.DateOnly, req.IncurredOn)
	}
	expense, err := h.service.AddExpense(r.Context(), actorOf(r), id, ExpenseInput{
		Amount: req.Amount, Currency: req.Currency, IncurredOn: incurred, Note: req.Note,
	})
	h.respond(w, r, http.StatusCreated, expense, err)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func actorOf(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if !shared.IsClientError(err) {
			h.logger.Error("logistics request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}
