package payments

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

// Handler manages ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/specifications/{id}/payments", h.listPayments)
		r.Get("/specifications/{id}/schedule", h.listSchedule)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionPaymentRecord))
		r.Post("/specifications/{id}/payments", h.recordPayment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionPaymentSchedule))
		r.Post("/specifications/{id}/schedule", h.schedulePayment)
		r.Put("/schedule/{id}/actual", h.markActual)
	})
}

type paymentRequest struct {
	Category    Category        `json:"category" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	PaidOn      string          `json:"paid_on" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description"`
}

type scheduleRequest struct {
	Basis        Basis           `json:"basis" validate:"required"`
	Days         int             `json:"days" validate:"min=0"`
	ExpectedDate string          `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	Purpose      Purpose         `json:"purpose" validate:"required"`
	Comment      string          `json:"comment"`
}

type actualRequest struct {
	ActualDate string `json:"actual_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	payments, err := h.service.ListPayments(r.Context(), actor, id, Category(r.URL.Query().Get("category")))
	h.respond(w, r, http.StatusOK, payments, err)
}

func (h *Handler) listSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	entries, err := h.service.ListSchedule(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, entries, err)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	paidOn, _ := time.Parse(time.DateOnly, req.PaidOn)
	actor, _ := shared.ActorFromContext(r.Context())
	payment, err := h.service.RecordPayment(r.Context(), actor, PaymentInput{
		SpecificationID: id,
		Category:        req.Category,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaidOn:          paidOn,
		Description:     req.Description,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	h.respond(w, r, http.StatusCreated, payment, err)
}

func (h *Handler) schedulePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ScheduleInput{
		SpecificationID: id,
		Basis:           req.Basis,
		Days:            req.Days,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Purpose:         req.Purpose,
		Comment:         req.Comment,
	}
	if req.ExpectedDate != "" {
		expected, _ := time.Parse(time.DateOnly, req.ExpectedDate)
		input.ExpectedDate = &expected
	}
	actor, _ := shared.ActorFromContext(r.Context())
	entry, err := h.service.SchedulePayment(r.Context(), actor, input)
	h.respond(w, r, http.StatusCreated, entry, err)
}

func (h *Handler) markActual(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req actualRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.ActualDate)
	actor, _ := shared.ActorFromContext(r.Context())
	entry, err := h.service.MarkScheduleActual(r.Context(), actor, id, date)
	h.respond(w, r, http.StatusOK, entry, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if !shared.IsClientError(err) {
			h.logger.Error("payments request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}
