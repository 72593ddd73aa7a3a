package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Handler manages quote endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/quotes", h.listQuotes)
		r.Get("/quotes/{id}", h.showQuote)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionQuoteCreate, rbac.ActionQuoteEdit, rbac.ActionChecklistComplete))
		r.Post("/quotes", h.createQuote)
		r.Post("/quotes/{id}/items", h.addItem)
		r.Patch("/items/{id}", h.updateItem)
		r.Post("/quotes/{id}/checklist", h.completeChecklist)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionQuotePrice))
		r.Post("/quotes/{id}/priced", h.markPriced)
		r.Post("/quotes/{id}/totals", h.recalculate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionQuoteApprove, rbac.ActionQuoteReject, rbac.ActionQuoteFinalize))
		r.Post("/quotes/{id}/approve", h.approve)
		r.Post("/quotes/{id}/reject", h.reject)
		r.Post("/quotes/{id}/finalize", h.finalize)
	})
}

type createQuoteRequest struct {
	CustomerID    *int64 `json:"customer_id"`
	Currency      string `json:"currency" validate:"required,len=3"`
	DeliveryTerms string `json:"delivery_terms"`
}

type itemRequest struct {
	Position       *int             `json:"position" validate:"omitempty,min=1"`
	Description    string           `json:"description" validate:"required"`
	Quantity       decimal.Decimal  `json:"quantity"`
	RequestedPrice *decimal.Decimal `json:"requested_price"`
}

type updateItemRequest struct {
	Description    *string          `json:"description"`
	Quantity       *decimal.Decimal `json:"quantity"`
	RequestedPrice *decimal.Decimal `json:"requested_price"`
	IsAvailable    *bool            `json:"is_available"`
}

type checklistRequest struct {
	IsEstimate           bool   `json:"is_estimate"`
	IsTender             bool   `json:"is_tender"`
	DirectRequest        bool   `json:"direct_request"`
	TradingOrgRequest    bool   `json:"trading_org_request"`
	EquipmentDescription string `json:"equipment_description" validate:"required"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type listResponse struct {
	Quotes     []Quote           `json:"quotes"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	filter := QuoteFilter{Status: QuoteStatus(r.URL.Query().Get("status")), Page: page, PerPage: perPage}
	quotes, pagination, err := h.service.ListQuotes(r.Context(), actor, filter)
	h.respond(w, r, http.StatusOK, listResponse{Quotes: quotes, Pagination: pagination}, err)
}

func (h *Handler) showQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q, err := h.service.GetQuote(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, q, err)
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q, err := h.service.CreateQuote(r.Context(), actor, CreateQuoteInput(req))
	h.respond(w, r, http.StatusCreated, q, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.AddItem(r.Context(), actor, id, ItemInput(req))
	h.respond(w, r, http.StatusCreated, item, err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.UpdateItem(r.Context(), actor, id, UpdateItemInput(req))
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *Handler) completeChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req checklistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q, err := h.service.CompleteChecklist(r.Context(), actor, id, ChecklistInput(req))
	h.respond(w, r, http.StatusOK, q, err)
}

func (h *Handler) markPriced(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkPriced)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Finalize)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RecalculateTotals)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q, err := h.service.Reject(r.Context(), actor, id, req.Reason)
	h.respond(w, r, http.StatusOK, q, err)
}

type quoteTransition func(ctx context.Context, actor shared.Actor, id int64) (Quote, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn quoteTransition) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	q, err := fn(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, q, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if !shared.IsClientError(err) {
			h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}
