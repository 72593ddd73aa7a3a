package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Handler exposes offer, invoice and workflow endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/items/{id}/offers", h.listOffers)
		r.Get("/quotes/{id}/invoices", h.listInvoices)
		r.Get("/invoices/{id}", h.showInvoice)
		r.Get("/invoices/{id}/costs", h.listCosts)
		r.Get("/invoices/{id}/costs/total", h.costTotal)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionOfferManage, rbac.ActionOfferSelect))
		r.Post("/items/{id}/offers", h.createOffer)
		r.Post("/offers/{id}/select", h.selectOffer)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionInvoiceGroup))
		r.Post("/invoices", h.getOrCreateInvoice)
		r.Post("/quotes/{id}/group", h.groupQuote)
		r.Put("/items/{id}/invoice", h.assignItem)
		r.Delete("/items/{id}/invoice", h.unassignItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionInvoiceDimensions, rbac.ActionInvoiceCostAdd))
		r.Put("/invoices/{id}/dimensions", h.setDimensions)
		r.Post("/invoices/{id}/costs", h.addCost)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionInvoiceCompleteProcurement, rbac.ActionInvoiceCompleteLogistics,
			rbac.ActionInvoiceCompleteCustoms, rbac.ActionInvoiceOverride))
		r.Post("/invoices/{id}/procurement/complete", h.completeProcurement)
		r.Post("/invoices/{id}/logistics/complete", h.completeLogistics)
		r.Post("/invoices/{id}/customs/complete", h.completeCustoms)
		r.Post("/invoices/{id}/override", h.overrideStatus)
	})
}

type offerRequest struct {
	SupplierID   int64           `json:"supplier_id" validate:"required,gt=0"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	LeadTimeDays *int            `json:"lead_time_days" validate:"omitempty,min=0"`
}

type invoiceRequest struct {
	QuoteID        int64  `json:"quote_id" validate:"required,gt=0"`
	SupplierID     int64  `json:"supplier_id" validate:"required,gt=0"`
	BuyerCompanyID int64  `json:"buyer_company_id" validate:"required,gt=0"`
	PickupLocation string `json:"pickup_location" validate:"required"`
	Currency       string `json:"currency" validate:"required,len=3"`
	Number         string `json:"number" validate:"required"`
}

type groupRequest struct {
	BuyerCompanyID int64            `json:"buyer_company_id" validate:"required,gt=0"`
	DefaultPickup  string           `json:"default_pickup"`
	Pickups        map[int64]string `json:"pickups"`
}

type assignRequest struct {
	InvoiceID int64 `json:"invoice_id" validate:"required,gt=0"`
}

type dimensionsRequest struct {
	WeightKg *decimal.Decimal `json:"total_weight_kg"`
	VolumeM3 *decimal.Decimal `json:"total_volume_m3"`
}

type costRequest struct {
	Kind       string          `json:"kind" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	IncurredOn string          `json:"incurred_on" validate:"omitempty,datetime=2006-01-02"`
	Note       string          `json:"note"`
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type costTotalResponse struct {
	InvoiceID int64           `json:"invoice_id"`
	Currency  string          `json:"currency"`
	Date      string          `json:"date"`
	Total     decimal.Decimal `json:"total"`
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	offers, err := h.service.ListOffers(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, offers, err)
}

func (h *Handler) createOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	offer, err := h.service.CreateOffer(r.Context(), actorOf(r), OfferInput{
		ItemID: id, SupplierID: req.SupplierID, Price: req.Price, Currency: req.Currency, LeadTimeDays: req.LeadTimeDays,
	})
	h.respond(w, r, http.StatusCreated, offer, err)
}

func (h *Handler) selectOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	item, err := h.service.SelectOffer(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, invoices, err)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) getOrCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetOrCreateInvoice(r.Context(), actorOf(r), GroupingInput(req))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) groupQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.GroupQuote(r.Context(), actorOf(r), id, GroupQuoteInput(req))
	h.respond(w, r, http.StatusOK, invoices, err)
}

func (h *Handler) assignItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.AssignItem(r.Context(), actorOf(r), id, req.InvoiceID)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) unassignItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.UnassignItem(r.Context(), actorOf(r), id); err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDimensions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req dimensionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.SetDimensions(r.Context(), actorOf(r), id, DimensionsInput(req))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) addCost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req costRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var incurred time.Time
	if req.IncurredOn != "" {
		incurred, _ = time.Parse(time.DateOnly, req.IncurredOn)
	}
	cost, err := h.service.AddCost(r.Context(), actorOf(r), id, CostInput{
		Kind: req.Kind, Amount: req.Amount, Currency: req.Currency, IncurredOn: incurred, Note: req.Note,
	})
	h.respond(w, r, http.StatusCreated, cost, err)
}

func (h *Handler) listCosts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	costs, err := h.service.ListCosts(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, costs, err)
}

func (h *Handler) costTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	currency := strings.ToUpper(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = shared.CurrencyUSD
	}
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("date", "must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	total, err := h.service.LogisticsCostTotal(r.Context(), actorOf(r), id, currency, date)
	h.respond(w, r, http.StatusOK, costTotalResponse{InvoiceID: id, Currency: currency, Date: date.Format(time.DateOnly), Total: total}, err)
}

func (h *Handler) completeProcurement(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteProcurement)
}

func (h *Handler) completeLogistics(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteLogistics)
}

func (h *Handler) completeCustoms(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteCustoms)
}

func (h *Handler) overrideStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.OverrideStatus(r.Context(), actorOf(r), id, InvoiceStatus(req.Status), req.Reason)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor shared.Actor, id int64) (Invoice, error)) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, err := fn(r.Context(), actorOf(r), id)
	h.respond(w, r, http.StatusOK, inv, err)
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
			h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}
