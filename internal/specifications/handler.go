package specifications

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Handler manages specification endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers specification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/specifications", h.list)
		r.Get("/specifications/{id}", h.show)
		r.Get("/specifications/{id}/deal", h.deal)
		r.Get("/specifications/{id}/document", h.document)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionSpecificationManage))
		r.Post("/quotes/{id}/specification", h.create)
		r.Put("/specifications/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionSpecificationApprove, rbac.ActionSpecificationSign))
		r.Post("/specifications/{id}/approve", h.approve)
		r.Post("/specifications/{id}/sign", h.sign)
	})
}

type termsRequest struct {
	ValidityPeriod            string          `json:"validity_period"`
	PaymentTerms              string          `json:"payment_terms"`
	AdvancePercent            decimal.Decimal `json:"advance_percent"`
	DeliveryPeriodDays        int             `json:"delivery_period_days" validate:"min=0"`
	DaysFromDeliveryToAdvance int             `json:"days_from_delivery_to_advance" validate:"min=0"`
	SignatoryContactID        *int64          `json:"signatory_contact_id" validate:"omitempty,gt=0"`
}

type signRequest struct {
	SignDate string `json:"sign_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	specs, err := h.service.List(r.Context(), actor, filter)
	h.respond(w, r, http.StatusOK, specs, err)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	spec, err := h.service.Get(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, spec, err)
}

func (h *Handler) deal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	deal, err := h.service.GetDeal(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, deal, err)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	pdf, err := h.service.RenderDocument(r.Context(), actor, id)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=specification-"+strconv.FormatInt(id, 10)+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	quoteID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req termsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	spec, err := h.service.CreateFromQuote(r.Context(), actor, quoteID, TermsInput(req))
	h.respond(w, r, http.StatusCreated, spec, err)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req termsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	spec, err := h.service.Update(r.Context(), actor, id, TermsInput(req))
	h.respond(w, r, http.StatusOK, spec, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	spec, err := h.service.Approve(r.Context(), actor, id)
	h.respond(w, r, http.StatusOK, spec, err)
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req signRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	signDate, err := time.Parse(time.DateOnly, req.SignDate)
	if err != nil {
		httpx.RespondError(w, shared.Invalid("sign_date", "must be YYYY-MM-DD"))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Sign(r.Context(), actor, id, signDate)
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if !shared.IsClientError(err) {
			h.logger.Error("specification request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}
