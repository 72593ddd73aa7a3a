package fx

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

// Handler exposes conversion and rate maintenance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers fx routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRead))
		r.Get("/convert", h.convert)
		r.Get("/gaps", h.gaps)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ActionRatesManage))
		r.Post("/refresh", h.refresh)
	})
}

type convertResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Date     string          `json:"date"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("amount", "must be a decimal number"))
		return
	}
	date, err := parseDate(q.Get("date"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	converted, err := h.service.Converter().Convert(r.Context(), amount, q.Get("currency"), date, q.Get("target"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, convertResponse{Amount: converted, Currency: q.Get("target"), Date: date.Format(time.DateOnly)})
}

func (h *Handler) gaps(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Gaps(r.Context(), from, to)
	if err != nil {
		h.logger.Error("fx gaps", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.service.Refresh(r.Context())
	if err != nil {
		h.logger.Error("fx refresh", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Feed Unavailable", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return DateOnly(time.Now()), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Invalid("date", "must be YYYY-MM-DD")
	}
	return t, nil
}
