package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/dealdesk/internal/erps"
	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/logistics"
	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/observability"
	"github.com/odyssey-erp/dealdesk/internal/payments"
	"github.com/odyssey-erp/dealdesk/internal/platform/httpx"
	"github.com/odyssey-erp/dealdesk/internal/procurement"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/specifications"
	"github.com/odyssey-erp/dealdesk/jobs"
	"github.com/odyssey-erp/dealdesk/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware

	SalesHandler          *sales.Handler
	ProcurementHandler    *procurement.Handler
	LogisticsHandler      *logistics.Handler
	SpecificationsHandler *specifications.Handler
	PaymentsHandler       *payments.Handler
	ERPSHandler           *erps.Handler
	FXHandler             *fx.Handler
	MasterDataHandler     *masterdata.Handler
	ReportHandler         *report.Handler
	JobHandler            *jobs.Handler
	PermissionsHandler    *rbac.PermissionsHandler
	Metrics               *observability.Metrics

	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	}
	if params.LogisticsHandler != nil {
		r.Route("/logistics", params.LogisticsHandler.MountRoutes)
	}
	r.Route("/finance", func(r chi.Router) {
		if params.SpecificationsHandler != nil {
			params.SpecificationsHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.ERPSHandler != nil {
			params.ERPSHandler.MountRoutes(r)
		}
	})
	if params.FXHandler != nil {
		r.Route("/fx", params.FXHandler.MountRoutes)
	}
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
