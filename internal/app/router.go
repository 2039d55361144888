package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
	"github.com/atlas-commerce/atlas-ledger/internal/assets"
	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/observability"
	"github.com/atlas-commerce/atlas-ledger/internal/periods"
	"github.com/atlas-commerce/atlas-ledger/internal/recon"
	"github.com/atlas-commerce/atlas-ledger/internal/reports"
	"github.com/atlas-commerce/atlas-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	LedgerHandler   *ledger.Handler
	PeriodsHandler  *periods.Handler
	ReportsHandler  *reports.Handler
	AssetsHandler   *assets.Handler
	ReconHandler    *recon.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.LedgerHandler != nil {
			r.Route("/journal-entries", params.LedgerHandler.MountRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.AssetsHandler != nil {
			r.Route("/depreciation", params.AssetsHandler.MountRoutes)
		}
		if params.ReconHandler != nil {
			r.Route("/reconciliations", params.ReconHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
