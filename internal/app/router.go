package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/attachments"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/customers"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/vendors"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Pool   *pgxpool.Pool

	AuthMiddleware auth.Middleware
	AuthHandler    *auth.Handler

	CustomerHandler    *customers.Handler
	VendorHandler      *vendors.Handler
	ProductHandler     *products.Handler
	InventoryHandler   *inventory.Handler
	QuotationHandler   *quotations.Handler
	OrderHandler       *orders.Handler
	ProcurementHandler *procurement.Handler
	ARHandler          *ar.Handler
	APHandler          *ap.Handler
	LedgerHandler      *ledger.Handler
	AttachmentHandler  *attachments.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(params.Metrics.Middleware)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			w.Header().Set("Content-Type", "application/json")
			if params.Pool != nil {
				if err := params.Pool.Ping(ctx); err != nil {
					params.Logger.Warn("health probe", slog.Any("error", err))
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = w.Write([]byte(`{"status":"degraded","database":"down"}`))
					return
				}
			}
			_, _ = w.Write([]byte(`{"status":"ok","database":"up"}`))
		})

		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticator)
			params.CustomerHandler.MountRoutes(r)
			params.VendorHandler.MountRoutes(r)
			params.ProductHandler.MountRoutes(r)
			params.InventoryHandler.MountRoutes(r)
			params.QuotationHandler.MountRoutes(r)
			params.OrderHandler.MountRoutes(r)
			params.ProcurementHandler.MountRoutes(r)
			params.ARHandler.MountRoutes(r)
			params.APHandler.MountRoutes(r)
			params.LedgerHandler.MountRoutes(r)
			params.AttachmentHandler.MountRoutes(r)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
