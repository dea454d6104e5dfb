package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saman-erp/saman-erp/internal/approval"
	"github.com/saman-erp/saman-erp/internal/idempotency"
	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/observability"
	"github.com/saman-erp/saman-erp/internal/orders"
	"github.com/saman-erp/saman-erp/internal/vendors"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	OrdersHandler    *orders.Handler
	InventoryHandler *inventory.Handler
	ApprovalHandler  *approval.Handler
	VendorsHandler   *vendors.Handler
	IdempotencyStore idempotency.Store
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router.
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
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if params.IdempotencyStore != nil {
			api.Use(idempotency.Middleware(params.IdempotencyStore, params.Metrics, params.Logger))
		}
		params.OrdersHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.ApprovalHandler.MountRoutes(api)
		params.VendorsHandler.MountRoutes(api)
	})

	return r
}
