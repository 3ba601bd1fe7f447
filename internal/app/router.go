package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/catalog"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/customers"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/observability"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/orders"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/payments"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/reporting"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/stock"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	CustomersHandler *customers.Handler
	StockHandler     *stock.Handler
	OrdersHandler    *orders.Handler
	PaymentsHandler  *payments.Handler
	ReportingHandler *reporting.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi router. Everything under /api requires
// an operator identity except the M-Pesa callback, which Safaricom
// calls directly.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountCallbackRoutes(api)
		}

		api.Group(func(protected chi.Router) {
			protected.Use(RequireOperator)

			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(protected)
			}
			if params.CustomersHandler != nil {
				protected.Route("/customers", func(cr chi.Router) {
					params.CustomersHandler.MountRoutes(cr)
				})
			}
			if params.StockHandler != nil {
				protected.Route("/stock", func(sr chi.Router) {
					params.StockHandler.MountRoutes(sr)
				})
			}
			if params.OrdersHandler != nil {
				params.OrdersHandler.MountRoutes(protected)
			}
			if params.PaymentsHandler != nil {
				params.PaymentsHandler.MountRoutes(protected)
			}
			if params.ReportingHandler != nil {
				params.ReportingHandler.MountRoutes(protected)
			}
			if params.JobHandler != nil {
				protected.Route("/jobs", func(jr chi.Router) {
					params.JobHandler.MountRoutes(jr)
				})
			}
		})
	})

	return r
}
