package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockledger/api/controllers"
	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// Params carries the dependencies the router wires into controllers.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        controllers.Pinger
	Cache     controllers.Pinger
	Breakers  *resilience.Registry
	Inventory inventory.Service
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.HTTPMetrics
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Cache, p.Breakers))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Post("/", controllers.InventoryCreate(p.Inventory, logg))
		r.Put("/batch", controllers.InventoryBatchUpdate(p.Inventory, logg))
		r.Put("/thresholds", controllers.InventoryThresholdBatch(p.Inventory, logg))
		r.Get("/low-stock", controllers.InventoryLowStock(p.Inventory, logg))
		r.Get("/out-of-stock", controllers.InventoryOutOfStock(p.Inventory, logg))
		r.Get("/stats", controllers.InventoryStats(p.Inventory, logg))

		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", controllers.InventoryGet(p.Inventory, logg))
			r.Delete("/", controllers.InventoryDelete(p.Inventory, logg))
			r.Post("/reduce", controllers.InventoryReduce(p.Inventory, logg))
			r.Post("/restock", controllers.InventoryRestock(p.Inventory, logg))
			r.Get("/movements", controllers.InventoryMovements(p.Inventory, logg))
		})
	})

	return r
}
