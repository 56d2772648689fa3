package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubInventory struct {
	inventory.Service
}

func (stubInventory) GetStatusCounts(context.Context) (inventory.StatusCounts, error) {
	return inventory.StatusCounts{Sufficient: 1, Total: 1}, nil
}

func (stubInventory) GetInventoryStatsByLocation(context.Context) ([]inventory.LocationStats, error) {
	return nil, nil
}

func (stubInventory) Get(_ context.Context, productID uuid.UUID) (*inventory.Record, error) {
	return nil, inventory.NotFound(productID)
}

func newTestRouter(t *testing.T, dbErr, cacheErr error) (http.Handler, *resilience.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	breakers := resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: 1})
	handler := NewRouter(Params{
		Config:    &config.Config{App: config.AppConfig{Env: "test"}},
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:        stubPinger{err: dbErr},
		Cache:     stubPinger{err: cacheErr},
		Breakers:  breakers,
		Inventory: stubInventory{},
		Gatherer:  reg,
		Metrics:   metrics.NewHTTPMetrics(reg),
	})
	return handler, breakers
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	h, breakers := newTestRouter(t, nil, nil)

	rec := serve(h, http.MethodGet, "/health/live")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-StockLedger-Env") != "test" {
		t.Fatalf("expected env header")
	}

	breakers.Get(resilience.ResourceDatabase)
	rec = serve(h, http.MethodGet, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ready"`) || !strings.Contains(rec.Body.String(), `"database":"CLOSED"`) {
		t.Fatalf("unexpected ready payload %s", rec.Body.String())
	}
}

func TestReadinessFailsWithoutDatabase(t *testing.T) {
	h, _ := newTestRouter(t, errors.New("connection refused"), nil)
	rec := serve(h, http.MethodGet, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadinessDegradesWithoutCache(t *testing.T) {
	h, breakers := newTestRouter(t, nil, errors.New("redis down"))
	cache := breakers.Get(resilience.ResourceCache)
	_, _ = resilience.Execute(context.Background(), cache, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("redis down")
	})

	rec := serve(h, http.MethodGet, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while degraded, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"cache":"OPEN"`) {
		t.Fatalf("unexpected payload %s", body)
	}
}

func TestInventoryRoutesAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t, nil, nil)

	rec := serve(h, http.MethodGet, "/api/v1/inventory/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stats 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	rec = serve(h, http.MethodGet, "/api/v1/inventory/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/api/v1/inventory/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `stockledger_http_requests_total{method="GET",route="/api/v1/inventory/stats",status="200"} 1`) {
		t.Fatalf("expected stats request in metrics output:\n%s", rec.Body.String())
	}
}
