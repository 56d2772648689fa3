package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

const (
	envHeader   = "X-StockLedger-Env"
	pingTimeout = 2 * time.Second
)

// Pinger is satisfied by the database and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readiness struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, Redis. The database is
// required; a Redis outage only degrades the instance because cache
// invalidation is best effort. Breaker positions are reported as-is.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, cacheP Pinger, breakers *resilience.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		report := readiness{Status: "ready", Checks: map[string]string{}}

		if dbP == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "database not configured"))
			return
		}
		if err := dbP.Ping(ctx); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database not ready").
				WithDetails(map[string]any{"check": "database"}))
			return
		}
		report.Checks["database"] = "ok"

		if cacheP != nil {
			if err := cacheP.Ping(ctx); err != nil {
				if logg != nil {
					logg.WarnErr(logg.WithResource(r.Context(), resilience.ResourceCache), "readiness.cache_unavailable", err)
				}
				report.Checks["cache"] = "unavailable"
				report.Status = "degraded"
			} else {
				report.Checks["cache"] = "ok"
			}
		}

		if breakers != nil {
			report.Breakers = map[string]string{}
			for name, state := range breakers.Snapshot() {
				report.Breakers[name] = state.String()
				if state != resilience.StateClosed {
					report.Status = "degraded"
				}
			}
		}

		responses.WriteSuccess(w, report)
	}
}
