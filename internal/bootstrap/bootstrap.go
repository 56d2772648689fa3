// Package bootstrap wires the storage, cache, resilience and ledger layers
// shared by the api and cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/migrate"
	"github.com/angelmondragon/stockledger/pkg/redis"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// Runtime holds the long-lived clients of one process.
type Runtime struct {
	DB       *db.Client
	Redis    *redis.Client
	Breakers *resilience.Registry
	Ledger   *inventory.Ledger

	ResilienceMetrics *metrics.ResilienceMetrics
	InventoryMetrics  *metrics.InventoryMetrics
}

// New connects to the database (running dev migrations when enabled), connects
// to Redis when configured and builds the ledger. Redis is optional: without
// it the ledger skips cache invalidation.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*Runtime, error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt := &Runtime{DB: dbClient}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("run dev migrations: %w", err)
	}

	rt.ResilienceMetrics = metrics.NewResilienceMetrics(reg)
	rt.InventoryMetrics = metrics.NewInventoryMetrics(reg)
	rt.Breakers = inventory.NewBreakerRegistry(cfg.Resilience, logg, rt.ResilienceMetrics)

	var cache inventory.CacheInvalidator
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		rt.Redis = redisClient
		cache = redis.NewInvalidator(
			redisClient,
			cfg.Cache,
			rt.Breakers.Get(resilience.ResourceCache),
			observedPolicy(resilience.ForCache().WithOverrides(cfg.Resilience.Cache()), logg, rt.ResilienceMetrics),
		)
	} else {
		logg.Warn(ctx, "redis not configured, cache invalidation disabled")
	}

	dbPolicy := resilience.ForDatabase().WithOverrides(cfg.Resilience.Database())
	ledger, err := inventory.NewLedger(inventory.Params{
		DB:                dbClient,
		Records:           inventory.NewRepository(dbClient.DB()),
		Movements:         inventory.NewMovementRepository(dbClient.DB()),
		Cache:             cache,
		Breakers:          rt.Breakers,
		Policy:            &dbPolicy,
		Logger:            logg,
		Metrics:           rt.InventoryMetrics,
		ResilienceMetrics: rt.ResilienceMetrics,
		AttemptTimeout:    cfg.DB.StatementTimeout,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("build ledger: %w", err)
	}
	rt.Ledger = ledger
	return rt, nil
}

// Close releases every client that was opened.
func (rt *Runtime) Close() error {
	var err error
	if rt.Redis != nil {
		err = multierr.Append(err, rt.Redis.Close())
	}
	if rt.DB != nil {
		err = multierr.Append(err, rt.DB.Close())
	}
	return err
}

func observedPolicy(p resilience.Policy, logg *logger.Logger, m *metrics.ResilienceMetrics) resilience.Policy {
	name := p.Name
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		m.IncRetry(name)
		ctx := logg.WithFields(context.Background(), map[string]any{
			"policy":   name,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})
		logg.WarnErr(ctx, "retrying operation", err)
	}
	return p
}
