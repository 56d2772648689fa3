package inventory

import (
	"context"

	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// NewBreakerRegistry builds the process-wide breaker registry with state
// changes logged and exported.
func NewBreakerRegistry(cfg config.ResilienceConfig, logg *logger.Logger, m *metrics.ResilienceMetrics) *resilience.Registry {
	return resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			m.ObserveTransition(name, from, to)
			if logg == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"resource": name,
				"from":     from.String(),
				"to":       to.String(),
			})
			if to == resilience.StateOpen {
				logg.Warn(ctx, "circuit breaker opened")
				return
			}
			logg.Info(ctx, "circuit breaker state changed")
		},
		OnReject: m.IncRejected,
	})
}
