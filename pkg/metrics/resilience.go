package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockledger/pkg/resilience"
)

// ResilienceMetrics exposes retry and circuit breaker activity.
type ResilienceMetrics struct {
	retries      *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
}

func NewResilienceMetrics(reg prometheus.Registerer) *ResilienceMetrics {
	if reg == nil {
		return &ResilienceMetrics{}
	}
	m := &ResilienceMetrics{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled after a retryable failure.",
		}, []string{"policy"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Operations that failed after their final attempt.",
		}, []string{"policy"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"resource"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"resource", "from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_rejections_total",
			Help:      "Calls short-circuited by an open breaker.",
		}, []string{"resource"}),
	}
	reg.MustRegister(m.retries, m.exhausted, m.breakerState, m.transitions, m.rejections)
	return m
}

func (m *ResilienceMetrics) IncRetry(policy string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(policy)).Inc()
}

func (m *ResilienceMetrics) IncExhausted(policy string) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.WithLabelValues(normalizeLabel(policy)).Inc()
}

// ObserveTransition records a breaker state change.
func (m *ResilienceMetrics) ObserveTransition(resource string, from, to resilience.State) {
	if m == nil || m.breakerState == nil {
		return
	}
	resource = normalizeLabel(resource)
	m.breakerState.WithLabelValues(resource).Set(float64(to))
	m.transitions.WithLabelValues(resource, from.String(), to.String()).Inc()
}

func (m *ResilienceMetrics) IncRejected(resource string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(resource)).Inc()
}
