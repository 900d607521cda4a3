package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes.
const (
	PollOutcomeUnchanged   = "unchanged"
	PollOutcomeChanged     = "changed"
	PollOutcomeNotFound    = "not_found"
	PollOutcomeRateLimited = "rate_limited"
	PollOutcomeError       = "error"
)

// PollerMetrics records order status polling.
type PollerMetrics struct {
	polls   *prometheus.CounterVec
	rounds  prometheus.Counter
	backoff prometheus.Gauge
}

// NewPollerMetrics registers the poller metrics on reg.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	if reg == nil {
		return &PollerMetrics{}
	}
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_polls_total",
		Help:      "Order status lookups by outcome.",
	}, []string{"outcome"})
	rounds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_poll_rounds_total",
		Help:      "Completed polling rounds.",
	})
	backoff := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "order_poll_backoff_seconds",
		Help:      "Current rate-limit backoff window; zero when polling normally.",
	})
	reg.MustRegister(polls, rounds, backoff)
	return &PollerMetrics{polls: polls, rounds: rounds, backoff: backoff}
}

// IncPoll counts one lookup with the given outcome.
func (m *PollerMetrics) IncPoll(outcome string) {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRound counts one finished sweep over the active orders.
func (m *PollerMetrics) IncRound() {
	if m == nil || m.rounds == nil {
		return
	}
	m.rounds.Inc()
}

// SetBackoff publishes the current backoff window.
func (m *PollerMetrics) SetBackoff(d time.Duration) {
	if m == nil || m.backoff == nil {
		return
	}
	m.backoff.Set(d.Seconds())
}
