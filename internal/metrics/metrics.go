package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "drawsync"

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	// Resolver
	ResolveAttempts prometheus.Counter
	ResolveOutcomes *prometheus.CounterVec

	// Fulfillment
	WatcherEvents  *prometheus.CounterVec
	ReadySignals   prometheus.Counter
	ActiveWatches  prometheus.Gauge
	WatchReconnect prometheus.Counter

	// Settlement
	SettlementAttempts prometheus.Counter
	SettlementOutcomes *prometheus.CounterVec

	// Reconciliation
	Merges          prometheus.Counter
	StoreEntries    prometheus.Gauge
	RefreshDuration prometheus.Histogram

	// Outcomes
	OutcomeSignals *prometheus.CounterVec
	SinkErrors     *prometheus.CounterVec

	BackgroundErrors *prometheus.CounterVec
}

// New creates and registers all collectors on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ResolveAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_attempts_total",
			Help:      "Deploy-hash lookups issued by the resolver",
		}),
		ResolveOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_outcomes_total",
			Help:      "Resolver results (resolved, exhausted, aborted)",
		}, []string{"outcome"}),

		WatcherEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_events_total",
			Help:      "Push events received by type",
		}, []string{"type"}),
		ReadySignals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_ready_total",
			Help:      "Ticket-ready signals surfaced (fulfilled or timed out)",
		}),
		ActiveWatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fulfillment_active_watches",
			Help:      "Fulfillment subscriptions currently open",
		}),
		WatchReconnect: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_reconnects_total",
			Help:      "Push channel reconnect attempts",
		}),

		SettlementAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_poll_attempts_total",
			Help:      "Settlement poll fetches",
		}),
		SettlementOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_poll_outcomes_total",
			Help:      "Settlement poll results (settled, exhausted, cancelled)",
		}, []string{"outcome"}),

		Merges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Backend snapshots folded into the store",
		}),
		StoreEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_entries",
			Help:      "Tickets currently held in the store",
		}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time to fetch a backend snapshot",
			Buckets:   prometheus.DefBuckets,
		}),

		OutcomeSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_signals_total",
			Help:      "Outcome signals emitted by status",
		}, []string{"status"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_sink_errors_total",
			Help:      "Outcome sink delivery failures",
		}, []string{"sink"}),

		BackgroundErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_errors_total",
			Help:      "Swallowed background task failures by component",
		}, []string{"component"}),
	}
}

func (m *Metrics) ResolveAttempt() {
	if m == nil {
		return
	}
	m.ResolveAttempts.Inc()
}

func (m *Metrics) ResolveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ResolveOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WatcherEvent(eventType string) {
	if m == nil {
		return
	}
	m.WatcherEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Ready() {
	if m == nil {
		return
	}
	m.ReadySignals.Inc()
}

// WatchOpened and WatchClosed track open subscriptions.
func (m *Metrics) WatchOpened() {
	if m == nil {
		return
	}
	m.ActiveWatches.Inc()
}

func (m *Metrics) WatchClosed() {
	if m == nil {
		return
	}
	m.ActiveWatches.Dec()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.WatchReconnect.Inc()
}

func (m *Metrics) SettlementAttempt() {
	if m == nil {
		return
	}
	m.SettlementAttempts.Inc()
}

func (m *Metrics) SettlementOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SettlementOutcomes.WithLabelValues(outcome).Inc()
}

// Merged records a merge and the resulting store size.
func (m *Metrics) Merged(entries int) {
	if m == nil {
		return
	}
	m.Merges.Inc()
	m.StoreEntries.Set(float64(entries))
}

func (m *Metrics) StoreSize(entries int) {
	if m == nil {
		return
	}
	m.StoreEntries.Set(float64(entries))
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
}

func (m *Metrics) Outcome(status string) {
	if m == nil {
		return
	}
	m.OutcomeSignals.WithLabelValues(status).Inc()
}

func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// BackgroundError counts a failure that was logged and swallowed.
func (m *Metrics) BackgroundError(component string) {
	if m == nil {
		return
	}
	m.BackgroundErrors.WithLabelValues(component).Inc()
}
