package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "workforce_signals"

// Metrics holds the Prometheus collectors updated by a Runner.
type Metrics struct {
	runs             prometheus.Counter
	runDuration      prometheus.Histogram
	lastRunCompleted prometheus.Gauge
	eventsFound      prometheus.Counter
	outcomes         *prometheus.CounterVec
	sourceFailures   *prometheus.CounterVec
	reconcileErrs    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Ingestion runs started",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one ingestion run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRunCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_completed_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		eventsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_found_total",
			Help:      "Draft events extracted from sources",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Reconcile results by outcome",
		}, []string{"outcome"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "source_failures_total",
			Help:      "Sources that could not be fetched",
		}, []string{"source"}),
		reconcileErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_errors_total",
			Help:      "Drafts that failed to persist",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.lastRunCompleted, m.eventsFound,
			m.outcomes, m.sourceFailures, m.reconcileErrs)
	}
	return m
}
