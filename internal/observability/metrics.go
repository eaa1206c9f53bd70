package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "field_health"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Ingest pipeline metrics.
	MessagesConsumed        prometheus.Counter
	ReadingsRejected        prometheus.Counter
	ReadingsRecorded        *prometheus.CounterVec // labels: metric
	ReadingsStale           prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Alert feed metrics.
	AlertsRaised       *prometheus.CounterVec // labels: kind
	AlertsDismissed    prometheus.Counter
	AlertPublishErrors prometheus.Counter

	// Fleet metrics, refreshed after each batch.
	FieldsTracked prometheus.Gauge
	ActiveAlerts  prometheus.Gauge

	// Collaborator metrics.
	HistoryWriteErrors prometheus.Counter
	IdentityRequests   *prometheus.CounterVec // labels: op={login,signup}, outcome={success,rejected,error,breaker_open}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total reading messages read from the ingest source.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Messages that could not be parsed into a valid reading.",
		}),
		ReadingsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_recorded_total",
			Help:      "Readings applied to the field aggregator, by metric.",
		}, []string{"metric"}),
		ReadingsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_stale_total",
			Help:      "Readings ignored because a newer value was already recorded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per extracted batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-transform-load cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by threshold evaluation, by kind.",
		}, []string{"kind"}),
		AlertsDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dismissed_total",
			Help:      "Alerts removed from the feed by dismissal.",
		}),
		AlertPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Failures publishing raised alerts to the alert sink.",
		}),
		FieldsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fields_tracked",
			Help:      "Number of fields with at least one reading.",
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Number of alerts currently in the feed.",
		}),
		HistoryWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Failures appending readings to the history log.",
		}),
		IdentityRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_requests_total",
			Help:      "Identity provider calls by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.ReadingsRejected,
		m.ReadingsRecorded,
		m.ReadingsStale,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.AlertsRaised,
		m.AlertsDismissed,
		m.AlertPublishErrors,
		m.FieldsTracked,
		m.ActiveAlerts,
		m.HistoryWriteErrors,
		m.IdentityRequests,
	}
}
