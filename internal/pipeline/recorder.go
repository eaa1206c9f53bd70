package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/field-health-service/internal/alert"
	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/couchcryptid/field-health-service/internal/field"
	"github.com/couchcryptid/field-health-service/internal/observability"
)

// HistoryLog appends readings to time-indexed storage.
type HistoryLog interface {
	Append(ctx context.Context, readings []domain.Reading) error
}

// AlertPublisher forwards raised alerts to downstream consumers.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []domain.Alert) error
}

// Recorder implements BatchLoader. For each batch it appends to the history
// log, records readings into the aggregator, evaluates threshold rules, and
// publishes any raised alerts.
type Recorder struct {
	aggregator *field.Aggregator
	evaluator  *alert.Evaluator
	alerts     field.AlertCounter
	history    HistoryLog
	publisher  AlertPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// RecorderOption configures optional collaborators.
type RecorderOption func(*Recorder)

// WithHistory appends every batch to h before it is recorded.
func WithHistory(h HistoryLog) RecorderOption {
	return func(r *Recorder) { r.history = h }
}

// WithAlertPublisher publishes raised alerts to p.
func WithAlertPublisher(p AlertPublisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// NewRecorder creates a Recorder. alerts is used only to refresh the active
// alert gauge.
func NewRecorder(agg *field.Aggregator, eval *alert.Evaluator, alerts field.AlertCounter, logger *slog.Logger, metrics *observability.Metrics, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		aggregator: agg,
		evaluator:  eval,
		alerts:     alerts,
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadBatch applies readings. A history failure aborts the batch before any
// in-memory state changes so the batch can be retried.
func (r *Recorder) LoadBatch(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	if r.history != nil {
		if err := r.history.Append(ctx, readings); err != nil {
			r.metrics.HistoryWriteErrors.Inc()
			return fmt.Errorf("append history: %w", err)
		}
	}

	var raised []domain.Alert
	for _, reading := range readings {
		if !r.aggregator.RecordReading(reading) {
			r.metrics.ReadingsStale.Inc()
			r.logger.Debug("stale reading ignored",
				"field_id", reading.FieldID,
				"metric", reading.Metric.String(),
				"timestamp", reading.Timestamp,
			)
			continue
		}
		r.metrics.ReadingsRecorded.WithLabelValues(reading.Metric.String()).Inc()

		for _, a := range r.evaluator.Evaluate(reading) {
			r.metrics.AlertsRaised.WithLabelValues(string(a.Kind)).Inc()
			r.logger.Info("alert raised",
				"alert_id", a.ID,
				"kind", a.Kind,
				"severity", a.Severity,
				"location", a.Location,
			)
			raised = append(raised, a)
		}
	}

	r.metrics.FieldsTracked.Set(float64(r.aggregator.FieldCount()))
	if r.alerts != nil {
		r.metrics.ActiveAlerts.Set(float64(r.alerts.Count()))
	}

	// Alerts are already in the feed; a sink failure must not replay the batch.
	if r.publisher != nil && len(raised) > 0 {
		if err := r.publisher.PublishAlerts(ctx, raised); err != nil {
			r.metrics.AlertPublishErrors.Inc()
			r.logger.Warn("publish alerts failed", "error", err, "count", len(raised))
		}
	}
	return nil
}
