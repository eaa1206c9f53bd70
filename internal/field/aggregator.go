// Package field derives per-field and fleet-wide summaries from the latest
// reading of each metric.
package field

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
)

// Delta keys in FleetSummary.Deltas.
const (
	StatFieldCount       = "field_count"
	StatAvgNdvi          = "avg_ndvi"
	StatActiveAlerts     = "active_alert_count"
	StatAvgSoilHealthPct = "avg_soil_health_pct"
)

// Summary is the derived view of one field.
type Summary struct {
	FieldID       string                    `json:"field_id"`
	Values        map[domain.Metric]float64 `json:"values"`
	HealthTier    domain.HealthTier         `json:"health_tier"`
	SoilHealthPct float64                   `json:"soil_health_pct"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// FleetSummary is the rollup shown on the dashboard stat cards.
type FleetSummary struct {
	FieldCount       int                `json:"field_count"`
	AvgNdvi          float64            `json:"avg_ndvi"`
	ActiveAlertCount int                `json:"active_alert_count"`
	AvgSoilHealthPct float64            `json:"avg_soil_health_pct"`
	Deltas           map[string]float64 `json:"deltas,omitempty"`
}

// AlertCounter reports the number of active alerts.
type AlertCounter interface {
	Count() int
}

type latest struct {
	value float64
	at    time.Time
}

type fieldState struct {
	values    map[domain.Metric]latest
	updatedAt time.Time

	// Cached derivation, valid while dirty is false.
	dirty   bool
	summary Summary
}

// Aggregator keeps the latest value per metric per field.
type Aggregator struct {
	alerts AlertCounter

	mu     sync.Mutex
	fields map[string]*fieldState
}

// NewAggregator creates an empty Aggregator. alerts may be nil, in which case
// fleet summaries report zero active alerts.
func NewAggregator(alerts AlertCounter) *Aggregator {
	return &Aggregator{
		alerts: alerts,
		fields: make(map[string]*fieldState),
	}
}

// RecordReading upserts the latest value for (field, metric). A reading older
// than the stored one is ignored; equal timestamps resolve to the later call.
// It reports whether the reading was applied.
func (a *Aggregator) RecordReading(r domain.Reading) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	fs, ok := a.fields[r.FieldID]
	if !ok {
		fs = &fieldState{values: make(map[domain.Metric]latest)}
		a.fields[r.FieldID] = fs
	}
	if cur, ok := fs.values[r.Metric]; ok && r.Timestamp.Before(cur.at) {
		return false
	}

	fs.values[r.Metric] = latest{value: r.Value, at: r.Timestamp}
	if r.Timestamp.After(fs.updatedAt) {
		fs.updatedAt = r.Timestamp
	}
	fs.dirty = true
	return true
}

// SummaryFor returns the summary for fieldID, or an error wrapping
// domain.ErrNotFound if the field has no readings.
func (a *Aggregator) SummaryFor(fieldID string) (Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fs, ok := a.fields[fieldID]
	if !ok {
		return Summary{}, fmt.Errorf("field %q: %w", fieldID, domain.ErrNotFound)
	}
	return clone(a.summarize(fieldID, fs)), nil
}

// Summaries returns every field summary ordered by field id.
func (a *Aggregator) Summaries() []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Summary, 0, len(a.fields))
	for _, id := range slices.Sorted(maps.Keys(a.fields)) {
		out = append(out, clone(a.summarize(id, a.fields[id])))
	}
	return out
}

// FieldCount returns the number of fields with at least one reading.
func (a *Aggregator) FieldCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fields)
}

// FleetSummary computes the fleet rollup. When previous is non-nil, Deltas
// holds current minus previous for each stat. An empty fleet yields zeros.
func (a *Aggregator) FleetSummary(previous *FleetSummary) FleetSummary {
	a.mu.Lock()
	var ndviSum, soilSum float64
	var ndviN, soilN int
	for id, fs := range a.fields {
		s := a.summarize(id, fs)
		if v, ok := s.Values[domain.MetricNDVI]; ok {
			ndviSum += v
			ndviN++
		}
		if _, ok := domain.SoilHealthPct(s.Values); ok {
			soilSum += s.SoilHealthPct
			soilN++
		}
	}
	cur := FleetSummary{
		FieldCount:       len(a.fields),
		AvgNdvi:          mean(ndviSum, ndviN),
		AvgSoilHealthPct: mean(soilSum, soilN),
	}
	a.mu.Unlock()

	if a.alerts != nil {
		cur.ActiveAlertCount = a.alerts.Count()
	}

	if previous != nil {
		cur.Deltas = map[string]float64{
			StatFieldCount:       float64(cur.FieldCount - previous.FieldCount),
			StatAvgNdvi:          cur.AvgNdvi - previous.AvgNdvi,
			StatActiveAlerts:     float64(cur.ActiveAlertCount - previous.ActiveAlertCount),
			StatAvgSoilHealthPct: cur.AvgSoilHealthPct - previous.AvgSoilHealthPct,
		}
	}
	return cur
}

// summarize recomputes the cached summary when readings changed since the
// last read. Callers hold a.mu.
func (a *Aggregator) summarize(id string, fs *fieldState) Summary {
	if !fs.dirty {
		return fs.summary
	}

	values := make(map[domain.Metric]float64, len(fs.values))
	for m, l := range fs.values {
		values[m] = l.value
	}
	soil, _ := domain.SoilHealthPct(values)
	fs.summary = Summary{
		FieldID:       id,
		Values:        values,
		HealthTier:    domain.ClassifyHealth(values),
		SoilHealthPct: soil,
		UpdatedAt:     fs.updatedAt,
	}
	fs.dirty = false
	return fs.summary
}

func clone(s Summary) Summary {
	s.Values = maps.Clone(s.Values)
	return s
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
