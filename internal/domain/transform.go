package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// HeaderFieldID carries the field id for sources that encode it outside the
// payload, e.g. in an MQTT topic segment.
const HeaderFieldID = "field_id"

// rawReading is the JSON published by field gateways.
type rawReading struct {
	FieldID   string     `json:"field_id"`
	Metric    string     `json:"metric"`
	Value     *float64   `json:"value"`
	Timestamp *time.Time `json:"timestamp"`
}

// valueRange bounds accepted values per metric. Anything outside is a sensor
// fault, not a reading.
var valueRange = map[Metric][2]float64{
	MetricPH:          {0, 14},
	MetricMoisture:    {0, 100},
	MetricNitrogen:    {0, 200},
	MetricPhosphorus:  {0, 200},
	MetricPotassium:   {0, 200},
	MetricNDVI:        {-1, 1},
	MetricTemperature: {-60, 70},
}

// ParseRawReading decodes and validates a RawEvent's value into a Reading.
// The field id falls back to the HeaderFieldID header; the timestamp falls
// back to the message timestamp and then to the package clock.
func ParseRawReading(raw RawEvent) (Reading, error) {
	var rec rawReading
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return Reading{}, fmt.Errorf("%w: decode: %v", ErrInvalidReading, err)
	}

	fieldID := strings.TrimSpace(rec.FieldID)
	if fieldID == "" {
		fieldID = strings.TrimSpace(raw.Headers[HeaderFieldID])
	}
	if fieldID == "" {
		return Reading{}, fmt.Errorf("%w: missing field_id", ErrInvalidReading)
	}

	metric, err := ParseMetric(strings.ToLower(strings.TrimSpace(rec.Metric)))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	if rec.Value == nil {
		return Reading{}, fmt.Errorf("%w: missing value", ErrInvalidReading)
	}

	r := Reading{
		FieldID:   fieldID,
		Metric:    metric,
		Value:     *rec.Value,
		Timestamp: readingTime(rec.Timestamp, raw.Timestamp),
	}
	if err := ValidateReading(r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// ValidateReading rejects readings with an unknown metric, an empty field id,
// or a value that is not finite or outside the metric's physical range.
func ValidateReading(r Reading) error {
	if strings.TrimSpace(r.FieldID) == "" {
		return fmt.Errorf("%w: missing field_id", ErrInvalidReading)
	}
	if !r.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric", ErrInvalidReading)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: %s value is not finite", ErrInvalidReading, r.Metric)
	}
	bounds := valueRange[r.Metric]
	if r.Value < bounds[0] || r.Value > bounds[1] {
		return fmt.Errorf("%w: %s value %g outside [%g, %g]", ErrInvalidReading, r.Metric, r.Value, bounds[0], bounds[1])
	}
	return nil
}

func readingTime(payload *time.Time, message time.Time) time.Time {
	switch {
	case payload != nil && !payload.IsZero():
		return payload.UTC()
	case !message.IsZero():
		return message.UTC()
	default:
		return clock.Now().UTC()
	}
}
