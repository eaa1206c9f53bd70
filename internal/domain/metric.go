package domain

import (
	"fmt"
	"time"
)

// Metric identifies what a reading measures.
type Metric uint8

const (
	MetricPH Metric = iota + 1
	MetricMoisture
	MetricNitrogen
	MetricPhosphorus
	MetricPotassium
	MetricNDVI
	MetricTemperature
)

var metricNames = map[Metric]string{
	MetricPH:          "ph",
	MetricMoisture:    "moisture",
	MetricNitrogen:    "nitrogen",
	MetricPhosphorus:  "phosphorus",
	MetricPotassium:   "potassium",
	MetricNDVI:        "ndvi",
	MetricTemperature: "temperature",
}

// CoreMetrics are the soil metrics that decide a field's health tier.
var CoreMetrics = []Metric{MetricMoisture, MetricNitrogen, MetricPhosphorus, MetricPotassium}

// AllMetrics lists every metric in declaration order.
var AllMetrics = []Metric{
	MetricPH, MetricMoisture, MetricNitrogen, MetricPhosphorus,
	MetricPotassium, MetricNDVI, MetricTemperature,
}

func (m Metric) String() string {
	if s, ok := metricNames[m]; ok {
		return s
	}
	return fmt.Sprintf("metric(%d)", uint8(m))
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	_, ok := metricNames[m]
	return ok
}

// ParseMetric maps a wire name such as "moisture" to its Metric.
func ParseMetric(s string) (Metric, error) {
	for m, name := range metricNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid metric %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(b []byte) error {
	v, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Reading is one sensor measurement for one field and one metric.
type Reading struct {
	FieldID   string    `json:"field_id"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
