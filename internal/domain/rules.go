package domain

import "fmt"

// AlertCandidate is a threshold breach found in a single reading. The alert
// package decides whether it becomes an Alert.
type AlertCandidate struct {
	Rule     string
	Kind     AlertKind
	Message  string
	Location string
}

// EvaluateReading checks a reading against the field threshold rules:
//   - moisture: <30% critical (drought), <50% warning
//   - temperature: >40°C critical, >35°C warning
//   - ph: outside 5.5–7.5 warning
//   - ndvi: <0.3 warning (vegetation stress)
//   - nitrogen, phosphorus, potassium: <45 info (nutrient deficiency)
//
// At most one candidate is returned per reading.
func EvaluateReading(r Reading) []AlertCandidate {
	c, ok := evaluate(r)
	if !ok {
		return nil
	}
	c.Location = r.FieldID
	return []AlertCandidate{c}
}

func evaluate(r Reading) (AlertCandidate, bool) {
	v := r.Value
	switch r.Metric {
	case MetricMoisture:
		switch {
		case v < 30:
			return AlertCandidate{
				Rule:    "drought",
				Kind:    KindCritical,
				Message: fmt.Sprintf("Severe drought detected in field %s (moisture %.0f%%)", r.FieldID, v),
			}, true
		case v < 50:
			return AlertCandidate{
				Rule:    "low_moisture",
				Kind:    KindWarning,
				Message: fmt.Sprintf("Soil moisture below optimal threshold in field %s (%.0f%%)", r.FieldID, v),
			}, true
		}
	case MetricTemperature:
		switch {
		case v > 40:
			return AlertCandidate{
				Rule:    "heat_extreme",
				Kind:    KindCritical,
				Message: fmt.Sprintf("Extreme heat in field %s (%.1f°C)", r.FieldID, v),
			}, true
		case v > 35:
			return AlertCandidate{
				Rule:    "heat_stress",
				Kind:    KindWarning,
				Message: fmt.Sprintf("Heat stress risk elevated in field %s (%.1f°C)", r.FieldID, v),
			}, true
		}
	case MetricPH:
		if v < 5.5 || v > 7.5 {
			return AlertCandidate{
				Rule:    "ph_range",
				Kind:    KindWarning,
				Message: fmt.Sprintf("Soil pH out of range in field %s (%.1f)", r.FieldID, v),
			}, true
		}
	case MetricNDVI:
		if v < 0.3 {
			return AlertCandidate{
				Rule:    "vegetation_stress",
				Kind:    KindWarning,
				Message: fmt.Sprintf("Vegetation stress detected in field %s (NDVI %.2f)", r.FieldID, v),
			}, true
		}
	case MetricNitrogen, MetricPhosphorus, MetricPotassium:
		if v < fairFloor {
			return AlertCandidate{
				Rule:    "nutrient_low_" + r.Metric.String(),
				Kind:    KindInfo,
				Message: fmt.Sprintf("Low %s in field %s (%.0f)", r.Metric, r.FieldID, v),
			}, true
		}
	}
	return AlertCandidate{}, false
}
