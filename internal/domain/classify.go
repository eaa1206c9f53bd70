package domain

import "math"

// Health tier floors, applied to every core metric.
const (
	excellentFloor = 80
	goodFloor      = 65
	fairFloor      = 45
)

// ClassifyHealth maps a field's latest metric values to a health tier. Every
// core metric must meet a tier's floor; a missing core metric meets none.
func ClassifyHealth(values map[Metric]float64) HealthTier {
	low := math.Inf(1)
	for _, m := range CoreMetrics {
		v, ok := values[m]
		if !ok || math.IsNaN(v) {
			return HealthPoor
		}
		low = math.Min(low, v)
	}

	switch {
	case low >= excellentFloor:
		return HealthExcellent
	case low >= goodFloor:
		return HealthGood
	case low >= fairFloor:
		return HealthFair
	default:
		return HealthPoor
	}
}

// ClassifySpectral buckets an NDVI value into the spectral map legend:
// >0.8 excellent, >0.6 good, >0.4 fair, else poor.
func ClassifySpectral(ndvi float64) HealthTier {
	switch {
	case ndvi > 0.8:
		return HealthExcellent
	case ndvi > 0.6:
		return HealthGood
	case ndvi > 0.4:
		return HealthFair
	default:
		return HealthPoor
	}
}

// ClassifyRisk buckets a normalized risk score. Bounds are exclusive below,
// so a score of exactly 0.7 is medium. NaN compares false everywhere and
// lands in low.
func ClassifyRisk(score float64) RiskTier {
	switch {
	case score > 0.7:
		return RiskHigh
	case score > 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskDistribution counts how many scores fall in each risk tier. Every tier
// is present in the result, possibly with a zero count.
func RiskDistribution(scores []float64) map[RiskTier]int {
	dist := map[RiskTier]int{RiskHigh: 0, RiskMedium: 0, RiskLow: 0}
	for _, s := range scores {
		dist[ClassifyRisk(s)]++
	}
	return dist
}

// ClassifySeverity returns the fixed severity for an alert kind.
func ClassifySeverity(kind AlertKind) Severity {
	switch kind {
	case KindCritical:
		return SeverityHigh
	case KindWarning:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SoilHealthPct is the mean of the core metrics present in values, clamped
// to [0, 100]. The second result is false when no core metric is present.
func SoilHealthPct(values map[Metric]float64) (float64, bool) {
	var sum float64
	var n int
	for _, m := range CoreMetrics {
		if v, ok := values[m]; ok && !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Max(0, math.Min(100, sum/float64(n))), true
}
