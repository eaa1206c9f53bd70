package domain

// HealthTier is the categorical health of a field.
type HealthTier string

const (
	HealthExcellent HealthTier = "excellent"
	HealthGood      HealthTier = "good"
	HealthFair      HealthTier = "fair"
	HealthPoor      HealthTier = "poor"
)

// Rank orders health tiers from poor (0) to excellent (3).
func (t HealthTier) Rank() int {
	switch t {
	case HealthExcellent:
		return 3
	case HealthGood:
		return 2
	case HealthFair:
		return 1
	default:
		return 0
	}
}

// RiskTier buckets a normalized risk score.
type RiskTier string

const (
	RiskHigh   RiskTier = "high"
	RiskMedium RiskTier = "medium"
	RiskLow    RiskTier = "low"
)

// Rank orders risk tiers from low (0) to high (2).
func (t RiskTier) Rank() int {
	switch t {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// AlertKind is what the alert feed shows as the alert's icon.
type AlertKind string

const (
	KindCritical AlertKind = "critical"
	KindWarning  AlertKind = "warning"
	KindInfo     AlertKind = "info"
)

// Severity drives alert styling and is derived from AlertKind.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)
