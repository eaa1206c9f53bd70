// Package domain models precision-agriculture field readings and the
// categorical states derived from them.
//
// # Readings
//
// A reading is one timestamped measurement for one field and one metric.
// Metrics form a closed set:
//
//	ph           soil acidity, 0–14
//	moisture     volumetric soil moisture, percent
//	nitrogen     nutrient index, percent of crop target
//	phosphorus   nutrient index, percent of crop target
//	potassium    nutrient index, percent of crop target
//	ndvi         normalized difference vegetation index, -1..1 (0..1 in practice)
//	temperature  air temperature near canopy, °C
//
// Moisture, nitrogen, phosphorus, and potassium are the "core" metrics. They
// drive the field health tier and the soil health percentage.
//
// # Health tiers
//
// Evaluated top-down, the first satisfied tier wins:
//
//	excellent  every core metric ≥ 80
//	good       every core metric ≥ 65
//	fair       every core metric ≥ 45
//	poor       otherwise (including any core metric missing)
//
// # Spectral bands
//
// The NDVI map legend uses exclusive lower bounds on the index:
//
//	excellent > 0.8 | good > 0.6 | fair > 0.4 | poor otherwise
//
// # Risk tiers
//
// Risk scores are normalized to 0..1 by whatever model produced them:
//
//	high > 0.7 | medium > 0.4 | low otherwise
//
// Exactly 0.7 is medium and exactly 0.4 is low.
//
// # Alerts
//
// Alert kind is one of critical, warning, info. Severity is a fixed function
// of kind: critical → high, warning → medium, anything else → low. Threshold
// rules that turn readings into alert candidates live in rules.go.
package domain
