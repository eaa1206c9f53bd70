// Command validate replays a readings fixture through the real domain,
// aggregator, and alert evaluator. It reports rows that fail validation,
// checks the derived state for consistency, and prints per-field tiers and
// the fleet summary. It exits non-zero when any phase fails.
//
// Usage:
//
//	go run ./cmd/validate -readings data/mock/field_readings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/field-health-service/internal/alert"
	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/couchcryptid/field-health-service/internal/field"
	"github.com/jonboulle/clockwork"
)

// replayStart pins the clock so alert timestamps are reproducible.
var replayStart = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// replay holds the state built from a fixture.
type replay struct {
	alerts  *alert.Store
	agg     *field.Aggregator
	raised  []domain.Alert
	applied int
	stale   int
}

func main() {
	path := flag.String("readings", "", "path to a JSON array of readings")
	cooldown := flag.Duration("cooldown", 15*time.Minute, "alert cooldown applied during replay")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*path, *cooldown))
}

func run(path string, cooldown time.Duration) int {
	fmt.Println("=== Field Readings Validation ===")
	fmt.Println()

	rows, err := loadRows(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	parsePhase, readings := validateRows(rows)
	r := replayReadings(readings, cooldown)
	phases := []*phase{
		parsePhase,
		validateFieldState(r.agg),
		validateAlerts(r.raised),
		validateFleet(r.agg),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d total, %d valid, %d applied, %d stale, %d alerts raised\n",
		len(rows), len(readings), r.applied, r.stale, len(r.raised))
	printFields(r.agg)
	printFleet(r.agg)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadRows(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ── Phase 1: Row validation ──

func validateRows(rows []json.RawMessage) (*phase, []domain.Reading) {
	p := &phase{name: "Phase 1: Row Validation"}
	readings := make([]domain.Reading, 0, len(rows))
	for i, row := range rows {
		r, err := domain.ParseRawReading(domain.RawEvent{Value: row, Timestamp: replayStart})
		if err != nil {
			p.errorf("row %d: %v", i, err)
			continue
		}
		readings = append(readings, r)
	}
	return p, readings
}

func replayReadings(readings []domain.Reading, cooldown time.Duration) replay {
	clock := clockwork.NewFakeClockAt(replayStart)
	store := alert.NewStore(clock)
	r := replay{
		alerts: store,
		agg:    field.NewAggregator(store),
	}
	eval := alert.NewEvaluator(store, cooldown, clock)

	for _, reading := range readings {
		if reading.Timestamp.After(clock.Now()) {
			clock.Advance(reading.Timestamp.Sub(clock.Now()))
		}
		if !r.agg.RecordReading(reading) {
			r.stale++
			continue
		}
		r.applied++
		r.raised = append(r.raised, eval.Evaluate(reading)...)
	}
	return r
}

// ── Phase 2: Field state ──

func validateFieldState(agg *field.Aggregator) *phase {
	p := &phase{name: "Phase 2: Field State Consistency"}
	for _, s := range agg.Summaries() {
		if want := domain.ClassifyHealth(s.Values); s.HealthTier != want {
			p.errorf("field %s: health tier %s, recomputed %s", s.FieldID, s.HealthTier, want)
		}
		if s.SoilHealthPct < 0 || s.SoilHealthPct > 100 || math.IsNaN(s.SoilHealthPct) {
			p.errorf("field %s: soil health %g outside [0, 100]", s.FieldID, s.SoilHealthPct)
		}
		for m, v := range s.Values {
			if err := domain.ValidateReading(domain.Reading{FieldID: s.FieldID, Metric: m, Value: v}); err != nil {
				p.errorf("field %s: stored %v", s.FieldID, err)
			}
		}
	}
	return p
}

// ── Phase 3: Alerts ──

func validateAlerts(raised []domain.Alert) *phase {
	p := &phase{name: "Phase 3: Alert Consistency"}
	var lastID int64
	for _, a := range raised {
		if a.ID <= lastID {
			p.errorf("alert %d: id not increasing (previous %d)", a.ID, lastID)
		}
		lastID = a.ID
		if want := domain.ClassifySeverity(a.Kind); a.Severity != want {
			p.errorf("alert %d: severity %s for kind %s, expected %s", a.ID, a.Severity, a.Kind, want)
		}
		if a.Message == "" || a.Location == "" {
			p.errorf("alert %d: empty message or location", a.ID)
		}
	}
	return p
}

// ── Phase 4: Fleet ──

func validateFleet(agg *field.Aggregator) *phase {
	p := &phase{name: "Phase 4: Fleet Summary"}
	fleet := agg.FleetSummary(nil)
	if fleet.FieldCount != len(agg.Summaries()) {
		p.errorf("field count %d, summaries %d", fleet.FieldCount, len(agg.Summaries()))
	}
	if fleet.AvgNdvi < -1 || fleet.AvgNdvi > 1 {
		p.errorf("average NDVI %g outside [-1, 1]", fleet.AvgNdvi)
	}
	if fleet.AvgSoilHealthPct < 0 || fleet.AvgSoilHealthPct > 100 {
		p.errorf("average soil health %g outside [0, 100]", fleet.AvgSoilHealthPct)
	}
	if fleet.Deltas != nil {
		p.errorf("deltas present without a baseline")
	}
	return p
}

// ── Reporting ──

func printFields(agg *field.Aggregator) {
	summaries := agg.Summaries()
	if len(summaries) == 0 {
		return
	}
	tiers := map[domain.HealthTier]int{}
	fmt.Println("\nFields:")
	for _, s := range summaries {
		tiers[s.HealthTier]++
		ndvi := "-"
		if v, ok := s.Values[domain.MetricNDVI]; ok {
			ndvi = fmt.Sprintf("%.2f (%s)", v, domain.ClassifySpectral(v))
		}
		fmt.Printf("  %-8s health=%-9s soil=%5.1f%%  ndvi=%s\n", s.FieldID, s.HealthTier, s.SoilHealthPct, ndvi)
	}
	fmt.Printf("By tier: excellent=%d, good=%d, fair=%d, poor=%d\n",
		tiers[domain.HealthExcellent], tiers[domain.HealthGood], tiers[domain.HealthFair], tiers[domain.HealthPoor])
}

func printFleet(agg *field.Aggregator) {
	fleet := agg.FleetSummary(nil)
	fmt.Printf("\nFleet: fields=%d avg_ndvi=%.3f active_alerts=%d avg_soil_health=%.1f%%\n",
		fleet.FieldCount, fleet.AvgNdvi, fleet.ActiveAlertCount, fleet.AvgSoilHealthPct)
}
