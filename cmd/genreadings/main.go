// Command genreadings generates a seeded fixture of simulated sensor readings
// for a set of fields and optionally publishes it to the readings topic.
// The same seed always produces the same fixture.
//
// Usage:
//
//	go run ./cmd/genreadings \
//	  -fields 12 -hours 48 -seed 42 \
//	  -out data/mock/field_readings.json \
//	  [-brokers localhost:9092 -topic field-readings]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

var start = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

// profile is the per-field baseline a simulated sensor drifts around.
type profile struct {
	base   map[domain.Metric]float64
	spread map[domain.Metric]float64
}

var spreads = map[domain.Metric]float64{
	domain.MetricPH:          0.6,
	domain.MetricMoisture:    10,
	domain.MetricNitrogen:    8,
	domain.MetricPhosphorus:  8,
	domain.MetricPotassium:   8,
	domain.MetricNDVI:        0.08,
	domain.MetricTemperature: 4,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	fields := flag.Int("fields", 12, "number of simulated fields")
	hours := flag.Int("hours", 48, "hours of hourly readings per field")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("out", "data/mock/field_readings.json", "output path for the JSON fixture")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers; publishes the fixture when set")
	topic := flag.String("topic", "field-readings", "Kafka topic to publish to")
	flag.Parse()

	if *fields < 1 || *hours < 1 {
		flag.Usage()
		return fmt.Errorf("-fields and -hours must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	readings := generate(rng, *fields, *hours)

	if err := writeJSON(*out, readings); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d readings for %d fields: %s", len(readings), *fields, *out)

	if *brokers != "" {
		if err := publish(strings.Split(*brokers, ","), *topic, readings); err != nil {
			return fmt.Errorf("publishing fixture: %w", err)
		}
		log.Printf("published %d readings to %s", len(readings), *topic)
	}
	return nil
}

func generate(rng *rand.Rand, fields, hours int) []domain.Reading {
	readings := make([]domain.Reading, 0, fields*hours*len(domain.AllMetrics))
	profiles := make([]profile, fields)
	for i := range profiles {
		profiles[i] = newProfile(rng)
	}

	for h := range hours {
		ts := start.Add(time.Duration(h) * time.Hour)
		for i, p := range profiles {
			id := fieldID(i)
			for _, m := range domain.AllMetrics {
				readings = append(readings, domain.Reading{
					FieldID:   id,
					Metric:    m,
					Value:     p.sample(rng, m, h),
					Timestamp: ts,
				})
			}
		}
	}
	return readings
}

func newProfile(rng *rand.Rand) profile {
	return profile{
		base: map[domain.Metric]float64{
			domain.MetricPH:          between(rng, 5.0, 8.0),
			domain.MetricMoisture:    between(rng, 25, 95),
			domain.MetricNitrogen:    between(rng, 40, 95),
			domain.MetricPhosphorus:  between(rng, 40, 95),
			domain.MetricPotassium:   between(rng, 40, 95),
			domain.MetricNDVI:        between(rng, 0.25, 0.9),
			domain.MetricTemperature: between(rng, 18, 38),
		},
		spread: spreads,
	}
}

// sample draws a value around the field's baseline with a daily temperature
// cycle, clamped to the metric's accepted range.
func (p profile) sample(rng *rand.Rand, m domain.Metric, hour int) float64 {
	v := p.base[m] + rng.NormFloat64()*p.spread[m]/3
	if m == domain.MetricTemperature {
		v += 6 * math.Sin(2*math.Pi*float64(hour%24-9)/24)
	}
	lo, hi := bounds(m)
	v = math.Max(lo, math.Min(hi, v))
	if m == domain.MetricNDVI {
		return math.Round(v*1000) / 1000
	}
	if m == domain.MetricPH {
		return math.Round(v*100) / 100
	}
	return math.Round(v*10) / 10
}

func bounds(m domain.Metric) (float64, float64) {
	switch m {
	case domain.MetricPH:
		return 0, 14
	case domain.MetricNDVI:
		return -1, 1
	case domain.MetricTemperature:
		return -60, 70
	default:
		return 0, 100
	}
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// fieldID names fields A-1..A-6, B-1..B-6, and so on.
func fieldID(i int) string {
	return fmt.Sprintf("%c-%d", 'A'+rune(i/6%26), i%6+1)
}

func publish(brokers []string, topic string, readings []domain.Reading) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const chunk = 500
	for i := 0; i < len(readings); i += chunk {
		end := min(i+chunk, len(readings))
		msgs := make([]kafkago.Message, 0, end-i)
		for _, r := range readings[i:end] {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal reading: %w", err)
			}
			msgs = append(msgs, kafkago.Message{
				Key:     []byte(r.FieldID),
				Value:   data,
				Time:    r.Timestamp,
				Headers: []kafkago.Header{{Key: domain.HeaderFieldID, Value: []byte(r.FieldID)}},
			})
		}
		if err := w.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
