package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/field-health-service/internal/config"
	"github.com/couchcryptid/field-health-service/internal/domain"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurement = "field_reading"
	valueField  = "value"

	// maxSeriesPoints bounds a single trend query.
	maxSeriesPoints = 5000
)

// History stores every applied reading in InfluxDB and serves per-field
// metric series. It implements pipeline.HistoryLog.
type History struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
	logger *slog.Logger
}

// NewHistory creates a History for the configured org and bucket.
func NewHistory(cfg *config.Config, logger *slog.Logger) *History {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &History{
		client: client,
		write:  client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		query:  client.QueryAPI(cfg.InfluxOrg),
		bucket: cfg.InfluxBucket,
		logger: logger,
	}
}

// Append writes readings as one blocking batch.
func (h *History) Append(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	points := make([]*write.Point, len(readings))
	for i, r := range readings {
		points[i] = newPoint(r)
	}
	if err := h.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// Series returns the samples of one metric for a field since the given time,
// oldest first.
func (h *History) Series(ctx context.Context, fieldID string, metric domain.Metric, since time.Time) ([]domain.Sample, error) {
	res, err := h.query.Query(ctx, buildSeriesQuery(h.bucket, fieldID, metric, since))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			h.logger.Warn("close influx result", "error", cerr)
		}
	}()

	// Rows arrive newest first so the limit keeps the latest points.
	out := make([]domain.Sample, 0)
	for res.Next() {
		rec := res.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		out = append(out, domain.Sample{Timestamp: rec.Time().UTC(), Value: v})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Ping reports whether the InfluxDB server is reachable.
func (h *History) Ping(ctx context.Context) error {
	ok, err := h.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influx: %w", err)
	}
	if !ok {
		return errors.New("influx not ready")
	}
	return nil
}

func (h *History) Close() {
	h.client.Close()
}

func newPoint(r domain.Reading) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"field_id": r.FieldID,
			"metric":   r.Metric.String(),
		},
		map[string]any{valueField: r.Value},
		r.Timestamp,
	)
}

func buildSeriesQuery(bucket, fieldID string, metric domain.Metric, since time.Time) string {
	return fmt.Sprintf(`
from(bucket: %s)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %s and r.field_id == %s and r.metric == %s)
  |> filter(fn: (r) => r._field == %s)
  |> keep(columns: ["_time","_value"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`,
		fluxString(bucket),
		since.UTC().Format(time.RFC3339),
		fluxString(measurement),
		fluxString(fieldID),
		fluxString(metric.String()),
		fluxString(valueField),
		maxSeriesPoints,
	)
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

// fluxString renders s as a Flux string literal. Dollar signs are escaped so
// "${...}" is never interpolated.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
