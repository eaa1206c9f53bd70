package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/field-health-service/internal/adapter/http"
	"github.com/couchcryptid/field-health-service/internal/adapter/identity"
	"github.com/couchcryptid/field-health-service/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/field-health-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/field-health-service/internal/adapter/mqtt"
	"github.com/couchcryptid/field-health-service/internal/alert"
	"github.com/couchcryptid/field-health-service/internal/config"
	"github.com/couchcryptid/field-health-service/internal/field"
	"github.com/couchcryptid/field-health-service/internal/observability"
	"github.com/couchcryptid/field-health-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// source is a reading source the pipeline can drain and main can close.
type source interface {
	pipeline.BatchExtractor
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := alert.NewStore(clock)
	agg := field.NewAggregator(store)
	evaluator := alert.NewEvaluator(store, cfg.AlertCooldown, clock)
	baseline := field.NewBaseline(cfg.BaselineInterval, clock)

	var opts []pipeline.RecorderOption
	deps := httpadapter.Deps{
		Aggregator: agg,
		Baseline:   baseline,
		Alerts:     store,
		Metrics:    metrics,
	}

	// History log (enabled via INFLUX_URL).
	var history *influx.History
	if cfg.HistoryEnabled() {
		history = influx.NewHistory(cfg, logger)
		opts = append(opts, pipeline.WithHistory(history))
		deps.History = history
		logger.Info("influx history enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	} else {
		logger.Info("influx history disabled")
	}

	// Alert sink (ALERT_SINK_ENABLED).
	var alertWriter *kafkaadapter.Writer
	if cfg.AlertSinkEnabled {
		alertWriter = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithAlertPublisher(alertWriter))
		logger.Info("kafka alert sink enabled", "topic", cfg.KafkaAlertsTopic)
	}

	// Identity provider (IDENTITY_URL).
	if cfg.IdentityURL != "" {
		deps.Identity = identity.NewClient(cfg.IdentityURL, cfg.IdentityTimeout, metrics, logger)
	} else {
		logger.Info("identity provider not configured, auth endpoints disabled")
	}

	src, err := newSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start reading source", "source", cfg.IngestSource, "error", err)
		os.Exit(1)
	}

	recorder := pipeline.NewRecorder(agg, evaluator, store, logger, metrics, opts...)
	p := pipeline.New(src, pipeline.NewTransformer(), recorder, logger, metrics, cfg.BatchSize, pipeline.WithClock(clock))

	deps.Ready = p
	deps.Loader = recorder
	srv := httpadapter.NewServer(cfg.HTTPAddr, deps, cfg.CORSOrigins, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingest pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := src.Close(); err != nil {
		logger.Error("reading source close error", "error", err)
	}
	if alertWriter != nil {
		if err := alertWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if history != nil {
		history.Close()
	}

	logger.Info("shutdown complete")
}

func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source, error) {
	if cfg.IngestSource == config.SourceMQTT {
		s := mqttadapter.NewSource(cfg, logger)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		logger.Info("ingesting readings from mqtt", "broker", cfg.MQTTBrokerURL, "topic", cfg.MQTTTopic)
		return s, nil
	}
	logger.Info("ingesting readings from kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReadingsTopic)
	return kafkaadapter.NewReader(cfg, logger), nil
}
