package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ingest sources.
const (
	SourceKafka = "kafka"
	SourceMQTT  = "mqtt"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	BatchSize          int
	BatchFlushInterval time.Duration

	IngestSource string

	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaAlertsTopic   string
	KafkaGroupID       string
	AlertSinkEnabled   bool

	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string

	// InfluxDB history log; enabled when InfluxURL is set.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Identity provider; login/signup are disabled when IdentityURL is empty.
	IdentityURL     string
	IdentityTimeout time.Duration

	AlertCooldown    time.Duration
	BaselineInterval time.Duration
}

// HistoryEnabled reports whether readings are written to InfluxDB.
func (c *Config) HistoryEnabled() bool { return c.InfluxURL != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parsePositiveDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	identityTimeout, err := parsePositiveDuration("IDENTITY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	baselineInterval, err := parsePositiveDuration("BASELINE_INTERVAL", "168h")
	if err != nil {
		return nil, err
	}
	alertCooldown, err := parseDuration("ALERT_COOLDOWN", "15m")
	if err != nil {
		return nil, err
	}
	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		IngestSource: strings.ToLower(envOrDefault("INGEST_SOURCE", SourceKafka)),

		KafkaBrokers:       parseList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReadingsTopic: envOrDefault("KAFKA_READINGS_TOPIC", "field-readings"),
		KafkaAlertsTopic:   envOrDefault("KAFKA_ALERTS_TOPIC", "field-alerts"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "field-health"),
		AlertSinkEnabled:   envOrDefault("ALERT_SINK_ENABLED", "false") == "true",

		MQTTBrokerURL: envOrDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTTopic:     envOrDefault("MQTT_TOPIC", "fields/+/readings"),
		MQTTClientID:  envOrDefault("MQTT_CLIENT_ID", "field-health"),
		MQTTUsername:  os.Getenv("MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("MQTT_PASSWORD"),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: envOrDefault("INFLUX_BUCKET", "field_readings"),

		IdentityURL:     strings.TrimRight(os.Getenv("IDENTITY_URL"), "/"),
		IdentityTimeout: identityTimeout,

		AlertCooldown:    alertCooldown,
		BaselineInterval: baselineInterval,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.IngestSource {
	case SourceKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaReadingsTopic == "" {
			return errors.New("KAFKA_READINGS_TOPIC is required")
		}
	case SourceMQTT:
		if c.MQTTBrokerURL == "" {
			return errors.New("MQTT_BROKER_URL is required")
		}
		if c.MQTTTopic == "" {
			return errors.New("MQTT_TOPIC is required")
		}
	default:
		return fmt.Errorf("invalid INGEST_SOURCE %q: must be %q or %q", c.IngestSource, SourceKafka, SourceMQTT)
	}

	if c.AlertSinkEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when ALERT_SINK_ENABLED is true")
		}
		if c.KafkaAlertsTopic == "" {
			return errors.New("KAFKA_ALERTS_TOPIC is required when ALERT_SINK_ENABLED is true")
		}
	}

	if c.HistoryEnabled() && (c.InfluxToken == "" || c.InfluxOrg == "") {
		return errors.New("INFLUX_URL is set but INFLUX_TOKEN or INFLUX_ORG is not")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := parseDuration(key, fallback)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseBatchSize() (int, error) {
	n, err := strconv.Atoi(envOrDefault("BATCH_SIZE", "50"))
	if err != nil || n < 1 || n > 1000 {
		return 0, errors.New("invalid BATCH_SIZE: must be between 1 and 1000")
	}
	return n, nil
}
