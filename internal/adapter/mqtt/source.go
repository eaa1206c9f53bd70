package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/field-health-service/internal/config"
	"github.com/couchcryptid/field-health-service/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	subscribeQoS    = 1
	bufferSize      = 1024
	connectTimeout  = 5 * time.Second
	disconnectQuiet = 250 // milliseconds
	maxConnectTries = 5
)

var errClosed = errors.New("mqtt source closed")

// Source receives sensor readings published by field devices.
// It implements pipeline.BatchExtractor.
//
// MQTT has no consumer offsets, so the emitted events carry no Commit
// callback.
type Source struct {
	brokerURL     string
	topic         string
	clientID      string
	username      string
	password      string
	flushInterval time.Duration
	logger        *slog.Logger

	client    paho.Client
	messages  chan domain.RawEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewSource creates an unconnected Source. Call Connect before extracting.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	return newSource(cfg.MQTTTopic, cfg.BatchFlushInterval, logger,
		func(s *Source) {
			s.brokerURL = cfg.MQTTBrokerURL
			s.clientID = clientID(cfg.MQTTClientID)
			s.username = cfg.MQTTUsername
			s.password = cfg.MQTTPassword
		})
}

func newSource(topic string, flushInterval time.Duration, logger *slog.Logger, opts ...func(*Source)) *Source {
	s := &Source{
		topic:         topic,
		flushInterval: flushInterval,
		logger:        logger,
		messages:      make(chan domain.RawEvent, bufferSize),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the broker, retrying with exponential backoff. The topic is
// (re)subscribed on every successful connection.
func (s *Source) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(s.brokerURL).
		SetClientID(s.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.logger.Warn("mqtt connection lost", "error", err)
		})
	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxConnectTries-1),
		ctx,
	)
	err := backoff.Retry(func() error {
		client := paho.NewClient(opts)
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			s.logger.Warn("mqtt connect failed", "broker", s.brokerURL, "error", token.Error())
			return token.Error()
		}
		s.client = client
		return nil
	}, bo)
	if err != nil {
		return fmt.Errorf("connect mqtt broker %s: %w", s.brokerURL, err)
	}

	s.logger.Info("mqtt connected", "broker", s.brokerURL, "client_id", s.clientID)
	return nil
}

func (s *Source) subscribe(client paho.Client) {
	token := client.Subscribe(s.topic, subscribeQoS, s.handle)
	if token.Wait() && token.Error() != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", token.Error())
		return
	}
	s.logger.Info("mqtt subscribed", "topic", s.topic)
}

// handle runs on the paho router goroutine. It blocks while the buffer is
// full so that a slow pipeline applies backpressure to the broker.
func (s *Source) handle(_ paho.Client, msg paho.Message) {
	raw := mapMessageToRawEvent(msg, time.Now())
	select {
	case s.messages <- raw:
	case <-s.done:
	}
}

// ExtractBatch waits up to the flush interval for messages and returns at
// most batchSize of them.
func (s *Source) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	batch := make([]domain.RawEvent, 0, batchSize)
	for len(batch) < batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return batch, errClosed
		case <-timer.C:
			return batch, nil
		case raw := <-s.messages:
			batch = append(batch, raw)
		}
	}
	return batch, nil
}

// Close unsubscribes and disconnects. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.client != nil && s.client.IsConnected() {
			s.client.Unsubscribe(s.topic).WaitTimeout(connectTimeout)
			s.client.Disconnect(disconnectQuiet)
		}
	})
	return nil
}

func mapMessageToRawEvent(msg paho.Message, received time.Time) domain.RawEvent {
	headers := map[string]string{}
	if id := fieldIDFromTopic(msg.Topic()); id != "" {
		headers[domain.HeaderFieldID] = id
	}
	return domain.RawEvent{
		Value:     msg.Payload(),
		Headers:   headers,
		Topic:     msg.Topic(),
		Offset:    int64(msg.MessageID()),
		Timestamp: received,
	}
}

// fieldIDFromTopic extracts <id> from topics shaped fields/<id>/readings.
func fieldIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "fields" || parts[2] != "readings" {
		return ""
	}
	return parts[1]
}

func clientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}
