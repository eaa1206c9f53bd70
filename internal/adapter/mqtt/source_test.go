package mqtt

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
	id      uint16
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return subscribeQoS }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return m.id }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFieldIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"fields/A-1/readings", "A-1"},
		{"fields/north-12/readings", "north-12"},
		{"fields/A-1/alerts", ""},
		{"fields/readings", ""},
		{"devices/A-1/readings", ""},
		{"fields/A-1/readings/extra", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, fieldIDFromTopic(tt.topic))
		})
	}
}

func TestMapMessageToRawEvent(t *testing.T) {
	received := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	msg := fakeMessage{
		topic:   "fields/B-2/readings",
		payload: []byte(`{"metric":"moisture","value":41}`),
		id:      9,
	}

	raw := mapMessageToRawEvent(msg, received)

	assert.Equal(t, "B-2", raw.Headers[domain.HeaderFieldID])
	assert.Equal(t, "fields/B-2/readings", raw.Topic)
	assert.Equal(t, int64(9), raw.Offset)
	assert.Equal(t, received, raw.Timestamp)
	assert.Nil(t, raw.Commit)

	// The topic supplies the field id the payload omits.
	r, err := domain.ParseRawReading(raw)
	require.NoError(t, err)
	assert.Equal(t, "B-2", r.FieldID)
	assert.Equal(t, domain.MetricMoisture, r.Metric)
}

func TestSource_ExtractBatch_DrainsUpToBatchSize(t *testing.T) {
	s := newSource("fields/+/readings", 50*time.Millisecond, discardLogger())
	for i := range 5 {
		s.handle(nil, fakeMessage{topic: "fields/A-1/readings", payload: []byte(`{}`), id: uint16(i)})
	}

	batch, err := s.ExtractBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	batch, err = s.ExtractBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestSource_ExtractBatch_EmptyAfterFlushInterval(t *testing.T) {
	s := newSource("fields/+/readings", 20*time.Millisecond, discardLogger())

	batch, err := s.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestSource_ExtractBatch_ContextCancelled(t *testing.T) {
	s := newSource("fields/+/readings", time.Minute, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ExtractBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_Close_UnblocksHandler(t *testing.T) {
	s := newSource("fields/+/readings", time.Minute, discardLogger())
	for range bufferSize {
		s.handle(nil, fakeMessage{topic: "fields/A-1/readings"})
	}

	done := make(chan struct{})
	go func() {
		s.handle(nil, fakeMessage{topic: "fields/A-1/readings"})
		close(done)
	}()

	require.NoError(t, s.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler still blocked after Close")
	}
	require.NoError(t, s.Close())
}

func TestClientID_HasUniqueSuffix(t *testing.T) {
	a, b := clientID("field-health"), clientID("field-health")
	assert.True(t, strings.HasPrefix(a, "field-health-"))
	assert.Len(t, a, len("field-health-")+8)
	assert.NotEqual(t, a, b)
}
