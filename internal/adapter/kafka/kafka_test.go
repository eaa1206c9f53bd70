package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("A-1"),
		Value:     []byte(`{"field_id":"A-1","metric":"ph","value":6.8}`),
		Topic:     "field-readings",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "field_id", Value: []byte("A-1")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("A-1"), raw.Key)
	assert.JSONEq(t, `{"field_id":"A-1","metric":"ph","value":6.8}`, string(raw.Value))
	assert.Equal(t, "field-readings", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "A-1", raw.Headers[domain.HeaderFieldID])
	assert.Nil(t, raw.Commit)
}

func TestMapMessageToRawEvent_NoHeaders(t *testing.T) {
	raw := mapMessageToRawEvent(kafkago.Message{Value: []byte(`{}`)})
	assert.NotNil(t, raw.Headers)
	assert.Empty(t, raw.Headers)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := domain.Alert{
		ID:        7,
		Kind:      domain.KindCritical,
		Severity:  domain.SeverityHigh,
		Message:   "Drought risk: soil moisture 22.0% in field A-3",
		Location:  "A-3",
		CreatedAt: now,
	}

	msg, err := serializeToMessage(a)
	require.NoError(t, err)

	assert.Equal(t, []byte("A-3"), msg.Key)
	assert.Equal(t, now, msg.Time)
	assert.Contains(t, string(msg.Value), `"kind":"critical"`)
	assert.Contains(t, string(msg.Value), `"id":7`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "alert_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("7"), msg.Headers[0].Value)
	assert.Equal(t, "kind", msg.Headers[1].Key)
	assert.Equal(t, []byte("critical"), msg.Headers[1].Value)
	assert.Equal(t, "severity", msg.Headers[2].Key)
	assert.Equal(t, []byte("high"), msg.Headers[2].Value)
}
