package domain

import (
	"context"
	"time"
)

// RawEvent is an unprocessed message from a reading source.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Alert is one entry in the live alert feed.
type Alert struct {
	ID        int64     `json:"id"`
	Kind      AlertKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// Sample is one point of a metric time series.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
