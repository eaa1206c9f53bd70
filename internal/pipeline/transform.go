package pipeline

import (
	"context"

	"github.com/couchcryptid/field-health-service/internal/domain"
)

// ReadingTransformer implements Transformer using domain.ParseRawReading.
type ReadingTransformer struct{}

// NewTransformer creates a ReadingTransformer.
func NewTransformer() *ReadingTransformer {
	return &ReadingTransformer{}
}

func (t *ReadingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Reading, error) {
	return domain.ParseRawReading(raw)
}
