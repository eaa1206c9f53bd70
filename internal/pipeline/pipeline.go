package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/couchcryptid/field-health-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// BatchExtractor reads up to batchSize raw messages from a reading source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw message into a validated reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Reading, error)
}

// BatchLoader applies a batch of readings.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.Reading) error
}

const (
	retryInitial = 200 * time.Millisecond
	retryMax     = 5 * time.Second
)

// Pipeline pulls readings from a source in batches and hands the valid ones
// to the loader. A message is committed once it is either rejected or
// loaded; a failed load leaves the whole batch uncommitted for redelivery.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int

	clock clockwork.Clock
	retry *backoff.ExponentialBackOff
	ready atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for retry delays and batch timing.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// New creates a Pipeline over the given stages.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retry = newRetryPolicy(p.clock)
	return p
}

// newRetryPolicy doubles the delay from retryInitial up to retryMax and
// never gives up.
func newRetryPolicy(clock clockwork.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxInterval = retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Clock = clock
	b.Reset()
	return b
}

// CheckReadiness returns nil once the source has answered at least one
// extract call without error.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("reading source has not been polled successfully yet")
	}
	return nil
}

// Run processes batches until ctx is cancelled. Extract and load failures
// are retried after a growing delay; cancellation is not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for ctx.Err() == nil {
		if err := p.step(ctx); err != nil && ctx.Err() == nil {
			p.pause(ctx)
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// step handles one batch.
func (p *Pipeline) step(ctx context.Context) error {
	start := p.clock.Now()

	raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("extract batch failed", "error", err)
		}
		return fmt.Errorf("extract: %w", err)
	}
	p.ready.Store(true)
	if len(raws) == 0 {
		return nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))
	p.retry.Reset()

	readings, held := p.split(ctx, raws)
	if len(readings) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, readings); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(readings))
		return fmt.Errorf("load: %w", err)
	}
	for _, raw := range held {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(p.clock.Since(start).Seconds())
	return nil
}

// split transforms raws into readings. Messages that fail to transform are
// committed on the spot; the rest are returned in held, parallel to
// readings, to be committed after a successful load.
func (p *Pipeline) split(ctx context.Context, raws []domain.RawEvent) (readings []domain.Reading, held []domain.RawEvent) {
	readings = make([]domain.Reading, 0, len(raws))
	held = make([]domain.RawEvent, 0, len(raws))

	for _, raw := range raws {
		r, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("rejected reading",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ReadingsRejected.Inc()
			p.commit(ctx, raw)
			continue
		}
		readings = append(readings, r)
		held = append(held, raw)
	}
	return readings, held
}

// pause waits out the next retry delay or until ctx is done.
func (p *Pipeline) pause(ctx context.Context) {
	d := p.retry.NextBackOff()
	p.logger.Debug("retrying", "delay", d)

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.Chan():
	}
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
