package field

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Baseline holds the fleet snapshot that current summaries are compared
// against ("vs last week"). The snapshot rolls forward once it is older than
// the interval.
type Baseline struct {
	clock    clockwork.Clock
	interval time.Duration

	mu       sync.Mutex
	snapshot *FleetSummary
	takenAt  time.Time
}

// NewBaseline creates a Baseline rolling every interval. Pass a nil clock to
// use the real clock.
func NewBaseline(interval time.Duration, clock clockwork.Clock) *Baseline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Baseline{clock: clock, interval: interval}
}

// Previous returns the snapshot to diff against, or nil before the first
// observation.
func (b *Baseline) Previous() *FleetSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil
	}
	s := *b.snapshot
	return &s
}

// Observe offers the latest summary. It becomes the new snapshot when there
// is none yet or the current one has aged past the interval. A summary of an
// empty fleet is ignored. Deltas are not kept in the snapshot.
func (b *Baseline) Observe(current FleetSummary) {
	if current.FieldCount == 0 {
		return
	}
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot != nil && now.Sub(b.takenAt) < b.interval {
		return
	}
	current.Deltas = nil
	b.snapshot = &current
	b.takenAt = now
}

// Summarize computes the fleet summary against the current baseline and
// then offers the result to the baseline.
func (b *Baseline) Summarize(agg *Aggregator) FleetSummary {
	cur := agg.FleetSummary(b.Previous())
	b.Observe(cur)
	return cur
}
