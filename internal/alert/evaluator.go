package alert

import (
	"sync"
	"time"

	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Evaluator turns readings into alerts. A rule that fires again for the same
// field within the cooldown is suppressed; once the cooldown has passed the
// repeat replaces the earlier alert instead of stacking beside it.
type Evaluator struct {
	store    *Store
	clock    clockwork.Clock
	cooldown time.Duration

	mu     sync.Mutex
	raised map[string]lastRaise // field|rule
}

type lastRaise struct {
	at time.Time
	id int64
}

// purgeAbove bounds the raise history before entries are swept.
const purgeAbove = 1024

// NewEvaluator creates an Evaluator raising into store. A cooldown of zero
// disables suppression. Pass a nil clock to use the real clock.
func NewEvaluator(store *Store, cooldown time.Duration, clock clockwork.Clock) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Evaluator{
		store:    store,
		clock:    clock,
		cooldown: cooldown,
		raised:   make(map[string]lastRaise),
	}
}

// Evaluate checks r against the threshold rules and returns the alerts it
// raised.
func (e *Evaluator) Evaluate(r domain.Reading) []domain.Alert {
	candidates := domain.EvaluateReading(r)
	if len(candidates) == 0 {
		return nil
	}

	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.Alert
	for _, c := range candidates {
		key := r.FieldID + "|" + c.Rule
		prev, seen := e.raised[key]
		if seen && e.cooldown > 0 && now.Sub(prev.at) < e.cooldown {
			continue
		}

		var a domain.Alert
		if seen {
			a = e.store.Replace(prev.id, c.Kind, c.Message, c.Location)
		} else {
			a = e.store.Raise(c.Kind, c.Message, c.Location)
		}
		e.raised[key] = lastRaise{at: now, id: a.ID}
		out = append(out, a)
	}

	if len(e.raised) > purgeAbove {
		e.sweep(now)
	}
	return out
}

// sweep forgets rules whose alert is gone and whose cooldown has passed.
// Entries behind an active alert stay so a repeat can still replace it.
func (e *Evaluator) sweep(now time.Time) {
	for k, lr := range e.raised {
		if now.Sub(lr.at) < e.cooldown {
			continue
		}
		if _, ok := e.store.Get(lr.id); !ok {
			delete(e.raised, k)
		}
	}
}
