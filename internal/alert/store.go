// Package alert holds the live alert feed and the evaluator that feeds it
// from incoming readings.
package alert

import (
	"iter"
	"slices"
	"sync"

	"github.com/couchcryptid/field-health-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Store is the ordered set of active alerts, most recent first. Ids come from
// a monotonic counter and are never reused, even after dismissal.
type Store struct {
	clock clockwork.Clock

	mu     sync.Mutex
	nextID int64
	alerts []domain.Alert // ascending id; the feed is read back to front
}

// NewStore creates an empty store. Pass nil to use the real clock.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock}
}

// Raise records a new alert at the head of the feed.
func (s *Store) Raise(kind domain.AlertKind, message, location string) domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raiseLocked(kind, message, location)
}

// Replace drops the alert with id prev, if it is still active, and records a
// new alert at the head of the feed in one step.
func (s *Store) Replace(prev int64, kind domain.AlertKind, message, location string) domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index(prev); ok {
		s.alerts = slices.Delete(s.alerts, i, i+1)
	}
	return s.raiseLocked(kind, message, location)
}

func (s *Store) raiseLocked(kind domain.AlertKind, message, location string) domain.Alert {
	s.nextID++
	a := domain.Alert{
		ID:        s.nextID,
		Kind:      kind,
		Severity:  domain.ClassifySeverity(kind),
		Message:   message,
		Location:  location,
		CreatedAt: s.clock.Now(),
	}
	s.alerts = append(s.alerts, a)
	return a
}

// Dismiss removes the alert with the given id. It reports whether an alert
// was removed; unknown ids are a no-op.
func (s *Store) Dismiss(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return false
	}
	s.alerts = slices.Delete(s.alerts, i, i+1)
	return true
}

// Get returns the active alert with the given id.
func (s *Store) Get(id int64) (domain.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return domain.Alert{}, false
	}
	return s.alerts[i], true
}

// Count returns the number of active alerts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// List returns a view of the feed, most recent first, with at most limit
// alerts (all when limit <= 0). The view is evaluated each time it is ranged
// over, so it reflects the feed as of the start of that iteration.
func (s *Store) List(limit int) iter.Seq[domain.Alert] {
	return func(yield func(domain.Alert) bool) {
		for _, a := range s.Snapshot(limit) {
			if !yield(a) {
				return
			}
		}
	}
}

// Snapshot copies up to limit alerts, most recent first.
func (s *Store) Snapshot(limit int) []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Alert, 0, n)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.alerts[i])
	}
	return out
}

// index finds id by binary search; alerts are kept in ascending id order.
func (s *Store) index(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.alerts, id, func(a domain.Alert, id int64) int {
		switch {
		case a.ID < id:
			return -1
		case a.ID > id:
			return 1
		default:
			return 0
		}
	})
}
