// README: In-memory store for subscription deliveries and assignment summaries.
package subscription

import (
	"sync"
	"time"

	"milkrun/internal/types"
)

// Store holds every known delivery occurrence in a single list; the
// today/upcoming partition is recomputed from dates on read, never stored.
// Mutations are total, duplicates and unknown keys are absorbed.
type Store struct {
	mu         sync.RWMutex
	deliveries []Delivery
	assigned   []PartnerSubscription
	loading    bool
	err        error

	now func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewStoreAt pins the store's clock; used by tests.
func NewStoreAt(now func() time.Time) *Store {
	return &Store{now: now}
}

func (s *Store) BeginFetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.err = nil
}

// EndFetch replaces all deliveries with the server snapshot on success.
func (s *Store) EndFetch(ds []Delivery, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err != nil {
		return
	}
	snap := make([]Delivery, len(ds))
	copy(snap, ds)
	s.deliveries = snap
}

func (s *Store) FetchState() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading, s.err
}

// ReplaceAssigned lands a wholesale refresh of the assignment summaries.
func (s *Store) ReplaceAssigned(subs []PartnerSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([]PartnerSubscription, len(subs))
	copy(snap, subs)
	s.assigned = snap
}

// Upsert merges a delivery by its (subscriptionID, date) key: replace if
// present, else prepend. A stale update (older UpdatedAt on both sides) is
// discarded; otherwise arrival order wins.
func (s *Store) Upsert(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.deliveries {
		if sameOccurrence(s.deliveries[i], d) {
			held := s.deliveries[i]
			if !held.UpdatedAt.IsZero() && !d.UpdatedAt.IsZero() && d.UpdatedAt.Before(held.UpdatedAt) {
				return
			}
			s.deliveries[i] = d
			return
		}
	}
	s.deliveries = append([]Delivery{d}, s.deliveries...)
}

// Get returns the delivery for a (subscriptionID, date) key.
func (s *Store) Get(subscriptionID types.ID, date string) (Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.deliveries {
		if s.deliveries[i].SubscriptionID == subscriptionID && s.deliveries[i].Date == date {
			return s.deliveries[i], true
		}
	}
	return Delivery{}, false
}

// ByID returns the delivery with the given occurrence id.
func (s *Store) ByID(id types.ID) (Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.deliveries {
		if s.deliveries[i].ID == id {
			return s.deliveries[i], true
		}
	}
	return Delivery{}, false
}

// Today returns deliveries dated today or earlier, local time.
func (s *Store) Today() []Delivery {
	return s.partition(true)
}

// Upcoming returns deliveries dated strictly after today, local time.
func (s *Store) Upcoming() []Delivery {
	return s.partition(false)
}

func (s *Store) partition(today bool) []Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := s.now().Format(DateLayout)
	var out []Delivery
	for _, d := range s.deliveries {
		if (d.Date <= day) == today {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Assigned() []PartnerSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PartnerSubscription, len(s.assigned))
	copy(out, s.assigned)
	return out
}

func sameOccurrence(a, b Delivery) bool {
	return a.SubscriptionID == b.SubscriptionID && a.Date == b.Date
}
