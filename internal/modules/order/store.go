// README: In-memory order lifecycle store (available / active / history collections).
package order

import (
	"sync"

	"milkrun/internal/types"
)

// CollectionKey names one of the three disjoint order collections.
type CollectionKey string

const (
	CollectionAvailable CollectionKey = "available"
	CollectionActive    CollectionKey = "active"
	CollectionHistory   CollectionKey = "history"
)

type CollectionState struct {
	Loading bool
	Err     error
}

// Store holds the client-side authoritative copy of the partner's orders.
// An order lives in exactly one collection at a time; every mutation keeps
// that invariant. Mutations are total: unknown ids are ignored, duplicates
// are absorbed, nothing ever panics. Late and repeated events are expected
// under at-least-once delivery from the channel.
type Store struct {
	mu        sync.RWMutex
	available []Order
	active    []Order
	history   []Order
	state     map[CollectionKey]CollectionState
}

func NewStore() *Store {
	return &Store{state: make(map[CollectionKey]CollectionState)}
}

// BeginFetch flags a collection as loading.
func (s *Store) BeginFetch(key CollectionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = CollectionState{Loading: true}
}

// EndFetch lands a fetch result: on success the collection is replaced
// wholesale with the server snapshot, on failure the previous contents are
// kept and the error recorded.
func (s *Store) EndFetch(key CollectionKey, orders []Order, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = CollectionState{Err: err}
	if err != nil {
		return
	}
	snap := make([]Order, len(orders))
	copy(snap, orders)
	switch key {
	case CollectionAvailable:
		s.available = snap
	case CollectionActive:
		s.active = snap
	case CollectionHistory:
		s.history = snap
	}
}

func (s *Store) State(key CollectionKey) CollectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key]
}

// AddAvailable prepends a newly announced order. Upsert by id: a repeated
// announcement replaces the existing entry in place instead of duplicating it.
func (s *Store) AddAvailable(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.available {
		if s.available[i].ID == o.ID {
			s.available[i] = o
			return
		}
	}
	s.available = append([]Order{o}, s.available...)
}

// RemoveAvailable drops an order from the available pool. Unknown ids are a
// no-op; the event may refer to an order this client never saw.
func (s *Store) RemoveAvailable(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.available {
		if s.available[i].ID == id {
			s.available = append(s.available[:i], s.available[i+1:]...)
			return
		}
	}
}

// UpsertActive is the single merge point for active-order updates, applied
// identically whether the update came from a REST response or a push event.
// Replace by id if present, else prepend. An update carrying an UpdatedAt
// strictly older than the held one is discarded as stale; if either side has
// no timestamp, arrival order wins.
func (s *Store) UpsertActive(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// An accepted order can no longer sit in the available pool.
	for i := range s.available {
		if s.available[i].ID == o.ID {
			s.available = append(s.available[:i], s.available[i+1:]...)
			break
		}
	}
	for i := range s.active {
		if s.active[i].ID == o.ID {
			held := s.active[i]
			if !held.UpdatedAt.IsZero() && !o.UpdatedAt.IsZero() && o.UpdatedAt.Before(held.UpdatedAt) {
				return
			}
			s.active[i] = o
			return
		}
	}
	s.active = append([]Order{o}, s.active...)
}

// MoveToHistory retires an active order into history with a terminal status.
// No-op if the id is not currently active, which absorbs duplicate or late
// completion events.
func (s *Store) MoveToHistory(id types.ID, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.active {
		if s.active[i].ID != id {
			continue
		}
		o := s.active[i]
		if !Terminal(status) {
			status = StatusDelivered
		}
		o.Status = status
		s.active = append(s.active[:i], s.active[i+1:]...)
		s.history = append([]Order{o}, s.history...)
		return
	}
}

func (s *Store) Available() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.available)
}

func (s *Store) Active() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.active)
}

func (s *Store) History() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.history)
}

// ActiveByID returns the active order with the given id, if any.
func (s *Store) AvailableByID(id types.ID) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.available {
		if s.available[i].ID == id {
			return s.available[i], true
		}
	}
	return Order{}, false
}

func (s *Store) ActiveByID(id types.ID) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.active {
		if s.active[i].ID == id {
			return s.active[i], true
		}
	}
	return Order{}, false
}

func snapshot(src []Order) []Order {
	out := make([]Order, len(src))
	copy(out, src)
	return out
}
