package kb

import (
	"sync"

	"github.com/signalsfoundry/firesat/model"
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventGroundAdded EventType = iota
	EventGroundUpdated
	EventGroundsReset
)

// Event is emitted to subscribers when the ground table changes.
type Event struct {
	Type   EventType
	Ground model.GroundStation
	Count  int
}

// GroundRegistry is the ordered table of ground stations the constellation
// reports to. Rows are keyed by ground id: updates replace a row in place
// and new ids are appended, so table order is first-seen order.
type GroundRegistry struct {
	mu sync.RWMutex

	rows  []model.GroundStation
	index map[int]int

	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewGroundRegistry constructs an empty registry.
func NewGroundRegistry() *GroundRegistry {
	return &GroundRegistry{index: make(map[int]int)}
}

// Upsert inserts or replaces the station with g.ID. It reports whether the
// station was new.
func (r *GroundRegistry) Upsert(g model.GroundStation) (added bool) {
	r.mu.Lock()
	event := Event{Ground: g}
	if i, ok := r.index[g.ID]; ok {
		r.rows[i] = g
		event.Type = EventGroundUpdated
	} else {
		r.index[g.ID] = len(r.rows)
		r.rows = append(r.rows, g)
		event.Type = EventGroundAdded
		added = true
	}
	event.Count = len(r.rows)
	subs := append([]subscriber(nil), r.subs...)
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub.fn(event)
	}
	return added
}

// Get returns the station with the given id.
func (r *GroundRegistry) Get(id int) (model.GroundStation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return model.GroundStation{}, false
	}
	return r.rows[i], true
}

// List returns a snapshot of the table in insertion order.
func (r *GroundRegistry) List() []model.GroundStation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.GroundStation(nil), r.rows...)
}

// Len returns the number of known stations.
func (r *GroundRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// Reset empties the table.
func (r *GroundRegistry) Reset() {
	r.mu.Lock()
	r.rows = nil
	r.index = make(map[int]int)
	subs := append([]subscriber(nil), r.subs...)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.fn(Event{Type: EventGroundsReset})
	}
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function that removes exactly this callback; calling it more
// than once is a no-op.
func (r *GroundRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.subs {
			if sub.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}
