package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/semnet/internal/concept"
)

// DefaultCapacity models the 7±2 span of short-term memory.
const DefaultCapacity = 7

// ErrInvalidCapacity is returned for a non-positive capacity.
var ErrInvalidCapacity = errors.New("working memory capacity must be positive")

// Entry is one slot of working memory.
type Entry struct {
	Concept    *concept.Concept
	Activation float64
	At         time.Time
	seq        uint64
}

// WorkingMemory is a fixed-capacity cache of recently activated concepts.
type WorkingMemory struct {
	capacity int
	entries  map[string]*Entry
	seq      uint64
	clock    concept.Clock
	mu       sync.Mutex
}

// NewWorkingMemory creates a working memory holding at most capacity concepts.
func NewWorkingMemory(capacity int, clock concept.Clock) (*WorkingMemory, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &WorkingMemory{
		capacity: capacity,
		entries:  make(map[string]*Entry, capacity),
		clock:    clock,
	}, nil
}

// Insert upserts c. Inserting a new id at capacity first evicts the entry
// with the lowest activation, oldest first on ties. It returns the evicted
// concept, if any.
func (w *WorkingMemory) Insert(c *concept.Concept, activation float64) *concept.Concept {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	now := w.clock()
	if e, ok := w.entries[c.ID]; ok {
		e.Concept = c
		e.Activation = activation
		e.At = now
		e.seq = w.seq
		return nil
	}

	var evicted *concept.Concept
	if len(w.entries) >= w.capacity {
		victim := w.weakest()
		evicted = victim.Concept
		delete(w.entries, victim.Concept.ID)
	}
	w.entries[c.ID] = &Entry{Concept: c, Activation: activation, At: now, seq: w.seq}
	return evicted
}

// weakest picks the eviction victim (caller must hold lock).
func (w *WorkingMemory) weakest() *Entry {
	var victim *Entry
	for _, e := range w.entries {
		if victim == nil || weaker(e, victim) {
			victim = e
		}
	}
	return victim
}

func weaker(a, b *Entry) bool {
	if a.Activation != b.Activation {
		return a.Activation < b.Activation
	}
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.seq < b.seq
}

// Snapshot returns the held concepts, most active first.
func (w *WorkingMemory) Snapshot() []*concept.Concept {
	entries := w.Entries()
	out := make([]*concept.Concept, len(entries))
	for i, e := range entries {
		out[i] = e.Concept
	}
	return out
}

// Entries returns copies of the held entries, most active first.
func (w *WorkingMemory) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Entry, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return weaker(&out[j], &out[i])
	})
	return out
}

// Contains reports whether id is held.
func (w *WorkingMemory) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[id]
	return ok
}

// Clear empties working memory.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = make(map[string]*Entry, w.capacity)
}

// Size returns the number of held concepts.
func (w *WorkingMemory) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Capacity returns the configured capacity.
func (w *WorkingMemory) Capacity() int { return w.capacity }
