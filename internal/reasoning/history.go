package reasoning

import "time"

// EventKind identifies what produced a history record.
type EventKind string

const (
	EventSpread    EventKind = "spread"
	EventInference EventKind = "inference"
	EventDecision  EventKind = "decision"
	EventLearning  EventKind = "learning"
	EventDiscovery EventKind = "discovery"
	EventThought   EventKind = "thought"
)

// Record is one entry of the thinking history.
type Record struct {
	ID     string         `json:"id"`
	Kind   EventKind      `json:"kind"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail"`
}

// History is a fixed-size ring of records. When full, the oldest record is
// overwritten. Not safe for concurrent use; the engine guards it.
type History struct {
	buf     []Record
	start   int
	size    int
	dropped int
}

// NewHistory allocates a ring holding capacity records.
func NewHistory(capacity int) *History {
	return &History{buf: make([]Record, capacity)}
}

// Append adds r and reports whether an older record was overwritten.
func (h *History) Append(r Record) bool {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = r
		h.size++
		return false
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
	h.dropped++
	return true
}

// Records returns the held records, oldest first.
func (h *History) Records() []Record {
	out := make([]Record, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Drain returns the held records and empties the ring.
func (h *History) Drain() []Record {
	out := h.Records()
	for i := range h.buf {
		h.buf[i] = Record{}
	}
	h.start, h.size = 0, 0
	return out
}

// Len returns the number of held records.
func (h *History) Len() int { return h.size }

// Dropped returns how many records were overwritten since creation.
func (h *History) Dropped() int { return h.dropped }
