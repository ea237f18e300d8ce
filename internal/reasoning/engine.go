package reasoning

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/semnet/internal/concept"
	"github.com/nidhogg/semnet/internal/memory"
	"github.com/nidhogg/semnet/internal/metrics"
	"github.com/nidhogg/semnet/internal/relation"
	"github.com/nidhogg/semnet/internal/snapshot"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned by NewEngine for unusable settings.
var ErrInvalidConfig = errors.New("invalid engine config")

// reverseFactor scales the strength of the mirrored edge.
const reverseFactor = 0.8

// Config controls engine construction.
type Config struct {
	WorkingMemoryCapacity int
	HistoryCapacity       int
	DecayRate             float64 // activation decay per second
	Clock                 concept.Clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkingMemoryCapacity: memory.DefaultCapacity,
		HistoryCapacity:       1000,
		DecayRate:             concept.DefaultDecayRate,
	}
}

// Engine owns a semantic network and reasons over it. All exported methods
// are serialized by a single lock.
type Engine struct {
	concepts  map[string]*concept.Concept
	order     []string
	registry  *relation.Registry
	memory    *memory.WorkingMemory
	history   *History
	clock     concept.Clock
	decayRate float64
	focus     string
	oracle    RelationOracle
	metrics   *metrics.Metrics
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewEngine creates an empty engine.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.HistoryCapacity <= 0 {
		return nil, fmt.Errorf("%w: history capacity %d", ErrInvalidConfig, cfg.HistoryCapacity)
	}
	if cfg.DecayRate < 0 {
		return nil, fmt.Errorf("%w: negative decay rate %v", ErrInvalidConfig, cfg.DecayRate)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	wm, err := memory.NewWorkingMemory(cfg.WorkingMemoryCapacity, cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		concepts:  make(map[string]*concept.Concept),
		registry:  relation.NewRegistry(),
		memory:    wm,
		history:   NewHistory(cfg.HistoryCapacity),
		clock:     cfg.Clock,
		decayRate: cfg.DecayRate,
		logger:    logger,
	}
	e.registry.SetMissHook(func(lookup, value string) {
		e.metrics.Noop("relation_"+lookup, "unregistered")
	})
	return e, nil
}

// SetMetrics attaches diagnostic counters.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// SetOracle attaches an advisory relation-type oracle used by auto-discovery.
func (e *Engine) SetOracle(o RelationOracle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oracle = o
}

// Registry returns the relation type registry.
func (e *Engine) Registry() *relation.Registry { return e.registry }

// AddConcept stores a new concept and returns it. Re-adding a known id keeps
// the existing concept with its edges and state, renames it and merges the
// new attributes over the old ones.
func (e *Engine) AddConcept(id, name string, attrs map[string]any) *concept.Concept {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.concepts[id]; ok {
		c.Name = name
		c.Merge(attrs)
		e.metrics.Noop("add_concept", "duplicate_id")
		e.logger.Warn("concept already exists, merged attributes",
			zap.String("id", id))
		return c
	}

	c := concept.New(id, name, attrs, e.clock)
	c.DecayRate = e.decayRate
	e.concepts[id] = c
	e.order = append(e.order, id)
	e.logger.Debug("concept added",
		zap.String("id", id),
		zap.String("name", name))
	return c
}

// AddRelationship links source to target and mirrors the link with the
// inverse relation at 0.8 of the clamped forward strength. Unknown ids are ignored. A zero
// strength means the default of 1.0.
func (e *Engine) AddRelationship(sourceID, relType, targetID string, strength float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addRelationship(sourceID, relType, targetID, strength)
}

func (e *Engine) addRelationship(sourceID, relType, targetID string, strength float64) bool {
	src, tgt, ok := e.pair("add_relationship", sourceID, targetID)
	if !ok {
		return false
	}
	if strength == 0 {
		strength = concept.DefaultStrength
	}
	relType = e.resolveRelation(relType)
	e.registry.Ensure(relType)

	fwd := src.AddEdge(relType, tgt, strength)
	inverse := e.registry.InverseOf(relType)
	tgt.AddEdge(inverse, src, fwd.Strength*reverseFactor)

	e.logger.Debug("relationship added",
		zap.String("source", sourceID),
		zap.String("type", relType),
		zap.String("target", targetID),
		zap.Float64("strength", strength))
	return true
}

// Concept returns the concept stored under id. The returned value is shared
// with the engine; callers running alongside other goroutines should prefer
// Describe.
func (e *Engine) Concept(id string) (*concept.Concept, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.concepts[id]
	return c, ok
}

// Concepts returns all concepts in insertion order.
func (e *Engine) Concepts() []*concept.Concept {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ordered()
}

// Len returns the number of concepts.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// MemoryItem is a copy of one working memory slot.
type MemoryItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Activation float64   `json:"activation"`
	At         time.Time `json:"at"`
}

// WorkingMemory returns the working memory contents, most active first.
func (e *Engine) WorkingMemory() []MemoryItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.memory.Entries()
	out := make([]MemoryItem, len(entries))
	for i, en := range entries {
		out[i] = MemoryItem{
			ID:         en.Concept.ID,
			Name:       en.Concept.Name,
			Activation: en.Activation,
			At:         en.At,
		}
	}
	return out
}

// ClearWorkingMemory empties working memory.
func (e *Engine) ClearWorkingMemory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory.Clear()
}

// History returns the retained history records, oldest first.
func (e *Engine) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Records()
}

// DrainHistory removes and returns the retained history records.
func (e *Engine) DrainHistory() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Drain()
}

// ExportSnapshot returns a read-only projection of the network.
func (e *Engine) ExportSnapshot() snapshot.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.Build(e.ordered(), e.registry)
}

func (e *Engine) ordered() []*concept.Concept {
	out := make([]*concept.Concept, len(e.order))
	for i, id := range e.order {
		out[i] = e.concepts[id]
	}
	return out
}

// pair looks up both endpoints of an operation, counting a no-op on a miss.
func (e *Engine) pair(op, sourceID, targetID string) (*concept.Concept, *concept.Concept, bool) {
	src, okSrc := e.concepts[sourceID]
	tgt, okTgt := e.concepts[targetID]
	if !okSrc || !okTgt {
		e.metrics.Noop(op, "unknown_concept")
		e.logger.Debug("ignored request for unknown concept",
			zap.String("operation", op),
			zap.String("source", sourceID),
			zap.String("target", targetID))
		return nil, nil, false
	}
	return src, tgt, true
}

// resolveRelation accepts either a relation id or its display label.
func (e *Engine) resolveRelation(s string) string {
	if e.registry.Has(s) {
		return s
	}
	return e.registry.IDOf(s)
}

func (e *Engine) record(kind EventKind, detail map[string]any) {
	if e.history.Append(Record{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     e.clock(),
		Detail: detail,
	}) {
		e.metrics.Dropped(1)
	}
}
