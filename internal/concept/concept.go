package concept

import (
	"math"
	"time"
)

// Kind classifies a concept.
type Kind string

const (
	KindCommon   Kind = "common"
	KindAbstract Kind = "abstract"
	KindConcrete Kind = "concrete"
	KindEmotion  Kind = "emotion"
)

const (
	// DefaultDecayRate is per second: 0.1s of idle time costs ~10% activation.
	DefaultDecayRate = 1.0536051565782630 // -ln(0.9) / 0.1

	DefaultCategory    = "general"
	DefaultStrength    = 1.0
	DefaultThreshold   = 0.3
	MinWeight          = 0.5
	MinStrength        = 0.1
	MaxStrength        = 2.0
	FrequencyIncrement = 0.1

	retention      = 0.9
	activationSnap = 0.01
)

// Clock returns the current time. Tests inject a controllable one.
type Clock func() time.Time

// Edge is one outgoing relationship record.
type Edge struct {
	Target              *Concept
	Strength            float64
	ActivationThreshold float64
	LastUsedAt          time.Time
}

type edgeSet struct {
	order []*Edge
	index map[*Concept]*Edge
}

// Concept is a node in the semantic network.
type Concept struct {
	ID         string
	Name       string
	Attributes map[string]any

	Activation      float64
	Weight          float64
	Kind            Kind
	Category        string
	Frequency       float64
	LastActivatedAt time.Time
	DecayRate       float64

	relTypes []string
	edges    map[string]*edgeSet
	clock    Clock
}

// New builds a concept with default reserved fields.
// A nil clock falls back to time.Now.
func New(id, name string, attrs map[string]any, clock Clock) *Concept {
	if clock == nil {
		clock = time.Now
	}
	c := &Concept{
		ID:              id,
		Name:            name,
		Attributes:      make(map[string]any, len(attrs)),
		Weight:          1.0,
		Kind:            KindCommon,
		Category:        DefaultCategory,
		Frequency:       1.0,
		LastActivatedAt: clock(),
		DecayRate:       DefaultDecayRate,
		edges:           make(map[string]*edgeSet),
		clock:           clock,
	}
	c.Merge(attrs)
	return c
}

// Merge copies domain attributes onto the concept. Reserved keys are not
// stored as attributes: "type" and "category" string values set the
// corresponding fields, the numeric reserved keys are ignored.
func (c *Concept) Merge(attrs map[string]any) {
	for k, v := range attrs {
		switch k {
		case "type":
			if s, ok := v.(string); ok && validKind(Kind(s)) {
				c.Kind = Kind(s)
			}
		case "category":
			if s, ok := v.(string); ok && s != "" {
				c.Category = s
			}
		case "activation", "weight", "frequency":
		default:
			c.Attributes[k] = v
		}
	}
}

func validKind(k Kind) bool {
	switch k {
	case KindCommon, KindAbstract, KindConcrete, KindEmotion:
		return true
	}
	return false
}

func (c *Concept) decayed(now time.Time) float64 {
	dt := now.Sub(c.LastActivatedAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	return c.Activation * math.Exp(-dt*c.DecayRate)
}

// Activate decays the current activation, adds level scaled by weight and
// returns the clamped result.
func (c *Concept) Activate(level float64) float64 {
	now := c.clock()
	c.Activation = clamp(c.decayed(now)+level*c.Weight, 0, 1)
	c.LastActivatedAt = now
	c.Frequency += FrequencyIncrement
	return c.Activation
}

// CurrentActivation returns the decayed activation without mutating state.
func (c *Concept) CurrentActivation() float64 {
	return clamp(c.decayed(c.clock()), 0, 1)
}

// DecayPassive applies one step of idle decay.
func (c *Concept) DecayPassive() {
	c.Activation *= retention
	if c.Activation < activationSnap {
		c.Activation = 0
	}
}

// AdjustWeight shifts the weight by delta, never below MinWeight.
func (c *Concept) AdjustWeight(delta float64) {
	c.Weight = math.Max(MinWeight, c.Weight+delta)
}

// AddEdge inserts or overwrites the edge (relType, target).
func (c *Concept) AddEdge(relType string, target *Concept, strength float64) *Edge {
	set, ok := c.edges[relType]
	if !ok {
		set = &edgeSet{index: make(map[*Concept]*Edge)}
		c.edges[relType] = set
		c.relTypes = append(c.relTypes, relType)
	}
	e := &Edge{
		Target:              target,
		Strength:            ClampStrength(strength),
		ActivationThreshold: DefaultThreshold,
		LastUsedAt:          c.clock(),
	}
	if old, ok := set.index[target]; ok {
		*old = *e
		return old
	}
	set.index[target] = e
	set.order = append(set.order, e)
	return e
}

// Edge returns the edge (relType, target) if present.
func (c *Concept) Edge(relType string, target *Concept) (*Edge, bool) {
	set, ok := c.edges[relType]
	if !ok {
		return nil, false
	}
	e, ok := set.index[target]
	return e, ok
}

// EdgesOf returns the edges of one relation type in insertion order.
// Unknown types yield an empty slice.
func (c *Concept) EdgesOf(relType string) []*Edge {
	set, ok := c.edges[relType]
	if !ok {
		return []*Edge{}
	}
	out := make([]*Edge, len(set.order))
	copy(out, set.order)
	return out
}

// Relationships returns every relation type's edges.
func (c *Concept) Relationships() map[string][]*Edge {
	out := make(map[string][]*Edge, len(c.relTypes))
	for _, rt := range c.relTypes {
		out[rt] = c.EdgesOf(rt)
	}
	return out
}

// RelationTypes lists relation types with at least one edge, in first-use order.
func (c *Concept) RelationTypes() []string {
	out := make([]string, len(c.relTypes))
	copy(out, c.relTypes)
	return out
}

// LinkedTo reports whether any edge points at target.
func (c *Concept) LinkedTo(target *Concept) bool {
	for _, rt := range c.relTypes {
		if _, ok := c.edges[rt].index[target]; ok {
			return true
		}
	}
	return false
}

// ForEachEdge visits edges grouped by relation type, in insertion order.
func (c *Concept) ForEachEdge(fn func(relType string, e *Edge)) {
	for _, rt := range c.relTypes {
		for _, e := range c.edges[rt].order {
			fn(rt, e)
		}
	}
}

// ClampStrength bounds an edge strength to [MinStrength, MaxStrength].
func ClampStrength(s float64) float64 {
	return clamp(s, MinStrength, MaxStrength)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
