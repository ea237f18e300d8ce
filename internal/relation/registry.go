package relation

import (
	"strings"
	"sync"
)

// Canonical relation identifiers.
const (
	IsA        = "is-a"
	HasSubtype = "has-subtype"
	HasA       = "has-a"
	PartOf     = "part-of"
	Causes     = "causes"
	CausedBy   = "caused-by"
	Needs      = "needs"
	NeededBy   = "needed-by"
	SimilarTo  = "similar-to"
	OppositeTo = "opposite-to"
	RelatedTo  = "related-to"
)

// inverses is the fixed inverse table. Anything missing maps to RelatedTo.
var inverses = map[string]string{
	IsA:        HasSubtype,
	HasSubtype: IsA,
	HasA:       PartOf,
	PartOf:     HasA,
	Causes:     CausedBy,
	CausedBy:   Causes,
	Needs:      NeededBy,
	NeededBy:   Needs,
	SimilarTo:  SimilarTo,
	OppositeTo: OppositeTo,
}

// Type describes a registered relation.
type Type struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// MissFunc is called when a lookup falls through to pass-through.
type MissFunc func(lookup, value string)

// Registry maps relation ids to display labels and back.
type Registry struct {
	types   map[string]Type
	byLabel map[string]string
	order   []string
	onMiss  MissFunc
	mu      sync.RWMutex
}

// NewRegistry returns a registry seeded with the forward relation types.
func NewRegistry() *Registry {
	r := &Registry{
		types:   make(map[string]Type),
		byLabel: make(map[string]string),
	}
	r.Register(IsA, "is a", "subtype or instance of")
	r.Register(HasA, "has a", "owns or contains")
	r.Register(Causes, "causes", "brings about")
	r.Register(Needs, "needs", "depends on")
	r.Register(SimilarTo, "similar to", "shares traits with")
	r.Register(OppositeTo, "opposite to", "contrasts with")
	r.Register(RelatedTo, "related to", "loosely associated with")
	return r
}

// SetMissHook installs a callback for pass-through lookups.
func (r *Registry) SetMissHook(fn MissFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMiss = fn
}

// Register inserts or overwrites a relation type. Last write wins.
func (r *Registry) Register(id, label, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(id, label, description)
}

func (r *Registry) register(id, label, description string) {
	if old, ok := r.types[id]; ok {
		if r.byLabel[old.Label] == id {
			delete(r.byLabel, old.Label)
		}
	} else {
		r.order = append(r.order, id)
	}
	r.types[id] = Type{ID: id, Label: label, Description: description}
	r.byLabel[label] = id
}

// Get returns the registered type for id.
func (r *Registry) Get(id string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	return t, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Ensure registers id with a generated label if it is unknown.
func (r *Registry) Ensure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[id]; !ok {
		r.register(id, generatedLabel(id), "user-defined relation "+id)
	}
}

// LabelOf returns the display label for id, or id itself when unknown.
func (r *Registry) LabelOf(id string) string {
	r.mu.RLock()
	t, ok := r.types[id]
	hook := r.onMiss
	r.mu.RUnlock()
	if ok {
		return t.Label
	}
	if hook != nil {
		hook("label", id)
	}
	return id
}

// IDOf returns the id registered under label, or label itself when unknown.
func (r *Registry) IDOf(label string) string {
	r.mu.RLock()
	id, ok := r.byLabel[label]
	hook := r.onMiss
	r.mu.RUnlock()
	if ok {
		return id
	}
	if hook != nil {
		hook("id", label)
	}
	return label
}

// InverseOf returns the canonical inverse of id, registering it on first use.
func (r *Registry) InverseOf(id string) string {
	inv, ok := inverses[id]
	if !ok {
		inv = RelatedTo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[inv]; !ok {
		r.register(inv, generatedLabel(inv), "inverse of "+id)
	}
	return inv
}

// List returns every registered type in registration order.
func (r *Registry) List() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

func generatedLabel(id string) string {
	return strings.ReplaceAll(id, "-", " ")
}
