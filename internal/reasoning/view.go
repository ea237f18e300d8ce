package reasoning

import (
	"time"

	"github.com/nidhogg/semnet/internal/concept"
)

// EdgeView is a copy of one outgoing edge.
type EdgeView struct {
	Target              string    `json:"target"`
	Strength            float64   `json:"strength"`
	ActivationThreshold float64   `json:"activation_threshold"`
	LastUsedAt          time.Time `json:"last_used_at"`
}

// ConceptView is a detached copy of a concept's state.
type ConceptView struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Attributes      map[string]any        `json:"attributes"`
	Activation      float64               `json:"activation"`
	Weight          float64               `json:"weight"`
	Type            string                `json:"type"`
	Category        string                `json:"category"`
	Frequency       float64               `json:"frequency"`
	LastActivatedAt time.Time             `json:"last_activated_at"`
	Relationships   map[string][]EdgeView `json:"relationships"`
}

// Describe returns a copy of the concept stored under id.
func (e *Engine) Describe(id string) (ConceptView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.concepts[id]
	if !ok {
		return ConceptView{}, false
	}
	return viewOf(c), true
}

// ListConcepts returns copies of every concept in insertion order.
func (e *Engine) ListConcepts() []ConceptView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ConceptView, 0, len(e.order))
	for _, c := range e.ordered() {
		out = append(out, viewOf(c))
	}
	return out
}

func viewOf(c *concept.Concept) ConceptView {
	attrs := make(map[string]any, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	rels := make(map[string][]EdgeView)
	c.ForEachEdge(func(relType string, e *concept.Edge) {
		rels[relType] = append(rels[relType], EdgeView{
			Target:              e.Target.ID,
			Strength:            e.Strength,
			ActivationThreshold: e.ActivationThreshold,
			LastUsedAt:          e.LastUsedAt,
		})
	})
	return ConceptView{
		ID:              c.ID,
		Name:            c.Name,
		Attributes:      attrs,
		Activation:      c.CurrentActivation(),
		Weight:          c.Weight,
		Type:            string(c.Kind),
		Category:        c.Category,
		Frequency:       c.Frequency,
		LastActivatedAt: c.LastActivatedAt,
		Relationships:   rels,
	}
}
