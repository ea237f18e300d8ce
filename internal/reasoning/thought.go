package reasoning

import (
	"github.com/nidhogg/semnet/internal/concept"
	"go.uber.org/zap"
)

// thoughtSpread is applied to each concept a thought lands on.
var thoughtSpread = SpreadOpts{InitialActivation: 0.5, MaxDepth: 2, Decay: 0.5}

// Thought is one transition of the thought flow.
type Thought struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	RelationType string  `json:"relation_type,omitempty"` // empty for a jump
	Strength     float64 `json:"strength,omitempty"`
	Activation   float64 `json:"activation"`
	Reached      int     `json:"reached"`
}

// ThinkStep advances the thought flow by one transition and returns it, or
// nil when the network is empty. The flow follows the focus concept's most
// attractive edge; at a dead end it jumps to the next concept in insertion
// order. Concepts not touched by the step decay passively.
func (e *Engine) ThinkStep() *Thought {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.currentFocus()
	if from == nil {
		return nil
	}

	t := &Thought{From: from.ID}
	var to *concept.Concept
	bestScore := -1.0
	from.ForEachEdge(func(relType string, edge *concept.Edge) {
		score := edge.Strength * (1 + edge.Target.CurrentActivation())
		if score > bestScore {
			bestScore = score
			to = edge.Target
			t.RelationType = relType
			t.Strength = edge.Strength
		}
	})
	if to == nil {
		to = e.after(from)
	}
	t.To = to.ID

	res := e.spread(to, thoughtSpread)
	t.Activation = res.Nodes[to.ID].Activation
	t.Reached = len(res.Nodes)
	for _, id := range e.order {
		if _, touched := res.Nodes[id]; !touched && id != from.ID {
			e.concepts[id].DecayPassive()
		}
	}
	e.focus = to.ID

	e.record(EventThought, map[string]any{
		"from":          t.From,
		"to":            t.To,
		"relation_type": t.RelationType,
		"activation":    t.Activation,
	})
	e.logger.Debug("thought step",
		zap.String("from", t.From),
		zap.String("to", t.To),
		zap.String("relation", t.RelationType))
	return t
}

// ResetFocus clears the thought flow's current focus.
func (e *Engine) ResetFocus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focus = ""
}

// currentFocus returns the focus, else the most active working memory
// concept, else the first concept.
func (e *Engine) currentFocus() *concept.Concept {
	if c, ok := e.concepts[e.focus]; ok {
		return c
	}
	if snap := e.memory.Snapshot(); len(snap) > 0 {
		if c, ok := e.concepts[snap[0].ID]; ok {
			return c
		}
	}
	if len(e.order) == 0 {
		return nil
	}
	return e.concepts[e.order[0]]
}

// after returns the concept inserted after c, wrapping around.
func (e *Engine) after(c *concept.Concept) *concept.Concept {
	for i, id := range e.order {
		if id == c.ID {
			return e.concepts[e.order[(i+1)%len(e.order)]]
		}
	}
	return c
}
