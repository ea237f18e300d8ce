package reasoning

import (
	"math"

	"github.com/nidhogg/semnet/internal/concept"
	"go.uber.org/zap"
)

// SpreadOpts controls spreading activation behavior.
type SpreadOpts struct {
	InitialActivation float64 // energy injected at the source, default 0.8
	MaxDepth          int     // max hops, default 3
	Decay             float64 // per-hop decay, default 0.5
}

// DefaultSpreadOpts returns sensible defaults.
func DefaultSpreadOpts() SpreadOpts {
	return SpreadOpts{
		InitialActivation: 0.8,
		MaxDepth:          3,
		Decay:             0.5,
	}
}

// ActivatedNode is a concept reached by spreading activation.
type ActivatedNode struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Activation float64 `json:"activation"`
	Depth      int     `json:"depth"`
}

// SpreadResult holds the output of a spreading activation pass.
type SpreadResult struct {
	Source string                   `json:"source"`
	Nodes  map[string]ActivatedNode `json:"nodes"`
}

// Reached reports whether id was activated during the pass.
func (r *SpreadResult) Reached(id string) (ActivatedNode, bool) {
	n, ok := r.Nodes[id]
	return n, ok
}

type spreadItem struct {
	concept    *concept.Concept
	activation float64
	depth      int
}

// SpreadActivation propagates activation breadth-first from sourceID.
// It returns nil for an unknown source. Start from DefaultSpreadOpts for
// the usual settings.
func (e *Engine) SpreadActivation(sourceID string, opts SpreadOpts) *SpreadResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.concepts[sourceID]
	if !ok {
		e.metrics.Noop("spread", "unknown_concept")
		e.logger.Debug("spread from unknown concept", zap.String("source", sourceID))
		return nil
	}
	return e.spread(src, opts)
}

// spread mutates every concept it reaches. Options are taken as given: a
// MaxDepth of 0 still activates the source's direct targets but expands
// nothing further. A target is only expanded again when reached at a
// strictly shallower depth, and nothing is enqueued at or beyond MaxDepth.
func (e *Engine) spread(src *concept.Concept, opts SpreadOpts) *SpreadResult {
	res := &SpreadResult{Source: src.ID, Nodes: make(map[string]ActivatedNode)}
	act := src.Activate(opts.InitialActivation)
	res.Nodes[src.ID] = ActivatedNode{ID: src.ID, Name: src.Name, Activation: act}
	e.memory.Insert(src, act)

	queue := []spreadItem{{concept: src, activation: act, depth: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		next := item.depth + 1
		factor := math.Pow(opts.Decay, float64(next))
		item.concept.ForEachEdge(func(_ string, edge *concept.Edge) {
			propagated := item.activation * edge.Strength * factor
			if propagated <= edge.ActivationThreshold {
				return
			}
			target := edge.Target
			got := target.Activate(propagated)
			e.memory.Insert(target, got)

			if prev, seen := res.Nodes[target.ID]; seen && prev.Depth <= next {
				return
			}
			res.Nodes[target.ID] = ActivatedNode{
				ID:         target.ID,
				Name:       target.Name,
				Activation: got,
				Depth:      next,
			}
			if next < opts.MaxDepth {
				queue = append(queue, spreadItem{concept: target, activation: got, depth: next})
			}
		})
	}

	e.metrics.Spread(len(res.Nodes))
	e.record(EventSpread, map[string]any{
		"source":    src.ID,
		"initial":   opts.InitialActivation,
		"max_depth": opts.MaxDepth,
		"decay":     opts.Decay,
		"reached":   len(res.Nodes),
	})
	e.logger.Debug("spreading activation complete",
		zap.String("source", src.ID),
		zap.Int("reached", len(res.Nodes)))
	return res
}
