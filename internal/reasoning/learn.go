package reasoning

import (
	"github.com/nidhogg/semnet/internal/concept"
	"go.uber.org/zap"
)

const (
	failurePenalty   = 0.5
	successWeight    = 0.1
	failureWeight    = -0.05
	learnedFrequency = 0.2
)

// Outcome reports whether a relationship held up in practice.
type Outcome struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relation_type"`
	Success      bool   `json:"success"`
}

// Learn reinforces or weakens a relationship and its endpoints. A zero
// reinforcement means the default of 1.0. It reports whether the outcome was
// applied; unknown concepts make it a no-op.
func (e *Engine) Learn(o Outcome, reinforcement float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, tgt, ok := e.pair("learn", o.Source, o.Target)
	if !ok {
		return false
	}
	if reinforcement == 0 {
		reinforcement = 1.0
	}

	relType := e.resolveRelation(o.RelationType)
	edge, hasEdge := src.Edge(relType, tgt)
	if hasEdge {
		delta := reinforcement
		if !o.Success {
			delta = -reinforcement * failurePenalty
		}
		edge.Strength = concept.ClampStrength(edge.Strength + delta)
		edge.LastUsedAt = e.clock()
	} else {
		e.metrics.Noop("learn", "missing_edge")
		e.logger.Debug("no edge to reinforce",
			zap.String("source", o.Source),
			zap.String("type", relType),
			zap.String("target", o.Target))
	}

	weightDelta := successWeight
	if !o.Success {
		weightDelta = failureWeight
	}
	endpoints := []*concept.Concept{src}
	if tgt != src {
		endpoints = append(endpoints, tgt)
	}
	for _, c := range endpoints {
		c.AdjustWeight(weightDelta)
		c.Frequency += learnedFrequency
		e.memory.Insert(c, c.CurrentActivation())
	}

	detail := map[string]any{
		"source":        o.Source,
		"target":        o.Target,
		"relation_type": relType,
		"success":       o.Success,
		"reinforcement": reinforcement,
	}
	if hasEdge {
		detail["strength"] = edge.Strength
	}
	e.record(EventLearning, detail)
	return true
}
