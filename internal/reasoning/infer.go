package reasoning

import (
	"fmt"
	"math"
	"strings"

	"github.com/nidhogg/semnet/internal/concept"
	"github.com/nidhogg/semnet/internal/relation"
	"go.uber.org/zap"
)

// InferenceKind names an inference strategy.
type InferenceKind string

const (
	Deductive  InferenceKind = "deductive"
	Inductive  InferenceKind = "inductive"
	Analogical InferenceKind = "analogical"
	Causal     InferenceKind = "causal"
)

// InferenceKinds lists the strategies in evaluation order.
var InferenceKinds = []InferenceKind{Deductive, Inductive, Analogical, Causal}

// ParseInferenceKind accepts a strategy name or its noun form
// ("deduction", "analogy", ...).
func ParseInferenceKind(s string) (InferenceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deductive", "deduction":
		return Deductive, true
	case "inductive", "induction":
		return Inductive, true
	case "analogical", "analogy":
		return Analogical, true
	case "causal", "causation", "causality":
		return Causal, true
	}
	return "", false
}

const (
	chainDepth     = 3
	analogyFloor   = 0.5
	noAnalogyScore = 0.2
)

var strategies = map[InferenceKind]func(src, tgt *concept.Concept) *Inference{
	Deductive:  deduce,
	Inductive:  induce,
	Analogical: analogize,
	Causal:     causal,
}

// inferSpread primes the source before scoring.
var inferSpread = SpreadOpts{InitialActivation: 0.6, MaxDepth: 2, Decay: 0.5}

// Analogy describes the best structural match found by analogical inference.
type Analogy struct {
	Relation     string  `json:"relation"`
	SourceTarget string  `json:"source_target"`
	TargetTarget string  `json:"target_target"`
	Strength     float64 `json:"strength"`
}

// Inference is the scored outcome of one strategy.
type Inference struct {
	Kind        InferenceKind `json:"kind"`
	Confidence  float64       `json:"confidence"`
	Description string        `json:"description"`
	Analogy     *Analogy      `json:"analogy,omitempty"`
}

// Infer scores the relation between two concepts with one strategy. It
// returns nil if either concept is unknown or the strategy is not recognized.
func (e *Engine) Infer(sourceID, targetID string, kind InferenceKind) *Inference {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, tgt, ok := e.pair("infer", sourceID, targetID)
	if !ok {
		return nil
	}
	return e.infer(src, tgt, kind)
}

func (e *Engine) infer(src, tgt *concept.Concept, kind InferenceKind) *Inference {
	score, ok := strategies[kind]
	if !ok {
		e.metrics.Noop("infer", "unknown_kind")
		e.logger.Debug("unknown inference kind", zap.String("kind", string(kind)))
		return nil
	}

	e.spread(src, inferSpread)
	res := score(src, tgt)

	e.metrics.Inference(string(kind))
	e.record(EventInference, map[string]any{
		"source":     src.ID,
		"target":     tgt.ID,
		"kind":       string(kind),
		"confidence": res.Confidence,
	})
	return res
}

func deduce(src, tgt *concept.Concept) *Inference {
	if reachable(src, relation.IsA, chainDepth)[tgt] {
		return &Inference{
			Kind:        Deductive,
			Confidence:  0.9,
			Description: fmt.Sprintf("%s is a subtype or instance of %s", src.Name, tgt.Name),
		}
	}
	return &Inference{
		Kind:        Deductive,
		Confidence:  0.3,
		Description: fmt.Sprintf("cannot determine whether %s is a %s via deduction", src.Name, tgt.Name),
	}
}

func induce(src, tgt *concept.Concept) *Inference {
	attrs := ratio(concept.SharedAttributes(src, tgt), len(src.Attributes), len(tgt.Attributes))
	rels := ratio(concept.SharedRelationTypes(src, tgt), len(src.RelationTypes()), len(tgt.RelationTypes()))
	sim := 0.6*attrs + 0.4*rels
	return &Inference{
		Kind:        Inductive,
		Confidence:  sim,
		Description: fmt.Sprintf("%s and %s share %.0f%% of their observed traits", src.Name, tgt.Name, sim*100),
	}
}

func analogize(src, tgt *concept.Concept) *Inference {
	base := concept.Similarity(src, tgt)
	var best *Analogy
	var bestA, bestB *concept.Concept
	for _, rel := range src.RelationTypes() {
		theirs := tgt.EdgesOf(rel)
		if len(theirs) == 0 {
			continue
		}
		for _, a := range src.EdgesOf(rel) {
			for _, b := range theirs {
				s := base * concept.Similarity(a.Target, b.Target)
				if s > analogyFloor && (best == nil || s > best.Strength) {
					best = &Analogy{
						Relation:     rel,
						SourceTarget: a.Target.ID,
						TargetTarget: b.Target.ID,
						Strength:     s,
					}
					bestA, bestB = a.Target, b.Target
				}
			}
		}
	}
	if best == nil {
		return &Inference{
			Kind:        Analogical,
			Confidence:  noAnalogyScore,
			Description: fmt.Sprintf("no valid analogy between %s and %s", src.Name, tgt.Name),
		}
	}
	return &Inference{
		Kind:       Analogical,
		Confidence: best.Strength,
		Description: fmt.Sprintf("%s is to %s as %s is to %s",
			src.Name, bestA.Name, tgt.Name, bestB.Name),
		Analogy: best,
	}
}

func causal(src, tgt *concept.Concept) *Inference {
	if _, ok := src.Edge(relation.Causes, tgt); ok {
		return &Inference{
			Kind:        Causal,
			Confidence:  0.8,
			Description: fmt.Sprintf("%s directly causes %s", src.Name, tgt.Name),
		}
	}
	if reachable(src, relation.Causes, chainDepth)[tgt] {
		return &Inference{
			Kind:        Causal,
			Confidence:  0.6,
			Description: fmt.Sprintf("%s indirectly causes %s through a causal chain", src.Name, tgt.Name),
		}
	}
	return &Inference{
		Kind:        Causal,
		Confidence:  0.3,
		Description: fmt.Sprintf("no causal link from %s to %s", src.Name, tgt.Name),
	}
}

// reachable returns the concepts reachable from src over relType edges
// within maxDepth hops. src itself is excluded unless a cycle returns to it.
func reachable(src *concept.Concept, relType string, maxDepth int) map[*concept.Concept]bool {
	found := make(map[*concept.Concept]bool)
	frontier := []*concept.Concept{src}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []*concept.Concept
		for _, c := range frontier {
			for _, edge := range c.EdgesOf(relType) {
				if found[edge.Target] {
					continue
				}
				found[edge.Target] = true
				next = append(next, edge.Target)
			}
		}
		frontier = next
	}
	return found
}

func ratio(shared, a, b int) float64 {
	denom := math.Max(float64(a), float64(b))
	if denom == 0 {
		return 0
	}
	return float64(shared) / denom
}
