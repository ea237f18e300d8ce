package reasoning

import (
	"context"

	"github.com/nidhogg/semnet/internal/concept"
	"github.com/nidhogg/semnet/internal/relation"
	"go.uber.org/zap"
)

// RelationOracle suggests a relation type for a concept pair. It is advisory:
// an error or an empty answer falls back to the local mapping.
type RelationOracle interface {
	SuggestRelationType(ctx context.Context, source, target *concept.Concept) (string, error)
}

// OracleFunc adapts a function to RelationOracle.
type OracleFunc func(ctx context.Context, source, target *concept.Concept) (string, error)

func (f OracleFunc) SuggestRelationType(ctx context.Context, source, target *concept.Concept) (string, error) {
	return f(ctx, source, target)
}

// Where a discovered relation type came from.
const (
	SourceLocal  = "local"
	SourceOracle = "oracle"
)

// strongInference is the confidence a winning strategy needs before its
// relation type is used instead of related-to.
const strongInference = 0.7

var kindRelation = map[InferenceKind]string{
	Deductive:  relation.IsA,
	Inductive:  relation.SimilarTo,
	Analogical: relation.SimilarTo,
	Causal:     relation.Causes,
}

// DiscoverOpts controls auto-discovery.
type DiscoverOpts struct {
	Threshold float64 // min averaged confidence, taken as given
	MaxNew    int     // stop after this many relationships, 0 means 10
}

// DefaultDiscoverOpts returns sensible defaults.
func DefaultDiscoverOpts() DiscoverOpts {
	return DiscoverOpts{Threshold: 0.5, MaxNew: 10}
}

// Discovery is one relationship created by auto-discovery.
type Discovery struct {
	Source        string        `json:"source"`
	Target        string        `json:"target"`
	RelationType  string        `json:"relation_type"`
	Confidence    float64       `json:"confidence"`
	InferenceType InferenceKind `json:"inference_type"`
	SuggestedBy   string        `json:"suggested_by"`
}

// AutoDiscoverRelationships scores every unlinked concept pair with all four
// strategies and links the pairs whose average confidence reaches the
// threshold. Pairs are visited in insertion order, earlier concepts first.
func (e *Engine) AutoDiscoverRelationships(ctx context.Context, opts DiscoverOpts) []Discovery {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.MaxNew <= 0 {
		opts.MaxNew = DefaultDiscoverOpts().MaxNew
	}

	found := []Discovery{}
	concepts := e.ordered()
scan:
	for i := 0; i < len(concepts) && len(found) < opts.MaxNew; i++ {
		for j := i + 1; j < len(concepts) && len(found) < opts.MaxNew; j++ {
			if ctx.Err() != nil {
				break scan
			}
			a, b := concepts[i], concepts[j]
			if a.LinkedTo(b) || b.LinkedTo(a) {
				continue
			}
			if d, ok := e.discoverPair(ctx, a, b, opts.Threshold); ok {
				found = append(found, d)
			}
		}
	}

	e.record(EventDiscovery, map[string]any{
		"threshold": opts.Threshold,
		"max_new":   opts.MaxNew,
		"created":   len(found),
		"cancelled": ctx.Err() != nil,
	})
	if len(found) > 0 {
		e.logger.Info("relationships discovered", zap.Int("count", len(found)))
	}
	return found
}

func (e *Engine) discoverPair(ctx context.Context, a, b *concept.Concept, threshold float64) (Discovery, bool) {
	var sum float64
	var best *Inference
	for _, kind := range InferenceKinds {
		res := e.infer(a, b, kind)
		sum += res.Confidence
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}
	avg := sum / float64(len(InferenceKinds))
	if avg < threshold {
		return Discovery{}, false
	}

	relType, source := relation.RelatedTo, SourceLocal
	if best.Confidence > strongInference {
		relType = kindRelation[best.Kind]
	}
	if suggested := e.suggest(ctx, a, b); suggested != "" {
		relType, source = suggested, SourceOracle
	}

	e.addRelationship(a.ID, relType, b.ID, avg)
	e.metrics.Discovery(source)
	return Discovery{
		Source:        a.ID,
		Target:        b.ID,
		RelationType:  e.resolveRelation(relType),
		Confidence:    avg,
		InferenceType: best.Kind,
		SuggestedBy:   source,
	}, true
}

func (e *Engine) suggest(ctx context.Context, a, b *concept.Concept) string {
	if e.oracle == nil {
		return ""
	}
	rel, err := e.oracle.SuggestRelationType(ctx, a, b)
	if err != nil {
		e.metrics.OracleFailure()
		e.logger.Warn("relation oracle failed, using local heuristics",
			zap.String("source", a.ID),
			zap.String("target", b.ID),
			zap.Error(err))
		return ""
	}
	return rel
}
