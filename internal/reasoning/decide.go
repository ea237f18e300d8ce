package reasoning

import (
	"reflect"

	"github.com/nidhogg/semnet/internal/concept"
	"go.uber.org/zap"
)

// decideSpread primes each option before scoring.
var decideSpread = SpreadOpts{InitialActivation: 0.7, MaxDepth: 3, Decay: 0.5}

// Evaluation is the score breakdown of one decision option.
type Evaluation struct {
	Option      string  `json:"option"`
	ConceptID   string  `json:"concept_id"`
	Ephemeral   bool    `json:"ephemeral"`
	Activation  float64 `json:"activation"`
	Weight      float64 `json:"weight"`
	Frequency   float64 `json:"frequency"`
	Relatedness float64 `json:"relatedness"`
	Confidence  float64 `json:"confidence"`
}

// Decision is the outcome of Decide.
type Decision struct {
	Chosen      string       `json:"chosen"`
	Confidence  float64      `json:"confidence"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Decide scores each option against the context and picks the best one.
// Options are resolved by id, then by name; unknown options are scored as
// throwaway concepts that are never stored. Ties go to the earliest option.
func (e *Engine) Decide(options []string, context map[string]any) *Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := &Decision{Evaluations: make([]Evaluation, 0, len(options))}
	if len(options) == 0 {
		e.metrics.Noop("decide", "no_options")
		return d
	}

	best := -1
	for _, opt := range options {
		c, stored := e.resolve(opt)
		if stored {
			e.spread(c, decideSpread)
		} else {
			c.Activate(decideSpread.InitialActivation)
		}

		ev := Evaluation{
			Option:      opt,
			ConceptID:   c.ID,
			Ephemeral:   !stored,
			Activation:  c.CurrentActivation(),
			Weight:      c.Weight,
			Frequency:   c.Frequency,
			Relatedness: relatedness(c, context),
		}
		ev.Confidence = 0.3*ev.Activation + 0.2*ev.Weight + 0.2*ev.Frequency + 0.3*ev.Relatedness
		d.Evaluations = append(d.Evaluations, ev)

		if best < 0 || ev.Confidence > d.Evaluations[best].Confidence {
			best = len(d.Evaluations) - 1
		}
	}

	d.Chosen = d.Evaluations[best].Option
	d.Confidence = d.Evaluations[best].Confidence

	e.record(EventDecision, map[string]any{
		"options":    options,
		"chosen":     d.Chosen,
		"confidence": d.Confidence,
	})
	e.logger.Debug("decision made",
		zap.Strings("options", options),
		zap.String("chosen", d.Chosen),
		zap.Float64("confidence", d.Confidence))
	return d
}

// resolve finds a stored concept by id or name, or builds a throwaway one.
func (e *Engine) resolve(option string) (*concept.Concept, bool) {
	if c, ok := e.concepts[option]; ok {
		return c, true
	}
	for _, id := range e.order {
		if c := e.concepts[id]; c.Name == option {
			return c, true
		}
	}
	c := concept.New(option, option, nil, e.clock)
	c.DecayRate = e.decayRate
	return c, false
}

// relatedness is the fraction of context entries the concept matches.
// An empty context is fully related.
func relatedness(c *concept.Concept, context map[string]any) float64 {
	if len(context) == 0 {
		return 1.0
	}
	desc := c.Descriptors()
	matched := 0
	for k, v := range context {
		if cv, ok := desc[k]; ok && reflect.DeepEqual(cv, v) {
			matched++
		}
	}
	return float64(matched) / float64(len(context))
}
