package snapshot

import (
	"github.com/nidhogg/semnet/internal/concept"
	"github.com/nidhogg/semnet/internal/relation"
)

// Node is the rendering view of a concept.
type Node struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Activation float64 `json:"activation"`
	Weight     float64 `json:"weight"`
	Type       string  `json:"type"`
	Category   string  `json:"category"`
	Frequency  float64 `json:"frequency"`
}

// Edge is the rendering view of a relationship.
type Edge struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	RelationType  string  `json:"relation_type"`
	RelationLabel string  `json:"relation_label"`
	Strength      float64 `json:"strength"`
}

// Graph is a read-only node/edge projection of the network.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build projects concepts into a Graph. A relationship and its mirrored
// inverse are emitted once: the first direction met while walking concepts
// in the given order wins. Inverses need not be symmetric, so an edge is
// skipped when it mirrors an emitted edge or an emitted edge mirrors it.
func Build(concepts []*concept.Concept, reg *relation.Registry) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(concepts)),
		Edges: []Edge{},
	}
	emitted := make(map[edgeKey]struct{})
	mirrored := make(map[edgeKey]struct{})

	for _, c := range concepts {
		g.Nodes = append(g.Nodes, Node{
			ID:         c.ID,
			Label:      c.Name,
			Activation: c.CurrentActivation(),
			Weight:     c.Weight,
			Type:       string(c.Kind),
			Category:   c.Category,
			Frequency:  c.Frequency,
		})

		c.ForEachEdge(func(relType string, e *concept.Edge) {
			key := edgeKey{c.ID, e.Target.ID, relType}
			mirror := edgeKey{e.Target.ID, c.ID, reg.InverseOf(relType)}
			if _, ok := mirrored[key]; ok {
				return
			}
			if _, ok := emitted[mirror]; ok {
				return
			}
			emitted[key] = struct{}{}
			mirrored[mirror] = struct{}{}
			g.Edges = append(g.Edges, Edge{
				From:          c.ID,
				To:            e.Target.ID,
				RelationType:  relType,
				RelationLabel: reg.LabelOf(relType),
				Strength:      e.Strength,
			})
		})
	}
	return g
}

// edgeKey identifies a directed relationship.
type edgeKey struct {
	from, to, rel string
}
