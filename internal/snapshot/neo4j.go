package snapshot

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jSink writes graph projections into Neo4j for external rendering.
type Neo4jSink struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jSink creates a sink connected to a Neo4j instance.
func NewNeo4jSink(uri, user, password string, logger *zap.Logger) (*Neo4jSink, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jSink{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (s *Neo4jSink) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Write replaces the stored projection with g.
func (s *Neo4jSink) Write(ctx context.Context, g Graph) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	nodes := make([]map[string]any, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = map[string]any{
			"id":         n.ID,
			"label":      n.Label,
			"activation": n.Activation,
			"weight":     n.Weight,
			"type":       n.Type,
			"category":   n.Category,
			"frequency":  n.Frequency,
		}
	}
	edges := make([]map[string]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{
			"from":     e.From,
			"to":       e.To,
			"type":     e.RelationType,
			"label":    e.RelationLabel,
			"strength": e.Strength,
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (c:Concept) DETACH DELETE c`, nil); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			`UNWIND $nodes AS n
			 CREATE (c:Concept {
				id: n.id, label: n.label, activation: n.activation,
				weight: n.weight, type: n.type, category: n.category,
				frequency: n.frequency, exported_at: datetime()
			 })`,
			map[string]any{"nodes": nodes}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			`UNWIND $edges AS e
			 MATCH (a:Concept {id: e.from}), (b:Concept {id: e.to})
			 CREATE (a)-[:RELATES {type: e.type, label: e.label, strength: e.strength}]->(b)`,
			map[string]any{"edges": edges})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	s.logger.Info("snapshot exported to neo4j",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)))
	return nil
}

// Counts returns the stored node and edge counts.
func (s *Neo4jSink) Counts(ctx context.Context) (nodes, edges int64, err error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept)
		 OPTIONAL MATCH (c)-[r:RELATES]->()
		 RETURN count(DISTINCT c) AS nodes, count(r) AS edges`, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("count snapshot: %w", err)
	}
	if result.Next(ctx) {
		rec := result.Record()
		if v, ok := rec.Get("nodes"); ok && v != nil {
			nodes = v.(int64)
		}
		if v, ok := rec.Get("edges"); ok && v != nil {
			edges = v.(int64)
		}
	}
	return nodes, edges, result.Err()
}
