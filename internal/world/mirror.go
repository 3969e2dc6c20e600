package world

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/nuka-society/internal/model"
	"go.uber.org/zap"
)

// RelationMirror copies the relationship graph into Neo4j so it can be
// explored with graph queries. The repository stays authoritative.
type RelationMirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRelationMirror creates a mirror backed by Neo4j.
func NewRelationMirror(driver neo4j.DriverWithContext, logger *zap.Logger) *RelationMirror {
	return &RelationMirror{driver: driver, logger: logger}
}

// Sync upserts agents and their relationships.
func (m *RelationMirror) Sync(ctx context.Context, agents []*model.Agent, rels []*model.Relationship) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, a := range agents {
			_, err := tx.Run(ctx,
				`MERGE (a:Agent {id: $id})
				 SET a.name = $name, a.location = $location, a.state = $state`,
				map[string]interface{}{
					"id":       a.ID,
					"name":     a.Name,
					"location": a.Location,
					"state":    string(a.State),
				})
			if err != nil {
				return nil, fmt.Errorf("merge agent %s: %w", a.ID, err)
			}
		}
		for _, r := range rels {
			_, err := tx.Run(ctx,
				`MERGE (a:Agent {id: $from})
				 MERGE (b:Agent {id: $to})
				 MERGE (a)-[r:RELATES_TO]->(b)
				 SET r.score = $score, r.type = $type,
				     r.interactions = $count, r.updated_at = $updated`,
				map[string]interface{}{
					"from":    r.AgentID,
					"to":      r.TargetID,
					"score":   int64(r.Score),
					"type":    string(r.Type),
					"count":   int64(r.InteractionCount),
					"updated": r.UpdatedAt,
				})
			if err != nil {
				return nil, fmt.Errorf("merge relation %s->%s: %w", r.AgentID, r.TargetID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync relations: %w", err)
	}
	m.logger.Debug("relations mirrored",
		zap.Int("agents", len(agents)),
		zap.Int("relations", len(rels)))
	return nil
}

// Neighbor is an agent reachable from another in the mirrored graph.
type Neighbor struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Type    string `json:"type"`
}

// Neighbors returns an agent's outgoing relationships ordered by score.
func (m *RelationMirror) Neighbors(ctx context.Context, agentID string) ([]Neighbor, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[r:RELATES_TO]->(b:Agent)
		 RETURN b.id, b.name, r.score, r.type
		 ORDER BY r.score DESC`,
		map[string]interface{}{"agentId": agentID})
	if err != nil {
		return nil, fmt.Errorf("get neighbors: %w", err)
	}

	var out []Neighbor
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("b.id")
		name, _ := rec.Get("b.name")
		score, _ := rec.Get("r.score")
		typ, _ := rec.Get("r.type")

		n := Neighbor{AgentID: id.(string)}
		if s, ok := name.(string); ok {
			n.Name = s
		}
		if s, ok := score.(int64); ok {
			n.Score = int(s)
		}
		if s, ok := typ.(string); ok {
			n.Type = s
		}
		out = append(out, n)
	}
	return out, result.Err()
}
