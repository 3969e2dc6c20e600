package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/nuka-society/internal/clock"
	"go.uber.org/zap"
)

// Store keeps memories as Neo4j nodes linked to their agent.
type Store struct {
	driver neo4j.DriverWithContext
	clock  clock.Clock
	logger *zap.Logger
}

// NewStore creates a new Neo4j memory store.
func NewStore(uri, user, password string, clk clock.Clock, logger *zap.Logger) (*Store, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, clock: clk, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Driver returns the underlying Neo4j driver for shared use.
func (s *Store) Driver() neo4j.DriverWithContext {
	return s.driver
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Record implements Recorder.
func (s *Store) Record(ctx context.Context, agentID, content string, significance int, kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown memory kind %q", kind)
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {id: $agentId})
		 CREATE (m:Memory {
			id: $id, agent_id: $agentId, content: $content,
			significance: $significance, kind: $kind, created_at: $at
		 })
		 CREATE (a)-[:REMEMBERS]->(m)`,
		map[string]interface{}{
			"id":           uuid.New().String(),
			"agentId":      agentID,
			"content":      content,
			"significance": int64(ClampSignificance(significance)),
			"kind":         string(kind),
			"at":           s.clock.Now(),
		})
	if err != nil {
		return fmt.Errorf("record memory for %s: %w", agentID, err)
	}
	return nil
}

// Recent returns an agent's newest memories.
func (s *Store) Recent(ctx context.Context, agentID string, limit int) ([]*Memory, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:Memory {agent_id: $agentId})
		 RETURN m.id, m.content, m.significance, m.kind, m.created_at
		 ORDER BY m.created_at DESC LIMIT $limit`,
		map[string]interface{}{"agentId": agentID, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}

	var memories []*Memory
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("m.id")
		content, _ := rec.Get("m.content")
		sig, _ := rec.Get("m.significance")
		kind, _ := rec.Get("m.kind")
		mem := &Memory{
			ID:           id.(string),
			AgentID:      agentID,
			Content:      content.(string),
			Significance: int(sig.(int64)),
			Kind:         Kind(kind.(string)),
		}
		if at, ok := rec.Get("m.created_at"); ok {
			if t, ok := at.(time.Time); ok {
				mem.CreatedAt = t
			}
		}
		memories = append(memories, mem)
	}
	return memories, result.Err()
}
