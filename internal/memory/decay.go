package memory

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Sweep forgets working and recent memories past their retention.
// Should be called periodically, e.g. from the persist pass.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	now := s.clock.Now()
	result, err := session.Run(ctx,
		`MATCH (m:Memory)
		 WHERE (m.kind = 'working' AND m.created_at < $workingCutoff)
		    OR (m.kind = 'recent' AND m.created_at < $recentCutoff)
		 DETACH DELETE m
		 RETURN count(*) AS forgotten`,
		map[string]interface{}{
			"workingCutoff": now.Add(-KindWorking.Retention()),
			"recentCutoff":  now.Add(-KindRecent.Retention()),
		})
	if err != nil {
		return 0, err
	}

	var forgotten int
	if result.Next(ctx) {
		if v, ok := result.Record().Get("forgotten"); ok {
			forgotten = int(v.(int64))
		}
	}

	s.logger.Info("memory sweep complete", zap.Int("forgotten", forgotten))
	return forgotten, nil
}

// Sweep drops expired working and recent memories from the log.
func (l *Log) Sweep(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	forgotten := 0
	for agentID, mems := range l.byAgent {
		kept := mems[:0]
		for _, m := range mems {
			if r := m.Kind.Retention(); r > 0 && now.Sub(m.CreatedAt) > r {
				forgotten++
				continue
			}
			kept = append(kept, m)
		}
		l.byAgent[agentID] = kept
	}
	return forgotten, nil
}
