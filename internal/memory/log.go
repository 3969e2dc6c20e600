package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-society/internal/clock"
)

// Log is an in-memory Recorder bounded per agent.
type Log struct {
	mu       sync.Mutex
	clock    clock.Clock
	perAgent int
	byAgent  map[string][]*Memory
}

// NewLog keeps up to perAgent memories for each agent.
func NewLog(clk clock.Clock, perAgent int) *Log {
	if perAgent <= 0 {
		perAgent = 200
	}
	return &Log{clock: clk, perAgent: perAgent, byAgent: make(map[string][]*Memory)}
}

// Record implements Recorder.
func (l *Log) Record(_ context.Context, agentID, content string, significance int, kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown memory kind %q", kind)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	mems := append(l.byAgent[agentID], &Memory{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		Content:      content,
		Significance: ClampSignificance(significance),
		Kind:         kind,
		CreatedAt:    l.clock.Now(),
	})
	if len(mems) > l.perAgent {
		mems = mems[len(mems)-l.perAgent:]
	}
	l.byAgent[agentID] = mems
	return nil
}

// Recent returns up to limit of the agent's newest memories, newest first.
func (l *Log) Recent(_ context.Context, agentID string, limit int) ([]*Memory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mems := l.byAgent[agentID]
	out := make([]*Memory, 0, min(limit, len(mems)))
	for i := len(mems) - 1; i >= 0 && len(out) < limit; i-- {
		m := *mems[i]
		out = append(out, &m)
	}
	return out, nil
}

// Deferrer queues work until the surrounding transaction commits.
type Deferrer interface {
	Defer(fn func(ctx context.Context))
}

// Deferred postpones recording until the repository transaction commits.
// Failures are logged through onErr since nobody is left to return them to.
type Deferred struct {
	tx    Deferrer
	inner Recorder
	onErr func(agentID string, err error)
}

// NewDeferred wraps inner so records go through tx.
func NewDeferred(tx Deferrer, inner Recorder, onErr func(agentID string, err error)) *Deferred {
	return &Deferred{tx: tx, inner: inner, onErr: onErr}
}

// Record implements Recorder. It only reports invalid kinds synchronously.
func (d *Deferred) Record(_ context.Context, agentID, content string, significance int, kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown memory kind %q", kind)
	}
	d.tx.Defer(func(ctx context.Context) {
		if err := d.inner.Record(ctx, agentID, content, significance, kind); err != nil && d.onErr != nil {
			d.onErr(agentID, err)
		}
	})
	return nil
}
