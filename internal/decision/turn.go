package decision

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// Turns runs agent turns for the tick clock: perceive, decide, execute.
type Turns struct {
	repo    store.Repository
	decider Decider
	exec    *Executor
	clock   clock.Clock
	logger  *zap.Logger
}

// NewTurns creates a turn runner.
func NewTurns(repo store.Repository, decider Decider, exec *Executor, clk clock.Clock, logger *zap.Logger) *Turns {
	return &Turns{repo: repo, decider: decider, exec: exec, clock: clk, logger: logger}
}

// Perceive builds what the agent can see right now.
func (t *Turns) Perceive(agent *model.Agent) (Perception, error) {
	p := Perception{
		Now:           t.clock.Now(),
		Relationships: make(map[string]*model.Relationship),
		Locations:     make(map[string]string),
	}
	all, err := t.repo.Agents()
	if err != nil {
		return p, err
	}
	for _, other := range all {
		if other.ID == agent.ID {
			continue
		}
		p.Locations[other.ID] = other.Location
		if other.Location == agent.Location && other.Awake() {
			p.Nearby = append(p.Nearby, other)
		}
	}
	rels, err := t.repo.RelationshipsFrom(agent.ID)
	if err != nil {
		return p, err
	}
	for _, r := range rels {
		p.Relationships[r.TargetID] = r
	}
	active, err := t.repo.Goals(store.GoalFilter{AgentID: agent.ID, Status: model.GoalActive})
	if err != nil {
		return p, err
	}
	p.Goals = goals.Prioritize(active)
	return p, nil
}

// TakeTurn implements world.TurnRunner.
func (t *Turns) TakeTurn(ctx context.Context, agent *model.Agent) error {
	p, err := t.Perceive(agent)
	if err != nil {
		return fmt.Errorf("perceive: %w", err)
	}
	act, err := t.decider.Decide(ctx, agent, p)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	if err := t.exec.Execute(ctx, agent, act); err != nil {
		return fmt.Errorf("execute %s: %w", act, err)
	}
	t.logger.Debug("turn taken",
		zap.String("agent", agent.ID),
		zap.String("action", act.String()))
	return nil
}
