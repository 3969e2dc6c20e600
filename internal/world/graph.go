package world

import (
	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
)

// RelationshipGraph manages directed affinities between agents. Callers must
// hold the world lock (run inside Transactor.InTx or View).
type RelationshipGraph struct {
	repo  store.Repository
	clock clock.Clock
}

// NewRelationshipGraph creates a graph over the repository.
func NewRelationshipGraph(repo store.Repository, clk clock.Clock) *RelationshipGraph {
	return &RelationshipGraph{repo: repo, clock: clk}
}

// Get returns from's relationship toward to, or nil if they never interacted.
func (g *RelationshipGraph) Get(fromID, toID string) (*model.Relationship, error) {
	return g.repo.Relationship(fromID, toID)
}

// Score returns from's score toward to, 0 when there is no relationship.
func (g *RelationshipGraph) Score(fromID, toID string) (int, bool, error) {
	r, err := g.repo.Relationship(fromID, toID)
	if err != nil || r == nil {
		return 0, false, err
	}
	return r.Score, true, nil
}

// Interact records an interaction from one agent toward another, creating
// the relationship on first contact.
func (g *RelationshipGraph) Interact(fromID, toID string, delta int, reason string) (*model.Relationship, error) {
	r, err := g.getOrCreate(fromID, toID)
	if err != nil {
		return nil, err
	}
	r.Record(delta, reason, g.clock.Now())
	if err := g.repo.SaveRelationship(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Adjust shifts the score without counting an interaction.
func (g *RelationshipGraph) Adjust(fromID, toID string, delta int) (*model.Relationship, error) {
	r, err := g.getOrCreate(fromID, toID)
	if err != nil {
		return nil, err
	}
	r.Shift(delta, g.clock.Now())
	if err := g.repo.SaveRelationship(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Mutual applies the same delta in both directions.
func (g *RelationshipGraph) Mutual(a, b string, delta int) error {
	if _, err := g.Adjust(a, b, delta); err != nil {
		return err
	}
	_, err := g.Adjust(b, a, delta)
	return err
}

func (g *RelationshipGraph) getOrCreate(fromID, toID string) (*model.Relationship, error) {
	if fromID == toID {
		return nil, simerr.Validation("agent %s cannot relate to itself", fromID)
	}
	r, err := g.repo.Relationship(fromID, toID)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r, nil
	}
	for _, id := range []string{fromID, toID} {
		if _, err := g.repo.Agent(id); err != nil {
			return nil, err
		}
	}
	now := g.clock.Now()
	return &model.Relationship{
		AgentID:   fromID,
		TargetID:  toID,
		Type:      model.TypeForScore(0),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
