package store

import (
	"context"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
)

// Repository is typed access to every simulation entity. Lookups of a single
// relationship or faction relationship return nil, nil when the row does not
// exist yet; other single-entity lookups return a simerr.ErrNotFound error.
//
// Returned pointers are live: mutate them inside a transaction and Save them.
type Repository interface {
	SaveAgent(a *model.Agent) error
	Agent(id string) (*model.Agent, error)
	Agents() ([]*model.Agent, error)

	SaveRelationship(r *model.Relationship) error
	Relationship(fromID, toID string) (*model.Relationship, error)
	Relationships() ([]*model.Relationship, error)
	RelationshipsFrom(agentID string) ([]*model.Relationship, error)

	SaveGoal(g *model.Goal) error
	Goal(id string) (*model.Goal, error)
	Goals(f GoalFilter) ([]*model.Goal, error)

	SavePlan(p *model.GoalPlan) error
	Plan(id string) (*model.GoalPlan, error)
	Plans(f PlanFilter) ([]*model.GoalPlan, error)

	SaveLifeEvent(e *model.LifeEvent) error
	LifeEvent(id string) (*model.LifeEvent, error)
	LifeEvents(f LifeEventFilter) ([]*model.LifeEvent, error)

	SaveFaction(f *model.Faction) error
	Faction(id string) (*model.Faction, error)
	Factions(f FactionFilter) ([]*model.Faction, error)

	SaveMembership(m *model.Membership) error
	Memberships(f MembershipFilter) ([]*model.Membership, error)

	SaveFactionRelationship(r *model.FactionRelationship) error
	FactionRelationship(a, b string) (*model.FactionRelationship, error)
	FactionRelationships() ([]*model.FactionRelationship, error)

	SaveArc(a *model.NarrativeArc) error
	Arc(id string) (*model.NarrativeArc, error)
	Arcs(f ArcFilter) ([]*model.NarrativeArc, error)

	SaveArcEvent(e *model.ArcEvent) error
	ArcEvents(arcID string) ([]*model.ArcEvent, error)
	ArcEventFor(eventID string) (*model.ArcEvent, error)
}

// Transactor runs a unit of work atomically. Side effects queued with Defer
// run only after the unit commits.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
	Defer(fn func(ctx context.Context))
}

// GoalFilter selects goals. Zero fields match everything.
type GoalFilter struct {
	AgentID  string
	Status   model.GoalStatus
	Category model.GoalCategory
	Type     model.GoalType
	PlanID   string
}

// PlanFilter selects goal plans.
type PlanFilter struct {
	AgentID  string
	Statuses []model.PlanStatus
}

// LifeEventFilter selects life events. AgentID matches any involved agent.
type LifeEventFilter struct {
	AgentID string
	Type    model.LifeEventType
	Status  model.LifeEventStatus
	Since   time.Time
}

// FactionFilter selects factions.
type FactionFilter struct {
	Status model.FactionStatus
	// Live excludes disbanded factions.
	Live bool
}

// MembershipFilter selects memberships.
type MembershipFilter struct {
	FactionID  string
	AgentID    string
	ActiveOnly bool
}

// ArcFilter selects narrative arcs. OpenOnly excludes resolved and abandoned arcs.
type ArcFilter struct {
	AgentID  string
	Type     model.ArcType
	Status   model.ArcStatus
	OpenOnly bool
}
