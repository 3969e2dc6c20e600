package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"go.uber.org/zap"
)

// state is every table of the in-process repository.
type state struct {
	agents      map[string]*model.Agent
	rels        map[string]*model.Relationship // from|to
	goals       map[string]*model.Goal
	plans       map[string]*model.GoalPlan
	events      map[string]*model.LifeEvent
	factions    map[string]*model.Faction
	memberships map[string]*model.Membership
	factionRels map[string]*model.FactionRelationship // canonical a|b
	arcs        map[string]*model.NarrativeArc
	arcEvents   map[string]*model.ArcEvent
}

func newState() *state {
	return &state{
		agents:      make(map[string]*model.Agent),
		rels:        make(map[string]*model.Relationship),
		goals:       make(map[string]*model.Goal),
		plans:       make(map[string]*model.GoalPlan),
		events:      make(map[string]*model.LifeEvent),
		factions:    make(map[string]*model.Faction),
		memberships: make(map[string]*model.Membership),
		factionRels: make(map[string]*model.FactionRelationship),
		arcs:        make(map[string]*model.NarrativeArc),
		arcEvents:   make(map[string]*model.ArcEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.agents {
		c.agents[k] = v.Clone()
	}
	for k, v := range s.rels {
		c.rels[k] = v.Clone()
	}
	for k, v := range s.goals {
		c.goals[k] = v.Clone()
	}
	for k, v := range s.plans {
		c.plans[k] = v.Clone()
	}
	for k, v := range s.events {
		c.events[k] = v.Clone()
	}
	for k, v := range s.factions {
		c.factions[k] = v.Clone()
	}
	for k, v := range s.memberships {
		c.memberships[k] = v.Clone()
	}
	for k, v := range s.factionRels {
		c.factionRels[k] = v.Clone()
	}
	for k, v := range s.arcs {
		c.arcs[k] = v.Clone()
	}
	for k, v := range s.arcEvents {
		e := *v
		c.arcEvents[k] = &e
	}
	return c
}

// Memory is the in-process Repository. All access is serialized by one world
// lock taken by InTx and View; repository methods must only be called from
// inside one of those, or from single-threaded setup code.
type Memory struct {
	mu       sync.Mutex
	data     *state
	inTx     bool
	deferred []func(ctx context.Context)
	logger   *zap.Logger
}

// NewMemory creates an empty in-process repository.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{data: newState(), logger: logger}
}

// InTx runs fn under the world lock. If fn returns an error or panics every
// mutation it made is rolled back and its deferred side effects are dropped.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	effects, err := m.runTx(ctx, fn)
	for _, f := range effects {
		f(ctx)
	}
	return err
}

func (m *Memory) runTx(ctx context.Context, fn func(ctx context.Context) error) (effects []func(context.Context), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	m.inTx = true
	m.deferred = nil

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction: %v", r)
		}
		m.inTx = false
		if err != nil {
			m.data = snapshot
			m.deferred = nil
			return
		}
		effects = m.deferred
		m.deferred = nil
	}()

	return nil, fn(ctx)
}

// View runs fn under the world lock without transaction bookkeeping.
func (m *Memory) View(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

// Defer queues a side effect until the current transaction commits. Outside a
// transaction it runs immediately.
func (m *Memory) Defer(fn func(ctx context.Context)) {
	if m.inTx {
		m.deferred = append(m.deferred, fn)
		return
	}
	fn(context.Background())
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// --- agents ---

func (m *Memory) SaveAgent(a *model.Agent) error {
	if a == nil {
		return simerr.Validation("nil agent")
	}
	ensureID(&a.ID)
	m.data.agents[a.ID] = a
	return nil
}

func (m *Memory) Agent(id string) (*model.Agent, error) {
	a, ok := m.data.agents[id]
	if !ok {
		return nil, simerr.NotFound("agent %s", id)
	}
	return a, nil
}

func (m *Memory) Agents() ([]*model.Agent, error) {
	out := make([]*model.Agent, 0, len(m.data.agents))
	for _, a := range m.data.agents {
		out = append(out, a)
	}
	sortBy(out, func(a *model.Agent) (time.Time, string) { return a.CreatedAt, a.ID })
	return out, nil
}

// --- relationships ---

func relKey(from, to string) string { return from + "|" + to }

func (m *Memory) SaveRelationship(r *model.Relationship) error {
	if r == nil || r.AgentID == "" || r.TargetID == "" {
		return simerr.Validation("relationship needs both agent ids")
	}
	if r.AgentID == r.TargetID {
		return simerr.Validation("relationship with self: %s", r.AgentID)
	}
	ensureID(&r.ID)
	m.data.rels[relKey(r.AgentID, r.TargetID)] = r
	return nil
}

func (m *Memory) Relationship(fromID, toID string) (*model.Relationship, error) {
	return m.data.rels[relKey(fromID, toID)], nil
}

func (m *Memory) Relationships() ([]*model.Relationship, error) {
	out := make([]*model.Relationship, 0, len(m.data.rels))
	for _, r := range m.data.rels {
		out = append(out, r)
	}
	sortBy(out, func(r *model.Relationship) (time.Time, string) { return r.CreatedAt, r.ID })
	return out, nil
}

func (m *Memory) RelationshipsFrom(agentID string) ([]*model.Relationship, error) {
	var out []*model.Relationship
	for _, r := range m.data.rels {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	sortBy(out, func(r *model.Relationship) (time.Time, string) { return r.CreatedAt, r.ID })
	return out, nil
}

// --- goals ---

func (m *Memory) SaveGoal(g *model.Goal) error {
	if g == nil || g.AgentID == "" {
		return simerr.Validation("goal needs an agent")
	}
	ensureID(&g.ID)
	m.data.goals[g.ID] = g
	return nil
}

func (m *Memory) Goal(id string) (*model.Goal, error) {
	g, ok := m.data.goals[id]
	if !ok {
		return nil, simerr.NotFound("goal %s", id)
	}
	return g, nil
}

func (m *Memory) Goals(f GoalFilter) ([]*model.Goal, error) {
	var out []*model.Goal
	for _, g := range m.data.goals {
		if f.AgentID != "" && g.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		if f.Category != "" && g.Category != f.Category {
			continue
		}
		if f.Type != "" && g.Type != f.Type {
			continue
		}
		if f.PlanID != "" && g.PlanID != f.PlanID {
			continue
		}
		out = append(out, g)
	}
	sortBy(out, func(g *model.Goal) (time.Time, string) { return g.CreatedAt, g.ID })
	return out, nil
}

// --- plans ---

func (m *Memory) SavePlan(p *model.GoalPlan) error {
	if p == nil || p.AgentID == "" {
		return simerr.Validation("plan needs an agent")
	}
	ensureID(&p.ID)
	m.data.plans[p.ID] = p
	return nil
}

func (m *Memory) Plan(id string) (*model.GoalPlan, error) {
	p, ok := m.data.plans[id]
	if !ok {
		return nil, simerr.NotFound("plan %s", id)
	}
	return p, nil
}

func (m *Memory) Plans(f PlanFilter) ([]*model.GoalPlan, error) {
	var out []*model.GoalPlan
	for _, p := range m.data.plans {
		if f.AgentID != "" && p.AgentID != f.AgentID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	sortBy(out, func(p *model.GoalPlan) (time.Time, string) { return p.CreatedAt, p.ID })
	return out, nil
}

func containsStatus(list []model.PlanStatus, s model.PlanStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- life events ---

func (m *Memory) SaveLifeEvent(e *model.LifeEvent) error {
	if e == nil || e.PrimaryID == "" {
		return simerr.Validation("life event needs a primary agent")
	}
	ensureID(&e.ID)
	m.data.events[e.ID] = e
	return nil
}

func (m *Memory) LifeEvent(id string) (*model.LifeEvent, error) {
	e, ok := m.data.events[id]
	if !ok {
		return nil, simerr.NotFound("life event %s", id)
	}
	return e, nil
}

func (m *Memory) LifeEvents(f LifeEventFilter) ([]*model.LifeEvent, error) {
	var out []*model.LifeEvent
	for _, e := range m.data.events {
		if f.AgentID != "" && !e.Involves(f.AgentID) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	sortBy(out, func(e *model.LifeEvent) (time.Time, string) { return e.Timestamp, e.ID })
	return out, nil
}

// --- factions ---

func (m *Memory) SaveFaction(f *model.Faction) error {
	if f == nil || f.Name == "" {
		return simerr.Validation("faction needs a name")
	}
	ensureID(&f.ID)
	m.data.factions[f.ID] = f
	return nil
}

func (m *Memory) Faction(id string) (*model.Faction, error) {
	f, ok := m.data.factions[id]
	if !ok {
		return nil, simerr.NotFound("faction %s", id)
	}
	return f, nil
}

func (m *Memory) Factions(ff FactionFilter) ([]*model.Faction, error) {
	var out []*model.Faction
	for _, f := range m.data.factions {
		if ff.Status != "" && f.Status != ff.Status {
			continue
		}
		if ff.Live && f.Status == model.FactionDisbanded {
			continue
		}
		out = append(out, f)
	}
	sortBy(out, func(f *model.Faction) (time.Time, string) { return f.CreatedAt, f.ID })
	return out, nil
}

func (m *Memory) SaveMembership(ms *model.Membership) error {
	if ms == nil || ms.FactionID == "" || ms.AgentID == "" {
		return simerr.Validation("membership needs faction and agent")
	}
	ensureID(&ms.ID)
	m.data.memberships[ms.ID] = ms
	return nil
}

func (m *Memory) Memberships(f MembershipFilter) ([]*model.Membership, error) {
	var out []*model.Membership
	for _, ms := range m.data.memberships {
		if f.FactionID != "" && ms.FactionID != f.FactionID {
			continue
		}
		if f.AgentID != "" && ms.AgentID != f.AgentID {
			continue
		}
		if f.ActiveOnly && !ms.Active() {
			continue
		}
		out = append(out, ms)
	}
	sortBy(out, func(ms *model.Membership) (time.Time, string) { return ms.JoinedAt, ms.ID })
	return out, nil
}

func (m *Memory) SaveFactionRelationship(r *model.FactionRelationship) error {
	if r == nil || r.FactionA == "" || r.FactionB == "" {
		return simerr.Validation("faction relationship needs two factions")
	}
	if r.FactionA > r.FactionB {
		return simerr.Validation("faction relationship pair not canonical: %s > %s", r.FactionA, r.FactionB)
	}
	ensureID(&r.ID)
	m.data.factionRels[r.FactionA+"|"+r.FactionB] = r
	return nil
}

func (m *Memory) FactionRelationship(a, b string) (*model.FactionRelationship, error) {
	a, b = model.CanonicalPair(a, b)
	return m.data.factionRels[a+"|"+b], nil
}

func (m *Memory) FactionRelationships() ([]*model.FactionRelationship, error) {
	out := make([]*model.FactionRelationship, 0, len(m.data.factionRels))
	for _, r := range m.data.factionRels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FactionA != out[j].FactionA {
			return out[i].FactionA < out[j].FactionA
		}
		return out[i].FactionB < out[j].FactionB
	})
	return out, nil
}

// --- arcs ---

func (m *Memory) SaveArc(a *model.NarrativeArc) error {
	if a == nil || a.PrimaryID == "" {
		return simerr.Validation("arc needs a primary agent")
	}
	ensureID(&a.ID)
	m.data.arcs[a.ID] = a
	return nil
}

func (m *Memory) Arc(id string) (*model.NarrativeArc, error) {
	a, ok := m.data.arcs[id]
	if !ok {
		return nil, simerr.NotFound("arc %s", id)
	}
	return a, nil
}

func (m *Memory) Arcs(f ArcFilter) ([]*model.NarrativeArc, error) {
	var out []*model.NarrativeArc
	for _, a := range m.data.arcs {
		if f.AgentID != "" && !a.Involves(f.AgentID) {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.OpenOnly && !a.Open() {
			continue
		}
		out = append(out, a)
	}
	sortBy(out, func(a *model.NarrativeArc) (time.Time, string) { return a.DiscoveredAt, a.ID })
	return out, nil
}

func (m *Memory) SaveArcEvent(e *model.ArcEvent) error {
	if e == nil || e.ArcID == "" {
		return simerr.Validation("arc event needs an arc")
	}
	ensureID(&e.ID)
	m.data.arcEvents[e.ID] = e
	return nil
}

func (m *Memory) ArcEvents(arcID string) ([]*model.ArcEvent, error) {
	var out []*model.ArcEvent
	for _, e := range m.data.arcEvents {
		if e.ArcID == arcID {
			out = append(out, e)
		}
	}
	sortBy(out, func(e *model.ArcEvent) (time.Time, string) { return e.At, e.ID })
	return out, nil
}

func (m *Memory) ArcEventFor(eventID string) (*model.ArcEvent, error) {
	for _, e := range m.data.arcEvents {
		if e.EventID == eventID {
			return e, nil
		}
	}
	return nil, nil
}

// sortBy orders by time then id so results are deterministic.
func sortBy[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
