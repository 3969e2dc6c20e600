// Package factions manages faction lifecycle, membership ranks and loyalty,
// and the relationships between factions.
package factions

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// Thresholds tune membership and faction dynamics.
type Thresholds struct {
	MaxMemberships   int     `json:"max_memberships"`
	MinActiveMembers int     `json:"min_active_members"`
	MemberLoyalty    int     `json:"member_loyalty"`
	OfficerLoyalty   int     `json:"officer_loyalty"`
	LeaderLoyalty    int     `json:"leader_loyalty"`
	RemoveBelow      int     `json:"remove_below"`
	RecruitLoyalty   int     `json:"recruit_loyalty"`
	FounderLoyalty   int     `json:"founder_loyalty"`
	FoundScore       int     `json:"found_score"`
	FoundChance      float64 `json:"found_chance"`
	JoinScore        int     `json:"join_score"`
	JoinChance       float64 `json:"join_chance"`
}

// DefaultThresholds returns the standard faction tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxMemberships:   2,
		MinActiveMembers: 3,
		MemberLoyalty:    40,
		OfficerLoyalty:   65,
		LeaderLoyalty:    85,
		RemoveBelow:      10,
		RecruitLoyalty:   30,
		FounderLoyalty:   80,
		FoundScore:       15,
		FoundChance:      0.05,
		JoinScore:        7,
		JoinChance:       0.2,
	}
}

// Engine owns faction state transitions. Callers hold the world lock.
type Engine struct {
	repo   store.Repository
	clock  clock.Clock
	rng    *rand.Rand
	pub    events.Publisher
	mem    memory.Recorder
	th     Thresholds
	logger *zap.Logger
}

// NewEngine creates a faction engine.
func NewEngine(repo store.Repository, clk clock.Clock, rng *rand.Rand, pub events.Publisher, mem memory.Recorder, th Thresholds, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, clock: clk, rng: rng, pub: pub, mem: mem, th: th, logger: logger}
}

// CreateFaction founds a faction with the founder as its only member.
func (e *Engine) CreateFaction(ctx context.Context, founderID, name string, beliefs, goals []string, location string) (*model.Faction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, simerr.Validation("faction name is required")
	}
	founder, err := e.repo.Agent(founderID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCapacity(founderID); err != nil {
		return nil, err
	}
	if location == "" {
		location = founder.Location
	}

	now := e.clock.Now()
	f := &model.Faction{
		Name:      name,
		FounderID: founderID,
		Status:    model.FactionForming,
		Beliefs:   append([]string(nil), beliefs...),
		Goals:     append([]string(nil), goals...),
		Location:  location,
		CreatedAt: now,
	}
	if err := e.repo.SaveFaction(f); err != nil {
		return nil, fmt.Errorf("save faction: %w", err)
	}
	ms := &model.Membership{
		FactionID: f.ID,
		AgentID:   founderID,
		Role:      model.RoleFounder,
		Loyalty:   model.ClampLoyalty(e.th.FounderLoyalty),
		JoinedAt:  now,
	}
	if err := e.repo.SaveMembership(ms); err != nil {
		return nil, fmt.Errorf("save membership: %w", err)
	}
	if err := e.refreshStatus(ctx, f); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("%s founded %s", founder.Name, f.Name)
	if err := e.mem.Record(ctx, founderID, summary, 8, memory.KindLongTerm); err != nil {
		return nil, err
	}
	e.publish(ctx, summary, 7, f, founderID)
	e.logger.Info("faction founded", zap.String("faction", f.ID), zap.String("founder", founderID))
	return f, nil
}

// AddMember enrolls the agent as a recruit.
func (e *Engine) AddMember(ctx context.Context, factionID, agentID string) (*model.Membership, error) {
	f, err := e.repo.Faction(factionID)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FactionDisbanded {
		return nil, simerr.Conflict("faction %s is disbanded", f.Name)
	}
	a, err := e.repo.Agent(agentID)
	if err != nil {
		return nil, err
	}
	existing, err := e.membership(factionID, agentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, simerr.Conflict("%s is already a member of %s", a.Name, f.Name)
	}
	if err := e.checkCapacity(agentID); err != nil {
		return nil, err
	}

	ms := &model.Membership{
		FactionID: factionID,
		AgentID:   agentID,
		Role:      model.RoleRecruit,
		Loyalty:   model.ClampLoyalty(e.th.RecruitLoyalty),
		JoinedAt:  e.clock.Now(),
	}
	if err := e.repo.SaveMembership(ms); err != nil {
		return nil, fmt.Errorf("save membership: %w", err)
	}
	if err := e.refreshStatus(ctx, f); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("%s joined %s", a.Name, f.Name)
	if err := e.mem.Record(ctx, agentID, summary, 6, memory.KindLongTerm); err != nil {
		return nil, err
	}
	e.publish(ctx, summary, 4, f, agentID)
	return ms, nil
}

// RemoveMember ends the agent's active membership.
func (e *Engine) RemoveMember(ctx context.Context, factionID, agentID, reason string) error {
	f, err := e.repo.Faction(factionID)
	if err != nil {
		return err
	}
	ms, err := e.membership(factionID, agentID)
	if err != nil {
		return err
	}
	if ms == nil {
		return simerr.NotFound("no active membership of %s in %s", agentID, factionID)
	}
	return e.end(ctx, f, ms, false, reason)
}

// UpdateLoyalty shifts loyalty, clamped to [0,100]. Falling below RemoveBelow
// ends the membership and marks the agent an outcast.
func (e *Engine) UpdateLoyalty(ctx context.Context, factionID, agentID string, delta int) (*model.Membership, error) {
	f, err := e.repo.Faction(factionID)
	if err != nil {
		return nil, err
	}
	ms, err := e.membership(factionID, agentID)
	if err != nil {
		return nil, err
	}
	if ms == nil {
		return nil, simerr.NotFound("no active membership of %s in %s", agentID, factionID)
	}
	ms.Loyalty = model.ClampLoyalty(ms.Loyalty + delta)
	if ms.Loyalty < e.th.RemoveBelow {
		return ms, e.end(ctx, f, ms, true, "lost faith")
	}
	if err := e.repo.SaveMembership(ms); err != nil {
		return nil, fmt.Errorf("save membership: %w", err)
	}
	return ms, nil
}

// Promote moves the member one rank up: recruit, member, officer, leader.
func (e *Engine) Promote(ctx context.Context, factionID, agentID string) (*model.Membership, error) {
	f, err := e.repo.Faction(factionID)
	if err != nil {
		return nil, err
	}
	ms, err := e.membership(factionID, agentID)
	if err != nil {
		return nil, err
	}
	if ms == nil {
		return nil, simerr.NotFound("no active membership of %s in %s", agentID, factionID)
	}

	next, gate := e.nextRank(ms.Role)
	if next == "" {
		return nil, simerr.Conflict("%s cannot be promoted", ms.Role)
	}
	if ms.Loyalty < gate {
		return nil, simerr.Conflict("loyalty %d is below %d needed for %s", ms.Loyalty, gate, next)
	}
	if next == model.RoleLeader {
		leader, err := e.leader(factionID)
		if err != nil {
			return nil, err
		}
		if leader != nil {
			return nil, simerr.Conflict("%s already has a leader", f.Name)
		}
	}

	ms.Role = next
	if err := e.repo.SaveMembership(ms); err != nil {
		return nil, fmt.Errorf("save membership: %w", err)
	}
	if next == model.RoleLeader {
		a, err := e.repo.Agent(agentID)
		if err != nil {
			return nil, err
		}
		summary := fmt.Sprintf("%s now leads %s", a.Name, f.Name)
		if err := e.mem.Record(ctx, agentID, summary, 8, memory.KindLongTerm); err != nil {
			return nil, err
		}
		e.publish(ctx, summary, 6, f, agentID)
	}
	return ms, nil
}

func (e *Engine) nextRank(r model.Role) (model.Role, int) {
	switch r {
	case model.RoleRecruit:
		return model.RoleMember, e.th.MemberLoyalty
	case model.RoleMember:
		return model.RoleOfficer, e.th.OfficerLoyalty
	case model.RoleOfficer:
		return model.RoleLeader, e.th.LeaderLoyalty
	}
	return "", 0
}

func (e *Engine) end(ctx context.Context, f *model.Faction, ms *model.Membership, outcast bool, reason string) error {
	now := e.clock.Now()
	ms.LeftAt = &now
	if outcast {
		ms.Role = model.RoleOutcast
	}
	if err := e.repo.SaveMembership(ms); err != nil {
		return fmt.Errorf("save membership: %w", err)
	}
	if err := e.refreshStatus(ctx, f); err != nil {
		return err
	}

	a, err := e.repo.Agent(ms.AgentID)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%s left %s", a.Name, f.Name)
	if reason != "" {
		summary += " (" + reason + ")"
	}
	if err := e.mem.Record(ctx, a.ID, summary, 5, memory.KindRecent); err != nil {
		return err
	}
	e.publish(ctx, summary, 3, f, a.ID)
	return nil
}

// refreshStatus derives the faction status from its active member count.
func (e *Engine) refreshStatus(ctx context.Context, f *model.Faction) error {
	if f.Status == model.FactionDisbanded {
		return nil
	}
	active, err := e.repo.Memberships(store.MembershipFilter{FactionID: f.ID, ActiveOnly: true})
	if err != nil {
		return err
	}

	prev := f.Status
	switch n := len(active); {
	case n == 0:
		now := e.clock.Now()
		f.Status = model.FactionDisbanded
		f.DisbandedAt = &now
	case n < e.th.MinActiveMembers:
		if prev == model.FactionActive || prev == model.FactionStruggling {
			f.Status = model.FactionStruggling
		} else {
			f.Status = model.FactionForming
		}
	default:
		f.Status = model.FactionActive
	}
	if err := e.repo.SaveFaction(f); err != nil {
		return fmt.Errorf("save faction: %w", err)
	}
	if f.Status != prev && prev != "" {
		e.logger.Info("faction status changed",
			zap.String("faction", f.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(f.Status)))
		if f.Status == model.FactionActive || f.Status == model.FactionDisbanded {
			e.publish(ctx, fmt.Sprintf("%s is now %s", f.Name, f.Status), 5, f)
		}
	}
	return nil
}

func (e *Engine) checkCapacity(agentID string) error {
	list, err := e.repo.Memberships(store.MembershipFilter{AgentID: agentID, ActiveOnly: true})
	if err != nil {
		return err
	}
	if len(list) >= e.th.MaxMemberships {
		return simerr.Conflict("agent %s already belongs to %d factions", agentID, len(list))
	}
	return nil
}

func (e *Engine) membership(factionID, agentID string) (*model.Membership, error) {
	list, err := e.repo.Memberships(store.MembershipFilter{FactionID: factionID, AgentID: agentID, ActiveOnly: true})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (e *Engine) leader(factionID string) (*model.Membership, error) {
	list, err := e.repo.Memberships(store.MembershipFilter{FactionID: factionID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	for _, ms := range list {
		if ms.Role == model.RoleLeader {
			return ms, nil
		}
	}
	return nil, nil
}

// head is the active leader, or the founder while they remain a member.
func (e *Engine) head(f *model.Faction, members []*model.Membership) string {
	founder := ""
	for _, ms := range members {
		if ms.Role == model.RoleLeader {
			return ms.AgentID
		}
		if ms.AgentID == f.FounderID {
			founder = ms.AgentID
		}
	}
	return founder
}

// SetFactionRelationship sets the score between two factions. The pair is
// stored once, smaller id first.
func (e *Engine) SetFactionRelationship(factionA, factionB string, score int, reason string) (*model.FactionRelationship, error) {
	r, err := e.factionRelationship(factionA, factionB)
	if err != nil {
		return nil, err
	}
	return r, e.applyScore(r, score, reason)
}

// AdjustRelationship shifts the score between two factions.
func (e *Engine) AdjustRelationship(factionA, factionB string, delta int, reason string) (*model.FactionRelationship, error) {
	r, err := e.factionRelationship(factionA, factionB)
	if err != nil {
		return nil, err
	}
	return r, e.applyScore(r, r.Score+delta, reason)
}

func (e *Engine) factionRelationship(factionA, factionB string) (*model.FactionRelationship, error) {
	if factionA == factionB {
		return nil, simerr.Validation("faction %s cannot relate to itself", factionA)
	}
	a, b := model.CanonicalPair(factionA, factionB)
	r, err := e.repo.FactionRelationship(a, b)
	if err != nil || r != nil {
		return r, err
	}
	for _, id := range []string{a, b} {
		if _, err := e.repo.Faction(id); err != nil {
			return nil, err
		}
	}
	return &model.FactionRelationship{FactionA: a, FactionB: b, Type: model.FactionNeutral}, nil
}

func (e *Engine) applyScore(r *model.FactionRelationship, score int, reason string) error {
	now := e.clock.Now()
	r.Score = max(model.MinFactionScore, min(model.MaxFactionScore, score))
	r.Type = model.FactionTypeForScore(r.Score)
	r.History = append(r.History, model.FactionRelationEntry{Reason: reason, Score: r.Score, At: now})
	if n := len(r.History); n > model.MaxFactionHistory {
		r.History = r.History[n-model.MaxFactionHistory:]
	}
	r.UpdatedAt = now
	if err := e.repo.SaveFactionRelationship(r); err != nil {
		return fmt.Errorf("save faction relationship: %w", err)
	}
	return nil
}

// ForAgent returns the factions the agent actively belongs to.
func (e *Engine) ForAgent(agentID string) ([]*model.Faction, error) {
	list, err := e.repo.Memberships(store.MembershipFilter{AgentID: agentID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Faction, 0, len(list))
	for _, ms := range list {
		f, err := e.repo.Faction(ms.FactionID)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Members returns the faction's memberships, active ones only unless all is set.
func (e *Engine) Members(factionID string, all bool) ([]*model.Membership, error) {
	if _, err := e.repo.Faction(factionID); err != nil {
		return nil, err
	}
	return e.repo.Memberships(store.MembershipFilter{FactionID: factionID, ActiveOnly: !all})
}

func (e *Engine) publish(ctx context.Context, summary string, significance int, f *model.Faction, actors ...string) {
	ev := events.New(e.clock, events.TypeFaction, summary, significance, actors...)
	ev.LocationID = f.Location
	ev.Data = map[string]string{"faction": f.ID}
	e.pub.Publish(ctx, ev)
}
