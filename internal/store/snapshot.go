package store

import (
	"context"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
)

// Snapshot is a detached copy of every table, used at the persistence boundary.
type Snapshot struct {
	Agents               []*model.Agent
	Relationships        []*model.Relationship
	Goals                []*model.Goal
	Plans                []*model.GoalPlan
	LifeEvents           []*model.LifeEvent
	Factions             []*model.Faction
	Memberships          []*model.Membership
	FactionRelationships []*model.FactionRelationship
	Arcs                 []*model.NarrativeArc
	ArcEvents            []*model.ArcEvent
}

// Latest returns the newest world timestamp recorded in the snapshot, so a
// restarted clock can resume after it. Zero when the snapshot is empty.
func (s *Snapshot) Latest() time.Time {
	var latest time.Time
	see := func(t time.Time) {
		if t.After(latest) {
			latest = t
		}
	}
	for _, v := range s.Agents {
		see(v.CreatedAt)
	}
	for _, v := range s.Relationships {
		see(v.UpdatedAt)
	}
	for _, v := range s.Goals {
		see(v.UpdatedAt)
	}
	for _, v := range s.LifeEvents {
		see(v.Timestamp)
		if v.ResolvedAt != nil {
			see(*v.ResolvedAt)
		}
	}
	for _, v := range s.Arcs {
		see(v.LastEventAt)
	}
	return latest
}

// Export copies the current state under the world lock.
func (m *Memory) Export(ctx context.Context) *Snapshot {
	var snap *Snapshot
	_ = m.View(ctx, func(context.Context) error {
		c := m.data.clone()
		snap = &Snapshot{}
		for _, v := range c.agents {
			snap.Agents = append(snap.Agents, v)
		}
		for _, v := range c.rels {
			snap.Relationships = append(snap.Relationships, v)
		}
		for _, v := range c.goals {
			snap.Goals = append(snap.Goals, v)
		}
		for _, v := range c.plans {
			snap.Plans = append(snap.Plans, v)
		}
		for _, v := range c.events {
			snap.LifeEvents = append(snap.LifeEvents, v)
		}
		for _, v := range c.factions {
			snap.Factions = append(snap.Factions, v)
		}
		for _, v := range c.memberships {
			snap.Memberships = append(snap.Memberships, v)
		}
		for _, v := range c.factionRels {
			snap.FactionRelationships = append(snap.FactionRelationships, v)
		}
		for _, v := range c.arcs {
			snap.Arcs = append(snap.Arcs, v)
		}
		for _, v := range c.arcEvents {
			snap.ArcEvents = append(snap.ArcEvents, v)
		}
		return nil
	})
	return snap
}

// Import replaces the current state with the snapshot contents.
func (m *Memory) Import(ctx context.Context, snap *Snapshot) error {
	return m.InTx(ctx, func(context.Context) error {
		m.data = newState()
		for _, v := range snap.Agents {
			if err := m.SaveAgent(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Relationships {
			if err := m.SaveRelationship(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Goals {
			if err := m.SaveGoal(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Plans {
			if err := m.SavePlan(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.LifeEvents {
			if err := m.SaveLifeEvent(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Factions {
			if err := m.SaveFaction(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Memberships {
			if err := m.SaveMembership(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.FactionRelationships {
			if err := m.SaveFactionRelationship(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.Arcs {
			if err := m.SaveArc(v.Clone()); err != nil {
				return err
			}
		}
		for _, v := range snap.ArcEvents {
			e := *v
			if err := m.SaveArcEvent(&e); err != nil {
				return err
			}
		}
		return nil
	})
}
