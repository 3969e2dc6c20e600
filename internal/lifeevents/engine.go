// Package lifeevents detects turning points in relationships and agent
// trajectories and applies their consequences.
package lifeevents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

// Thresholds are the tunable detection constants.
type Thresholds struct {
	Marriage             int           `json:"marriage"`
	MarriageInteractions int           `json:"marriage_interactions"`
	MarriageCharm        int           `json:"marriage_charm"`
	Friendship           int           `json:"friendship"`
	FriendshipInteract   int           `json:"friendship_interactions"`
	FriendshipLapse      int           `json:"friendship_lapse"`
	Rivalry              int           `json:"rivalry"`
	Feud                 int           `json:"feud"`
	MentorshipGap        int           `json:"mentorship_gap"`
	MentorshipInteract   int           `json:"mentorship_interactions"`
	BetrayalDrop         int           `json:"betrayal_drop"`
	RevengeCourage       int           `json:"revenge_courage"`
	StaleAfter           time.Duration `json:"-"`
}

// DefaultThresholds returns the standard detection constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Marriage:             8,
		MarriageInteractions: 10,
		MarriageCharm:        6,
		Friendship:           6,
		FriendshipInteract:   5,
		FriendshipLapse:      2,
		Rivalry:              -5,
		Feud:                 -8,
		MentorshipGap:        4,
		MentorshipInteract:   3,
		BetrayalDrop:         -4,
		RevengeCourage:       6,
		StaleAfter:           7 * 24 * time.Hour,
	}
}

// MentorTraits are the traits that can be taught.
var MentorTraits = []model.TraitName{
	model.TraitIntelligence, model.TraitCreativity, model.TraitCourage, model.TraitCharm,
}

// maxRounds bounds how often a scan repeats to pick up events triggered by
// the consequences of events found earlier in the same scan.
const maxRounds = 5

// Engine detects and resolves life events. Callers hold the world lock.
type Engine struct {
	repo   store.Repository
	graph  *world.RelationshipGraph
	goals  *goals.Engine
	clock  clock.Clock
	mem    memory.Recorder
	pub    events.Publisher
	th     Thresholds
	logger *zap.Logger
}

// NewEngine creates a life-event engine.
func NewEngine(repo store.Repository, graph *world.RelationshipGraph, goalEngine *goals.Engine, clk clock.Clock, mem memory.Recorder, pub events.Publisher, th Thresholds, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, graph: graph, goals: goalEngine, clock: clk, mem: mem, pub: pub, th: th, logger: logger}
}

// Scan detects new life events across all relationships, agent pairs and
// completed plans. It repeats until a round finds nothing, so scanning again
// without new interactions creates no events.
func (e *Engine) Scan(ctx context.Context) ([]*model.LifeEvent, error) {
	var created []*model.LifeEvent
	for round := 0; round < maxRounds; round++ {
		n := len(created)
		found, err := e.scanRelationships(ctx)
		if err != nil {
			return created, err
		}
		created = append(created, found...)

		found, err = e.scanMentorships(ctx)
		if err != nil {
			return created, err
		}
		created = append(created, found...)

		found, err = e.scanTransformations(ctx)
		if err != nil {
			return created, err
		}
		created = append(created, found...)

		if len(created) == n {
			break
		}
	}
	return created, nil
}

// ScanMentorships runs only the mentorship detection.
func (e *Engine) ScanMentorships(ctx context.Context) ([]*model.LifeEvent, error) {
	return e.scanMentorships(ctx)
}

func (e *Engine) scanRelationships(ctx context.Context) ([]*model.LifeEvent, error) {
	rels, err := e.repo.Relationships()
	if err != nil {
		return nil, err
	}
	var created []*model.LifeEvent
	for _, r := range rels {
		found, err := e.scanRelationship(ctx, r)
		if errors.Is(err, simerr.ErrNotFound) {
			e.logger.Warn("skipping relationship with missing agent",
				zap.String("agent", r.AgentID),
				zap.String("target", r.TargetID),
				zap.Error(err))
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, found...)
	}
	return created, nil
}

func (e *Engine) scanRelationship(ctx context.Context, r *model.Relationship) ([]*model.LifeEvent, error) {
	a, err := e.repo.Agent(r.AgentID)
	if err != nil {
		return nil, err
	}
	b, err := e.repo.Agent(r.TargetID)
	if err != nil {
		return nil, err
	}

	var candidates []*model.LifeEvent
	if last, ok := r.LastInteraction(); ok && last.Delta <= e.th.BetrayalDrop && r.Score-last.Delta >= e.th.Friendship {
		fresh, err := e.betrayalIsNew(a.ID, b.ID, last.At)
		if err != nil {
			return nil, err
		}
		if fresh {
			candidates = append(candidates, e.event(model.EventBetrayal, a, b, 8,
				fmt.Sprintf("%s felt betrayed by %s", a.Name, b.Name)))
		}
	}

	switch {
	case r.Score >= e.th.Marriage && r.InteractionCount >= e.th.MarriageInteractions &&
		a.Traits.Charm >= e.th.MarriageCharm && b.Traits.Charm >= e.th.MarriageCharm:
		free, err := e.unmarried(a.ID, b.ID)
		if err != nil {
			return nil, err
		}
		if free {
			candidates = append(candidates, e.event(model.EventMarriage, a, b, 10,
				fmt.Sprintf("%s and %s got married", a.Name, b.Name)))
			break
		}
		fallthrough
	case r.Score >= e.th.Friendship && r.InteractionCount >= e.th.FriendshipInteract:
		candidates = append(candidates, e.event(model.EventFriendship, a, b, 5,
			fmt.Sprintf("%s and %s became friends", a.Name, b.Name)))
	case r.Score <= e.th.Feud:
		rivalry, err := e.activeEvent(model.EventRivalry, a.ID, b.ID)
		if err != nil {
			return nil, err
		}
		if rivalry != nil {
			candidates = append(candidates, e.event(model.EventFeud, a, b, 8,
				fmt.Sprintf("The rivalry between %s and %s became a feud", a.Name, b.Name)))
			break
		}
		fallthrough
	case r.Score <= e.th.Rivalry:
		candidates = append(candidates, e.event(model.EventRivalry, a, b, 6,
			fmt.Sprintf("%s and %s became rivals", a.Name, b.Name)))
	}

	var created []*model.LifeEvent
	for _, c := range candidates {
		ev, err := e.create(ctx, c)
		if err != nil {
			return created, err
		}
		if ev != nil {
			created = append(created, ev)
		}
	}
	return created, nil
}

func (e *Engine) scanMentorships(ctx context.Context) ([]*model.LifeEvent, error) {
	agents, err := e.repo.Agents()
	if err != nil {
		return nil, err
	}
	var created []*model.LifeEvent
	for _, mentor := range agents {
		for _, student := range agents {
			if mentor.ID == student.ID {
				continue
			}
			trait, gap := widestGap(mentor, student)
			if gap < e.th.MentorshipGap {
				continue
			}
			ok, err := e.mentorable(mentor.ID, student.ID)
			if err != nil {
				return created, err
			}
			if !ok {
				continue
			}
			c := e.event(model.EventMentorship, mentor, student, 6,
				fmt.Sprintf("%s began mentoring %s in %s", mentor.Name, student.Name, trait))
			c.Trait = trait
			ev, err := e.create(ctx, c)
			if err != nil {
				return created, err
			}
			if ev != nil {
				created = append(created, ev)
			}
		}
	}
	return created, nil
}

func widestGap(mentor, student *model.Agent) (model.TraitName, int) {
	var best model.TraitName
	gap := 0
	for _, t := range MentorTraits {
		if d := mentor.Traits.Get(t) - student.Traits.Get(t); d > gap {
			best, gap = t, d
		}
	}
	return best, gap
}

// mentorable requires an existing, non-negative relationship with enough
// history between the two agents.
func (e *Engine) mentorable(mentorID, studentID string) (bool, error) {
	count, seen := 0, false
	for _, pair := range [][2]string{{studentID, mentorID}, {mentorID, studentID}} {
		r, err := e.repo.Relationship(pair[0], pair[1])
		if err != nil {
			return false, err
		}
		if r == nil {
			continue
		}
		if r.Score < 0 {
			return false, nil
		}
		seen = true
		count = max(count, r.InteractionCount)
	}
	return seen && count >= e.th.MentorshipInteract, nil
}

// Lesson applies one lesson when two agents in an active mentorship
// interact: the student's trait rises by one, never past the mentor's. It
// reports whether a lesson was given.
func (e *Engine) Lesson(a, b string) (bool, error) {
	ev, err := e.activeEvent(model.EventMentorship, a, b)
	if err != nil || ev == nil {
		return false, err
	}
	mentor, student, err := e.pair(ev)
	if err != nil {
		return false, err
	}
	if student.Traits.Get(ev.Trait) >= mentor.Traits.Get(ev.Trait) {
		return false, nil
	}
	student.Traits.Shift(ev.Trait, 1)
	if err := e.repo.SaveAgent(student); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) scanTransformations(ctx context.Context) ([]*model.LifeEvent, error) {
	plans, err := e.repo.Plans(store.PlanFilter{Statuses: []model.PlanStatus{model.PlanCompleted}})
	if err != nil {
		return nil, err
	}
	var created []*model.LifeEvent
	for _, p := range plans {
		existing, err := e.repo.LifeEvents(store.LifeEventFilter{AgentID: p.AgentID, Type: model.EventTransformation})
		if err != nil {
			return created, err
		}
		done := false
		for _, ev := range existing {
			if ev.PlanID == p.ID {
				done = true
				break
			}
		}
		if done {
			continue
		}
		a, err := e.repo.Agent(p.AgentID)
		if errors.Is(err, simerr.ErrNotFound) {
			e.logger.Warn("skipping plan of missing agent", zap.String("plan", p.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return created, err
		}
		c := e.event(model.EventTransformation, a, nil, 8,
			fmt.Sprintf("%s was transformed by their journey to %s", a.Name, p.Description))
		c.PlanID = p.ID
		c.Trait = goals.AmbitionTrait(p.Ambition)
		ev, err := e.create(ctx, c)
		if err != nil {
			return created, err
		}
		if ev != nil {
			created = append(created, ev)
		}
	}
	return created, nil
}

func (e *Engine) event(typ model.LifeEventType, a, b *model.Agent, significance int, desc string) *model.LifeEvent {
	ev := &model.LifeEvent{
		Type:         typ,
		PrimaryID:    a.ID,
		Description:  desc,
		Significance: significance,
		Status:       model.LifeEventActive,
		Timestamp:    e.clock.Now(),
	}
	if b != nil {
		ev.SecondaryID = b.ID
	}
	return ev
}

// create saves the candidate unless an active event of the same type already
// exists for the pair, then applies its consequences. It returns nil when the
// candidate was a duplicate.
func (e *Engine) create(ctx context.Context, ev *model.LifeEvent) (*model.LifeEvent, error) {
	if ev.Type != model.EventTransformation {
		dup, err := e.activeEvent(ev.Type, ev.PrimaryID, ev.SecondaryID)
		if err != nil || dup != nil {
			return nil, err
		}
		related, err := e.related(ev.PrimaryID, ev.SecondaryID)
		if err != nil {
			return nil, err
		}
		ev.RelatedIDs = related
	}
	if err := e.repo.SaveLifeEvent(ev); err != nil {
		return nil, fmt.Errorf("save life event: %w", err)
	}
	if err := e.applyConsequences(ctx, ev); err != nil {
		return nil, fmt.Errorf("consequences of %s: %w", ev.Type, err)
	}
	e.pub.Publish(ctx, &events.WorldEvent{
		ID:           ev.ID,
		Type:         events.TypeLifeEvent,
		Summary:      ev.Description,
		ActorIDs:     actors(ev),
		Significance: ev.Significance,
		Data:         map[string]string{"life_event": string(ev.Type)},
		At:           ev.Timestamp,
	})
	e.logger.Info("life event",
		zap.String("type", string(ev.Type)),
		zap.String("primary", ev.PrimaryID),
		zap.String("secondary", ev.SecondaryID))
	return ev, nil
}

func actors(ev *model.LifeEvent) []string {
	out := []string{ev.PrimaryID}
	if ev.SecondaryID != "" {
		out = append(out, ev.SecondaryID)
	}
	return out
}

// activeEvent returns the active event of the type for the unordered pair.
func (e *Engine) activeEvent(typ model.LifeEventType, a, b string) (*model.LifeEvent, error) {
	list, err := e.repo.LifeEvents(store.LifeEventFilter{AgentID: a, Type: typ, Status: model.LifeEventActive})
	if err != nil {
		return nil, err
	}
	key := model.PairKey(a, b)
	for _, ev := range list {
		if ev.Pair() == key {
			return ev, nil
		}
	}
	return nil, nil
}

func (e *Engine) unmarried(a, b string) (bool, error) {
	for _, id := range []string{a, b} {
		list, err := e.repo.LifeEvents(store.LifeEventFilter{AgentID: id, Type: model.EventMarriage, Status: model.LifeEventActive})
		if err != nil {
			return false, err
		}
		for _, ev := range list {
			if ev.Pair() != model.PairKey(a, b) {
				return false, nil
			}
		}
	}
	return true, nil
}

// betrayalIsNew reports whether the drop at `at` has not been recorded yet.
func (e *Engine) betrayalIsNew(victim, betrayer string, at time.Time) (bool, error) {
	list, err := e.repo.LifeEvents(store.LifeEventFilter{AgentID: victim, Type: model.EventBetrayal})
	if err != nil {
		return false, err
	}
	for _, ev := range list {
		if ev.PrimaryID == victim && ev.SecondaryID == betrayer && !ev.Timestamp.Before(at) {
			return false, nil
		}
	}
	return true, nil
}

// related returns up to three other agents who are close to either party.
func (e *Engine) related(a, b string) ([]string, error) {
	rels, err := e.repo.Relationships()
	if err != nil {
		return nil, err
	}
	best := make(map[string]int)
	for _, r := range rels {
		if r.AgentID == a || r.AgentID == b || r.Score < 5 {
			continue
		}
		if r.TargetID == a || r.TargetID == b {
			best[r.AgentID] = max(best[r.AgentID], r.Score)
		}
	}
	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if best[ids[i]] != best[ids[j]] {
			return best[ids[i]] > best[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > 3 {
		ids = ids[:3]
	}
	return ids, nil
}

func (e *Engine) pair(ev *model.LifeEvent) (*model.Agent, *model.Agent, error) {
	if ev.PrimaryID == "" || ev.SecondaryID == "" {
		return nil, nil, simerr.Validation("life event %s is missing an agent", ev.ID)
	}
	a, err := e.repo.Agent(ev.PrimaryID)
	if err != nil {
		return nil, nil, err
	}
	b, err := e.repo.Agent(ev.SecondaryID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// ActiveFor returns the agent's active life events, newest first.
func (e *Engine) ActiveFor(agentID string) ([]*model.LifeEvent, error) {
	list, err := e.repo.LifeEvents(store.LifeEventFilter{AgentID: agentID, Status: model.LifeEventActive})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
	return list, nil
}
