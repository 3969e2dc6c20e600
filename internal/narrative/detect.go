package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

var lifeEventArc = map[model.LifeEventType]model.ArcType{
	model.EventMarriage:       model.ArcLoveStory,
	model.EventFriendship:     model.ArcFriendship,
	model.EventRivalry:        model.ArcRivalry,
	model.EventFeud:           model.ArcRivalry,
	model.EventMentorship:     model.ArcMentorship,
	model.EventGraduation:     model.ArcMentorship,
	model.EventBetrayal:       model.ArcBetrayal,
	model.EventReconciliation: model.ArcRedemption,
	model.EventTransformation: model.ArcTransformation,
}

var titles = map[model.ArcType]string{
	model.ArcLoveStory:      "The Courtship of %s and %s",
	model.ArcRivalry:        "%s versus %s",
	model.ArcFriendship:     "%s and %s, Side by Side",
	model.ArcMentorship:     "%s Teaches %s",
	model.ArcBetrayal:       "%s Betrayed by %s",
	model.ArcRedemption:     "%s and %s Make Amends",
	model.ArcRiseToPower:    "The Rise of %s",
	model.ArcTransformation: "The Remaking of %s",
}

var themes = map[model.ArcType]string{
	model.ArcLoveStory:      "love",
	model.ArcRivalry:        "conflict",
	model.ArcFriendship:     "loyalty",
	model.ArcMentorship:     "growth",
	model.ArcBetrayal:       "trust",
	model.ArcRedemption:     "forgiveness",
	model.ArcRiseToPower:    "ambition",
	model.ArcTransformation: "change",
}

// Pass detects new arcs and abandons arcs that went quiet.
func (e *Engine) Pass(ctx context.Context) error {
	if _, err := e.Detect(ctx); err != nil {
		return err
	}
	_, err := e.Maintain(ctx)
	return err
}

// Detect runs the life event, relationship and goal passes and returns the
// arcs it created. Life events that belong to an open arc of the same kind
// are appended to it instead.
func (e *Engine) Detect(ctx context.Context) ([]*model.NarrativeArc, error) {
	var created []*model.NarrativeArc
	for _, pass := range []func(context.Context) ([]*model.NarrativeArc, error){
		e.fromLifeEvents, e.fromRelationships, e.fromGoals,
	} {
		found, err := pass(ctx)
		created = append(created, found...)
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func (e *Engine) fromLifeEvents(ctx context.Context) ([]*model.NarrativeArc, error) {
	list, err := e.repo.LifeEvents(store.LifeEventFilter{})
	if err != nil {
		return nil, err
	}
	var created []*model.NarrativeArc
	for _, ev := range list {
		typ, ok := lifeEventArc[ev.Type]
		if !ok {
			continue
		}
		linked, err := e.repo.ArcEventFor(ev.ID)
		if err != nil {
			return created, err
		}
		if linked != nil {
			continue
		}
		a, b, err := e.agents(ev.PrimaryID, ev.SecondaryID)
		if errors.Is(err, simerr.ErrNotFound) {
			e.logger.Warn("skipping life event with missing agent", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return created, err
		}
		if b == nil && typ != model.ArcTransformation {
			e.logger.Warn("skipping life event without a second agent", zap.String("event", ev.ID))
			continue
		}

		arc, err := e.openArc(typ, ev.PrimaryID, ev.SecondaryID)
		if err != nil {
			return created, err
		}
		if arc == nil {
			arc = e.newArc(typ, a, b, ev.Significance)
			if err := e.begin(ctx, arc); err != nil {
				return created, err
			}
			created = append(created, arc)
		}
		if err := e.AddEvent(ctx, arc, ev.ID, ev.Description); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (e *Engine) fromRelationships(ctx context.Context) ([]*model.NarrativeArc, error) {
	rels, err := e.repo.Relationships()
	if err != nil {
		return nil, err
	}
	var created []*model.NarrativeArc
	for _, r := range rels {
		var (
			typ    model.ArcType
			sig    int
			moment string
		)
		switch {
		case r.Score >= e.th.LoveScore && r.InteractionCount >= e.th.LoveInteractions:
			typ, sig, moment = model.ArcLoveStory, 7, "%s fell for %s"
		case r.Score >= e.th.FriendScore && r.InteractionCount >= e.th.FriendInteractions:
			typ, sig, moment = model.ArcFriendship, 5, "%s grew close to %s"
		case r.Score <= e.th.RivalScore && r.InteractionCount >= e.th.RivalInteractions:
			typ, sig, moment = model.ArcRivalry, 6, "%s came to resent %s"
		default:
			continue
		}
		seen, err := e.anyArc(typ, r.AgentID, r.TargetID)
		if err != nil {
			return created, err
		}
		if seen {
			continue
		}
		a, b, err := e.agents(r.AgentID, r.TargetID)
		if errors.Is(err, simerr.ErrNotFound) {
			e.logger.Warn("skipping relationship with missing agent", zap.String("relationship", r.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return created, err
		}
		arc := e.newArc(typ, a, b, sig)
		arc.Acts[0].KeyMoments = append(arc.Acts[0].KeyMoments, fmt.Sprintf(moment, a.Name, b.Name))
		if err := e.begin(ctx, arc); err != nil {
			return created, err
		}
		created = append(created, arc)
	}
	return created, nil
}

// fromGoals starts a rise-to-power arc for agents pursuing power or wealth
// and feeds completed power goals into the agent's open arc.
func (e *Engine) fromGoals(ctx context.Context) ([]*model.NarrativeArc, error) {
	agents, err := e.repo.Agents()
	if err != nil {
		return nil, err
	}
	var created []*model.NarrativeArc
	for _, a := range agents {
		goals, err := e.repo.Goals(store.GoalFilter{AgentID: a.ID})
		if err != nil {
			return created, err
		}
		ended, err := e.riseEnded(a.ID)
		if err != nil {
			return created, err
		}
		var active int
		var done []*model.Goal
		for _, g := range goals {
			if g.Type != model.GoalGainPower && g.Type != model.GoalGainWealth {
				continue
			}
			switch g.Status {
			case model.GoalActive:
				// Goals an earlier rise already carried cannot start another.
				if g.CreatedAt.After(ended) {
					active++
				}
			case model.GoalCompleted:
				done = append(done, g)
			}
		}

		arc, err := e.openArc(model.ArcRiseToPower, a.ID, "")
		if err != nil {
			return created, err
		}
		if arc == nil {
			if active < e.th.PowerGoals {
				continue
			}
			arc = e.newArc(model.ArcRiseToPower, a, nil, 6)
			arc.Acts[0].KeyMoments = append(arc.Acts[0].KeyMoments, fmt.Sprintf("%s set out to make a name for themselves", a.Name))
			if err := e.begin(ctx, arc); err != nil {
				return created, err
			}
			created = append(created, arc)
		}

		for _, g := range done {
			if g.CompletedAt == nil || g.CompletedAt.Before(arc.DiscoveredAt) {
				continue
			}
			linked, err := e.repo.ArcEventFor(g.ID)
			if err != nil {
				return created, err
			}
			if linked != nil || !arc.Open() {
				continue
			}
			if err := e.AddEvent(ctx, arc, g.ID, fmt.Sprintf("%s managed to %s", a.Name, g.Description)); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// riseEnded returns the last event time of the agent's most recent closed
// rise-to-power arc, or the zero time when there is none.
func (e *Engine) riseEnded(agentID string) (time.Time, error) {
	list, err := e.repo.Arcs(store.ArcFilter{AgentID: agentID, Type: model.ArcRiseToPower})
	if err != nil {
		return time.Time{}, err
	}
	var ended time.Time
	for _, arc := range list {
		if !arc.Open() && arc.PrimaryID == agentID && arc.LastEventAt.After(ended) {
			ended = arc.LastEventAt
		}
	}
	return ended, nil
}

// Maintain abandons open arcs with no new event for AbandonAfter.
func (e *Engine) Maintain(ctx context.Context) ([]*model.NarrativeArc, error) {
	open, err := e.repo.Arcs(store.ArcFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	var abandoned []*model.NarrativeArc
	for _, arc := range open {
		if now.Sub(arc.LastEventAt) < e.th.AbandonAfter {
			continue
		}
		if err := e.Abandon(ctx, arc, "the story went quiet"); err != nil {
			return abandoned, err
		}
		abandoned = append(abandoned, arc)
	}
	return abandoned, nil
}

func (e *Engine) begin(ctx context.Context, arc *model.NarrativeArc) error {
	if err := e.repo.SaveArc(arc); err != nil {
		return fmt.Errorf("save arc: %w", err)
	}
	e.publish(ctx, arc, "A new story begins: "+arc.Title, arc.Significance)
	e.logger.Info("arc discovered", zap.String("arc", arc.ID), zap.String("type", string(arc.Type)))
	return nil
}

func (e *Engine) agents(primaryID, secondaryID string) (*model.Agent, *model.Agent, error) {
	a, err := e.repo.Agent(primaryID)
	if err != nil {
		return nil, nil, err
	}
	if secondaryID == "" {
		return a, nil, nil
	}
	b, err := e.repo.Agent(secondaryID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// openArc finds the open arc of the type for the unordered pair. A blank
// secondary matches single-agent arcs of the primary only.
func (e *Engine) openArc(typ model.ArcType, a, b string) (*model.NarrativeArc, error) {
	list, err := e.repo.Arcs(store.ArcFilter{AgentID: a, Type: typ, OpenOnly: true})
	if err != nil {
		return nil, err
	}
	for _, arc := range list {
		if samePair(arc, a, b) {
			return arc, nil
		}
	}
	return nil, nil
}

// anyArc reports whether the pair ever had an arc of the type.
func (e *Engine) anyArc(typ model.ArcType, a, b string) (bool, error) {
	list, err := e.repo.Arcs(store.ArcFilter{AgentID: a, Type: typ})
	if err != nil {
		return false, err
	}
	for _, arc := range list {
		if samePair(arc, a, b) {
			return true, nil
		}
	}
	return false, nil
}

func samePair(arc *model.NarrativeArc, a, b string) bool {
	if b == "" {
		return arc.PrimaryID == a && arc.SecondaryID == ""
	}
	return model.PairKey(arc.PrimaryID, arc.SecondaryID) == model.PairKey(a, b)
}
