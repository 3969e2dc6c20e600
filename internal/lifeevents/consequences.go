package lifeevents

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
)

type reaction struct {
	agentID  string
	goal     model.GoalType
	targetID string
	priority int
}

// applyConsequences changes the world after an event: relationship deltas in
// both directions, memories for everyone involved and reactive goals.
func (e *Engine) applyConsequences(ctx context.Context, ev *model.LifeEvent) error {
	var (
		delta     int
		reactions []reaction
	)
	p, s := ev.PrimaryID, ev.SecondaryID

	switch ev.Type {
	case model.EventMarriage:
		delta = 2
		reactions = []reaction{
			{p, model.GoalSupportPartner, s, 7},
			{s, model.GoalSupportPartner, p, 7},
		}
	case model.EventFriendship:
		delta = 1
	case model.EventRivalry:
		delta = -1
		reactions = []reaction{{p, model.GoalConfront, s, 7}}
	case model.EventFeud:
		delta = -2
		reactions = []reaction{
			{p, model.GoalConfront, s, 8},
			{s, model.GoalConfront, p, 8},
		}
	case model.EventMentorship:
		delta = 1
		reactions = []reaction{
			{s, model.GoalSeekKnowledge, p, 6},
			{p, model.GoalMentor, s, 6},
		}
	case model.EventBetrayal:
		delta = -2
		victim, err := e.repo.Agent(p)
		if err != nil {
			return err
		}
		if victim.Traits.Courage >= e.th.RevengeCourage {
			reactions = []reaction{{p, model.GoalRevenge, s, 8}}
		} else {
			reactions = []reaction{{p, model.GoalAvoid, s, 7}}
		}
	case model.EventReconciliation:
		delta = 2
	case model.EventGraduation:
		delta = 1
	case model.EventTransformation:
		a, err := e.repo.Agent(p)
		if err != nil {
			return err
		}
		if ev.Trait != "" {
			a.Traits.Shift(ev.Trait, 1)
			if err := e.repo.SaveAgent(a); err != nil {
				return err
			}
		}
	default:
		return simerr.Validation("unknown life event type %q", ev.Type)
	}

	if delta != 0 {
		if s == "" {
			return simerr.Validation("%s event %s has no secondary agent", ev.Type, ev.ID)
		}
		if err := e.graph.Mutual(p, s, delta); err != nil {
			return err
		}
	}

	for _, id := range actors(ev) {
		if err := e.mem.Record(ctx, id, ev.Description, ev.Significance, memory.KindLongTerm); err != nil {
			return err
		}
	}
	for _, id := range ev.RelatedIDs {
		witnessed := fmt.Sprintf("Heard that %s", lowerFirst(ev.Description))
		if err := e.mem.Record(ctx, id, witnessed, max(1, ev.Significance-4), memory.KindRecent); err != nil {
			return err
		}
	}

	for _, r := range reactions {
		if _, err := e.goals.GenerateReactive(r.agentID, r.goal, string(ev.Type), r.targetID, r.priority); err != nil {
			return err
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return s
	}
	if len(s) > 4 && s[:4] == "The " {
		return "the " + s[4:]
	}
	return s
}
