package decision

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

// Tutor gives a lesson when two agents in a mentorship spend time together.
type Tutor interface {
	Lesson(a, b string) (bool, error)
}

// Executor applies the effects of actions to the world. Callers hold the
// world lock.
type Executor struct {
	repo   store.Repository
	tutor  Tutor
	graph  *world.RelationshipGraph
	clock  clock.Clock
	rng    *rand.Rand
	mem    memory.Recorder
	pub    events.Publisher
	logger *zap.Logger
}

// NewExecutor creates an action executor.
func NewExecutor(repo store.Repository, graph *world.RelationshipGraph, clk clock.Clock, rng *rand.Rand, mem memory.Recorder, pub events.Publisher, logger *zap.Logger) *Executor {
	return &Executor{repo: repo, graph: graph, clock: clk, rng: rng, mem: mem, pub: pub, logger: logger}
}

// SetTutor enables mentorship lessons during talk and help actions.
func (x *Executor) SetTutor(t Tutor) {
	x.tutor = t
}

// Execute carries out the action for the agent.
func (x *Executor) Execute(ctx context.Context, agent *model.Agent, act Action) error {
	var target *model.Agent
	if act.Social() {
		var err error
		if target, err = x.target(agent, act.TargetID); err != nil {
			return err
		}
	}

	var (
		summary      string
		significance = 1
	)
	switch act.Kind {
	case KindIdle:
		summary = fmt.Sprintf("%s idles", agent.Name)
	case KindEat:
		relief := 2.0
		if agent.Inventory["food"] > 0 {
			agent.Inventory["food"]--
			relief = 5
		}
		agent.Needs.Hunger = model.ClampNeed(agent.Needs.Hunger - relief)
		summary = fmt.Sprintf("%s eats", agent.Name)
	case KindSleep:
		agent.Needs.Energy = model.ClampNeed(agent.Needs.Energy - 3)
		summary = fmt.Sprintf("%s naps", agent.Name)
	case KindTalk:
		if err := x.talk(agent, target); err != nil {
			return err
		}
		summary = fmt.Sprintf("%s talks with %s", agent.Name, target.Name)
		if err := x.lesson(agent, target); err != nil {
			return err
		}
	case KindHelp:
		if err := x.help(agent, target); err != nil {
			return err
		}
		summary, significance = fmt.Sprintf("%s helps %s", agent.Name, target.Name), 2
		if err := x.lesson(agent, target); err != nil {
			return err
		}
	case KindConfront:
		if err := x.confront(ctx, agent, target); err != nil {
			return err
		}
		summary, significance = fmt.Sprintf("%s confronts %s", agent.Name, target.Name), 4
	case KindWork:
		if agent.Inventory == nil {
			agent.Inventory = make(map[string]int)
		}
		agent.Inventory["coins"] += 2
		if x.rng.IntN(3) == 0 {
			agent.Inventory["food"]++
		}
		agent.Needs.Energy = model.ClampNeed(agent.Needs.Energy + 0.5)
		summary = fmt.Sprintf("%s works", agent.Name)
	case KindExplore:
		from := agent.Location
		for agent.Location == from && len(world.Locations) > 1 {
			agent.Location = world.Locations[x.rng.IntN(len(world.Locations))]
		}
		summary = fmt.Sprintf("%s wanders from %s to %s", agent.Name, from, agent.Location)
	case KindStudy:
		agent.Needs.Energy = model.ClampNeed(agent.Needs.Energy + 0.3)
		summary = fmt.Sprintf("%s studies", agent.Name)
	case KindMove:
		if !world.ValidLocation(act.Location) {
			return simerr.Validation("unknown location %q", act.Location)
		}
		agent.Location = act.Location
		summary = fmt.Sprintf("%s heads to %s", agent.Name, act.Location)
	default:
		return simerr.Validation("unknown action %q", act.Kind)
	}

	world.UpdateMood(agent)
	if err := x.repo.SaveAgent(agent); err != nil {
		return err
	}
	if err := x.advanceGoals(agent, act); err != nil {
		return err
	}
	if act.Kind != KindIdle {
		if err := x.mem.Record(ctx, agent.ID, summary, significance, memory.KindWorking); err != nil {
			return err
		}
	}

	actors := []string{agent.ID}
	if target != nil {
		actors = append(actors, target.ID)
	}
	ev := events.New(x.clock, events.TypeAction, summary, significance, actors...)
	ev.LocationID = agent.Location
	ev.Data = map[string]string{"action": string(act.Kind)}
	x.pub.Publish(ctx, ev)
	return nil
}

func (x *Executor) target(agent *model.Agent, id string) (*model.Agent, error) {
	if id == "" {
		return nil, simerr.Validation("action needs a target")
	}
	if id == agent.ID {
		return nil, simerr.Validation("%s cannot target itself", agent.ID)
	}
	t, err := x.repo.Agent(id)
	if err != nil {
		return nil, err
	}
	if t.Location != agent.Location {
		return nil, simerr.Validation("%s is not at %s", t.Name, agent.Location)
	}
	if !t.Awake() {
		return nil, simerr.Validation("%s is asleep", t.Name)
	}
	return t, nil
}

func (x *Executor) talk(agent, target *model.Agent) error {
	delta := 1
	if agent.Traits.Charm >= 7 || agent.Traits.Humor >= 7 {
		delta = 2
	}
	reason := "chatted"
	r, err := x.graph.Get(agent.ID, target.ID)
	if err != nil {
		return err
	}
	if r != nil && r.Score <= -4 {
		delta, reason = -1, "argued"
	}
	if _, err := x.graph.Interact(agent.ID, target.ID, delta, reason+" with "+target.Name); err != nil {
		return err
	}
	if _, err := x.graph.Interact(target.ID, agent.ID, delta, reason+" with "+agent.Name); err != nil {
		return err
	}
	agent.Needs.Social = model.ClampNeed(agent.Needs.Social - 3)
	target.Needs.Social = model.ClampNeed(target.Needs.Social - 2)
	return x.repo.SaveAgent(target)
}

func (x *Executor) help(agent, target *model.Agent) error {
	if _, err := x.graph.Interact(target.ID, agent.ID, 2, "was helped by "+agent.Name); err != nil {
		return err
	}
	if _, err := x.graph.Interact(agent.ID, target.ID, 1, "helped "+target.Name); err != nil {
		return err
	}
	agent.Needs.Social = model.ClampNeed(agent.Needs.Social - 1)
	target.Needs.Hunger = model.ClampNeed(target.Needs.Hunger - 1)
	return x.repo.SaveAgent(target)
}

func (x *Executor) lesson(agent, target *model.Agent) error {
	if x.tutor == nil {
		return nil
	}
	taught, err := x.tutor.Lesson(agent.ID, target.ID)
	if err != nil {
		return fmt.Errorf("lesson: %w", err)
	}
	if taught {
		x.logger.Debug("mentorship lesson", zap.String("agent", agent.ID), zap.String("with", target.ID))
	}
	return nil
}

// confront damages both sides of the relationship. Witnesses at the same
// place side with the actor when they dislike the target and turn on the
// actor when they like the target.
func (x *Executor) confront(ctx context.Context, agent, target *model.Agent) error {
	if _, err := x.graph.Interact(agent.ID, target.ID, -2, "confronted "+target.Name); err != nil {
		return err
	}
	if _, err := x.graph.Interact(target.ID, agent.ID, -3, "was confronted by "+agent.Name); err != nil {
		return err
	}

	all, err := x.repo.Agents()
	if err != nil {
		return err
	}
	for _, w := range all {
		if w.ID == agent.ID || w.ID == target.ID || w.Location != agent.Location || !w.Awake() {
			continue
		}
		r, err := x.graph.Get(w.ID, target.ID)
		if err != nil {
			return err
		}
		if r == nil || r.Score == 0 {
			continue
		}
		delta, reason := 1, fmt.Sprintf("saw %s stand up to %s", agent.Name, target.Name)
		if r.Score > 0 {
			delta, reason = -1, fmt.Sprintf("saw %s pick on %s", agent.Name, target.Name)
		}
		if _, err := x.graph.Interact(w.ID, agent.ID, delta, reason); err != nil {
			return err
		}
		if err := x.mem.Record(ctx, w.ID, reason, 3, memory.KindRecent); err != nil {
			return err
		}
	}
	return nil
}

// serves reports whether the action moves the goal forward.
func serves(act Action, g *model.Goal) bool {
	targeted := g.TargetID == "" || g.TargetID == act.TargetID
	switch g.Type {
	case model.GoalMakeFriends, model.GoalEntertain:
		return act.Kind == KindTalk
	case model.GoalReconcile, model.GoalSeekKnowledge:
		if g.Type == model.GoalSeekKnowledge && act.Kind == KindStudy {
			return true
		}
		return act.Kind == KindTalk && targeted
	case model.GoalHelpFriend, model.GoalSupportPartner, model.GoalMentor:
		return act.Kind == KindHelp && targeted
	case model.GoalConfront, model.GoalRevenge:
		return act.Kind == KindConfront && targeted
	case model.GoalAvoid:
		return act.Kind == KindExplore || act.Kind == KindMove
	case model.GoalInvestigate:
		return act.Kind == KindExplore || act.Kind == KindStudy
	case model.GoalExplore:
		return act.Kind == KindExplore
	case model.GoalLearn:
		return act.Kind == KindStudy
	case model.GoalGainWealth, model.GoalCreate:
		return act.Kind == KindWork
	case model.GoalGainPower:
		return act.Kind == KindWork || act.Kind == KindTalk
	}
	return false
}

// advanceGoals bumps progress on the agent's non-need goals the action served.
func (x *Executor) advanceGoals(agent *model.Agent, act Action) error {
	active, err := x.repo.Goals(store.GoalFilter{AgentID: agent.ID, Status: model.GoalActive})
	if err != nil {
		return err
	}
	now := x.clock.Now()
	for _, g := range active {
		if g.Type.IsNeed() || !serves(act, g) {
			continue
		}
		g.Progress++
		g.UpdatedAt = now
		if err := x.repo.SaveGoal(g); err != nil {
			return err
		}
	}
	return nil
}
