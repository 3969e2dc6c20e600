// Package goals generates, ranks and completes agent goals and long-horizon plans.
package goals

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// Thresholds tune goal generation and completion.
type Thresholds struct {
	HungerGoal      float64 `json:"hunger_goal"`
	EnergyGoal      float64 `json:"energy_goal"`
	SocialGoal      float64 `json:"social_goal"`
	HungerSated     float64 `json:"hunger_sated"`
	EnergyRested    float64 `json:"energy_rested"`
	SocialSated     float64 `json:"social_sated"`
	DesireChance    float64 `json:"desire_chance"` // per trait point above the midpoint
	MaxDesires      int     `json:"max_desires"`
	ReactiveFloor   int     `json:"reactive_floor"`
	ReactiveDefault int     `json:"reactive_default"`
	GoalsPerStep    int     `json:"goals_per_milestone"`
	PlanStall       Days    `json:"plan_stall_days"`
	PlanAbandon     Days    `json:"plan_abandon_days"`
}

// Days is a duration expressed in simulated days.
type Days int

// Duration converts to a time.Duration.
func (d Days) Duration() time.Duration { return time.Duration(d) * 24 * time.Hour }

// DefaultThresholds returns the standard goal tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HungerGoal:      6,
		EnergyGoal:      7,
		SocialGoal:      6,
		HungerSated:     3,
		EnergyRested:    2,
		SocialSated:     3,
		DesireChance:    0.08,
		MaxDesires:      3,
		ReactiveFloor:   6,
		ReactiveDefault: 7,
		GoalsPerStep:    3,
		PlanStall:       7,
		PlanAbandon:     14,
	}
}

// Engine owns goal and plan state transitions. Its methods expect the
// world lock to be held by the caller.
type Engine struct {
	repo   store.Repository
	clock  clock.Clock
	rng    *rand.Rand
	pub    events.Publisher
	mem    memory.Recorder
	th     Thresholds
	logger *zap.Logger
}

// NewEngine creates a goal engine.
func NewEngine(repo store.Repository, clk clock.Clock, rng *rand.Rand, pub events.Publisher, mem memory.Recorder, th Thresholds, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, clock: clk, rng: rng, pub: pub, mem: mem, th: th, logger: logger}
}

var descriptions = map[model.GoalType]string{
	model.GoalEat:            "find something to eat",
	model.GoalSleep:          "get some rest",
	model.GoalSocialize:      "spend time with someone",
	model.GoalInvestigate:    "look into something curious",
	model.GoalGainWealth:     "earn more coin",
	model.GoalGainPower:      "gain influence",
	model.GoalCreate:         "make something new",
	model.GoalHelpFriend:     "help a friend",
	model.GoalEntertain:      "make people laugh",
	model.GoalLearn:          "learn something",
	model.GoalExplore:        "see somewhere new",
	model.GoalMakeFriends:    "make a new friend",
	model.GoalConfront:       "confront a rival",
	model.GoalSupportPartner: "support their partner",
	model.GoalRevenge:        "get even",
	model.GoalAvoid:          "keep away from someone",
	model.GoalReconcile:      "make peace",
	model.GoalSeekKnowledge:  "learn from a mentor",
	model.GoalMentor:         "teach a student",
}

// Describe returns the default description of a goal type.
func Describe(t model.GoalType) string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return string(t)
}

// desireTraits maps a trait to the desires it inspires.
var desireTraits = map[model.TraitName][]model.GoalType{
	model.TraitCuriosity:    {model.GoalInvestigate, model.GoalExplore},
	model.TraitAmbition:     {model.GoalGainWealth, model.GoalGainPower},
	model.TraitCreativity:   {model.GoalCreate},
	model.TraitEmpathy:      {model.GoalHelpFriend},
	model.TraitHumor:        {model.GoalEntertain},
	model.TraitIntelligence: {model.GoalLearn},
	model.TraitCharm:        {model.GoalMakeFriends},
	model.TraitCourage:      {model.GoalExplore},
}

// Generate creates NEED goals for pressing needs and may roll one DESIRE
// goal from the agent's strong traits. It returns the goals it saved.
func (e *Engine) Generate(agent *model.Agent) ([]*model.Goal, error) {
	active, err := e.repo.Goals(store.GoalFilter{AgentID: agent.ID, Status: model.GoalActive})
	if err != nil {
		return nil, err
	}
	has := make(map[model.GoalType]bool, len(active))
	desires := 0
	for _, g := range active {
		has[g.Type] = true
		if g.Category == model.CategoryDesire {
			desires++
		}
	}

	var created []*model.Goal
	needs := []struct {
		typ       model.GoalType
		value     float64
		threshold float64
	}{
		{model.GoalEat, agent.Needs.Hunger, e.th.HungerGoal},
		{model.GoalSleep, agent.Needs.Energy, e.th.EnergyGoal},
		{model.GoalSocialize, agent.Needs.Social, e.th.SocialGoal},
	}
	for _, n := range needs {
		if n.value <= n.threshold || has[n.typ] {
			continue
		}
		g, err := e.save(agent.ID, n.typ, model.CategoryNeed, Describe(n.typ), int(math.Round(n.value)), "")
		if err != nil {
			return created, err
		}
		created = append(created, g)
	}

	if desires < e.th.MaxDesires {
		if typ, trait, ok := e.rollDesire(agent, has); ok {
			target := ""
			if typ == model.GoalHelpFriend {
				target, err = e.closestFriend(agent.ID)
				if err != nil {
					return created, err
				}
			}
			if typ != model.GoalHelpFriend || target != "" {
				pri := 2 + agent.Traits.Get(trait) - model.TraitMidpoint
				g, err := e.save(agent.ID, typ, model.CategoryDesire, Describe(typ), min(pri, 5), target)
				if err != nil {
					return created, err
				}
				created = append(created, g)
			}
		}
	}
	return created, nil
}

// rollDesire picks at most one desire. Each trait above the midpoint gets a
// chance proportional to its excess.
func (e *Engine) rollDesire(agent *model.Agent, has map[model.GoalType]bool) (model.GoalType, model.TraitName, bool) {
	for _, trait := range model.AllTraits {
		excess := agent.Traits.Get(trait) - model.TraitMidpoint
		if excess <= 0 {
			continue
		}
		if e.rng.Float64() >= float64(excess)*e.th.DesireChance {
			continue
		}
		options := desireTraits[trait]
		typ := options[e.rng.IntN(len(options))]
		if has[typ] {
			continue
		}
		return typ, trait, true
	}
	return "", "", false
}

func (e *Engine) closestFriend(agentID string) (string, error) {
	rels, err := e.repo.RelationshipsFrom(agentID)
	if err != nil {
		return "", err
	}
	best, bestScore := "", 4
	for _, r := range rels {
		if r.Score > bestScore {
			best, bestScore = r.TargetID, r.Score
		}
	}
	return best, nil
}

func (e *Engine) save(agentID string, typ model.GoalType, cat model.GoalCategory, desc string, priority int, target string) (*model.Goal, error) {
	now := e.clock.Now()
	g := &model.Goal{
		AgentID:     agentID,
		Type:        typ,
		Category:    cat,
		Description: desc,
		Priority:    model.ClampPriority(priority),
		TargetID:    target,
		Status:      model.GoalActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.SaveGoal(g); err != nil {
		return nil, fmt.Errorf("save goal: %w", err)
	}
	return g, nil
}

// Prioritize returns the goals ordered by priority, then category (need,
// reactive, desire), then age, oldest first. The input is not modified.
func Prioritize(goals []*model.Goal) []*model.Goal {
	out := append([]*model.Goal(nil), goals...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if ra, rb := a.Category.Rank(), b.Category.Rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// opposed lists goal types that cannot both target the same agent.
var opposed = map[model.GoalType][]model.GoalType{
	model.GoalConfront:       {model.GoalHelpFriend, model.GoalSupportPartner, model.GoalReconcile},
	model.GoalRevenge:        {model.GoalHelpFriend, model.GoalSupportPartner},
	model.GoalAvoid:          {model.GoalSocialize, model.GoalReconcile},
	model.GoalHelpFriend:     {model.GoalConfront, model.GoalRevenge},
	model.GoalSupportPartner: {model.GoalConfront, model.GoalRevenge},
	model.GoalReconcile:      {model.GoalConfront, model.GoalAvoid},
	model.GoalSocialize:      {model.GoalAvoid},
}

// Opposed reports whether two goal types conflict when aimed at one target.
func Opposed(a, b model.GoalType) bool {
	for _, t := range opposed[a] {
		if t == b {
			return true
		}
	}
	return false
}

// winner decides which of two conflicting goals to keep: higher priority,
// then most recently created.
func winner(a, b *model.Goal) (keep, drop *model.Goal) {
	if beats(a, b) {
		return a, b
	}
	return b, a
}

func beats(a, b *model.Goal) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ResolveConflicts abandons duplicate NEED goals and opposed goals aimed at
// the same target, keeping the winner of each conflict.
func (e *Engine) ResolveConflicts(agentID string) ([]*model.Goal, error) {
	active, err := e.repo.Goals(store.GoalFilter{AgentID: agentID, Status: model.GoalActive})
	if err != nil {
		return nil, err
	}
	dropped := ResolveConflicts(active)
	now := e.clock.Now()
	for _, g := range dropped {
		g.Status = model.GoalAbandoned
		g.UpdatedAt = now
		if err := e.repo.SaveGoal(g); err != nil {
			return nil, err
		}
	}
	return dropped, nil
}

// ResolveConflicts returns the goals that lose a conflict among the given
// active goals of one agent. It does not modify them.
func ResolveConflicts(goals []*model.Goal) []*model.Goal {
	alive := make(map[string]bool, len(goals))
	for _, g := range goals {
		alive[g.ID] = true
	}
	var dropped []*model.Goal
	drop := func(g *model.Goal) {
		if alive[g.ID] {
			alive[g.ID] = false
			dropped = append(dropped, g)
		}
	}

	needs := make(map[model.GoalType]*model.Goal)
	for _, g := range goals {
		if !g.Type.IsNeed() {
			continue
		}
		if cur, ok := needs[g.Type]; ok {
			keep, lose := winner(cur, g)
			needs[g.Type] = keep
			drop(lose)
			continue
		}
		needs[g.Type] = g
	}

	// Walk the survivors strongest first so a goal only yields to one that
	// is itself kept.
	ranked := make([]*model.Goal, 0, len(goals))
	for _, g := range goals {
		if alive[g.ID] {
			ranked = append(ranked, g)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return beats(ranked[i], ranked[j]) })
	var kept []*model.Goal
	for _, g := range ranked {
		if g.TargetID != "" && opposedByKept(g, kept) {
			drop(g)
			continue
		}
		kept = append(kept, g)
	}
	return dropped
}

func opposedByKept(g *model.Goal, kept []*model.Goal) bool {
	for _, k := range kept {
		if k.TargetID == g.TargetID && (Opposed(k.Type, g.Type) || Opposed(g.Type, k.Type)) {
			return true
		}
	}
	return false
}

// requiredProgress is how many aligned actions finish a non-need goal.
func requiredProgress(t model.GoalType) int {
	switch t {
	case model.GoalConfront, model.GoalAvoid, model.GoalRevenge:
		return 1
	}
	return 3
}

// CheckCompletion reports whether the goal is done given the agent's state.
func (e *Engine) CheckCompletion(g *model.Goal, agent *model.Agent) model.GoalStatus {
	if g.Status != model.GoalActive {
		return g.Status
	}
	switch g.Type {
	case model.GoalEat:
		if agent.Needs.Hunger < e.th.HungerSated {
			return model.GoalCompleted
		}
	case model.GoalSleep:
		if agent.Needs.Energy < e.th.EnergyRested {
			return model.GoalCompleted
		}
	case model.GoalSocialize:
		if agent.Needs.Social < e.th.SocialSated {
			return model.GoalCompleted
		}
	default:
		if g.Progress >= requiredProgress(g.Type) {
			return model.GoalCompleted
		}
	}
	return model.GoalActive
}

// Refresh completes every active goal of the agent whose predicate holds.
func (e *Engine) Refresh(ctx context.Context, agent *model.Agent) ([]*model.Goal, error) {
	active, err := e.repo.Goals(store.GoalFilter{AgentID: agent.ID, Status: model.GoalActive})
	if err != nil {
		return nil, err
	}
	var done []*model.Goal
	for _, g := range active {
		if e.CheckCompletion(g, agent) != model.GoalCompleted {
			continue
		}
		if err := e.complete(ctx, agent, g); err != nil {
			return done, err
		}
		done = append(done, g)
	}
	return done, nil
}

func (e *Engine) complete(ctx context.Context, agent *model.Agent, g *model.Goal) error {
	now := e.clock.Now()
	g.Status = model.GoalCompleted
	g.UpdatedAt = now
	g.CompletedAt = &now
	if err := e.repo.SaveGoal(g); err != nil {
		return err
	}
	if g.Category == model.CategoryNeed {
		return nil
	}
	summary := fmt.Sprintf("%s managed to %s", agent.Name, g.Description)
	if err := e.mem.Record(ctx, agent.ID, summary, 4, memory.KindRecent); err != nil {
		return err
	}
	e.pub.Publish(ctx, events.New(e.clock, events.TypeGoal, summary, 3, agent.ID))
	return nil
}

// GenerateReactive creates a REACTIVE goal in response to something that
// happened. Priority 0 means the default; anything lower than the reactive
// floor is raised to it. An existing active goal of the same type and target
// is reused and its priority raised instead of creating a duplicate.
func (e *Engine) GenerateReactive(agentID string, typ model.GoalType, reason, targetID string, priority int) (*model.Goal, error) {
	if typ.IsNeed() {
		return nil, simerr.Validation("%s is a need, not a reactive goal", typ)
	}
	if _, ok := descriptions[typ]; !ok {
		return nil, simerr.Validation("unknown goal type %q", typ)
	}
	if targetID == agentID {
		return nil, simerr.Validation("agent %s cannot target itself", agentID)
	}
	if _, err := e.repo.Agent(agentID); err != nil {
		return nil, err
	}
	if targetID != "" {
		if _, err := e.repo.Agent(targetID); err != nil {
			return nil, err
		}
	}

	if priority == 0 {
		priority = e.th.ReactiveDefault
	}
	priority = model.ClampPriority(max(priority, e.th.ReactiveFloor))

	existing, err := e.repo.Goals(store.GoalFilter{AgentID: agentID, Status: model.GoalActive, Type: typ})
	if err != nil {
		return nil, err
	}
	for _, g := range existing {
		if g.TargetID == targetID {
			if priority > g.Priority {
				g.Priority = priority
				g.UpdatedAt = e.clock.Now()
				if err := e.repo.SaveGoal(g); err != nil {
					return nil, err
				}
			}
			return g, nil
		}
	}

	desc := Describe(typ)
	if reason != "" {
		desc = fmt.Sprintf("%s (%s)", desc, reason)
	}
	return e.save(agentID, typ, model.CategoryReactive, desc, priority, targetID)
}

// Active returns an agent's active goals in priority order.
func (e *Engine) Active(agentID string) ([]*model.Goal, error) {
	goals, err := e.repo.Goals(store.GoalFilter{AgentID: agentID, Status: model.GoalActive})
	if err != nil {
		return nil, err
	}
	return Prioritize(goals), nil
}

// Pass runs the periodic goal maintenance for every agent: completion,
// generation, conflict resolution and the ambition layer.
func (e *Engine) Pass(ctx context.Context) error {
	agents, err := e.repo.Agents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		if _, err := e.Refresh(ctx, a); err != nil {
			return fmt.Errorf("refresh goals for %s: %w", a.ID, err)
		}
		if _, err := e.Generate(a); err != nil {
			return fmt.Errorf("generate goals for %s: %w", a.ID, err)
		}
		if _, err := e.ResolveConflicts(a.ID); err != nil {
			return fmt.Errorf("resolve goals for %s: %w", a.ID, err)
		}
		if _, err := e.GenerateAmbition(ctx, a); err != nil {
			return fmt.Errorf("ambition for %s: %w", a.ID, err)
		}
		if _, err := e.CheckPlanProgress(ctx, a); err != nil {
			return fmt.Errorf("plan progress for %s: %w", a.ID, err)
		}
	}
	return nil
}
