package goals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

type step struct {
	title  string
	weight int
	goal   model.GoalType
}

// ambitionSteps are the milestone templates for each ambition.
var ambitionSteps = map[model.AmbitionType][]step{
	model.AmbitionBecomeLeader: {
		{"Earn the trust of neighbours", 20, model.GoalMakeFriends},
		{"Build a following", 25, model.GoalGainPower},
		{"Prove their courage", 25, model.GoalExplore},
		{"Take the lead", 30, model.GoalGainPower},
	},
	model.AmbitionBuildWealth: {
		{"Save a first purse", 20, model.GoalGainWealth},
		{"Learn a trade", 25, model.GoalLearn},
		{"Grow the business", 25, model.GoalGainWealth},
		{"Become prosperous", 30, model.GoalGainWealth},
	},
	model.AmbitionMasterCraft: {
		{"Study the basics", 20, model.GoalLearn},
		{"Make a first piece", 25, model.GoalCreate},
		{"Refine the technique", 25, model.GoalCreate},
		{"Create a masterpiece", 30, model.GoalCreate},
	},
	model.AmbitionFindLove: {
		{"Meet new people", 20, model.GoalMakeFriends},
		{"Grow close to someone", 25, model.GoalMakeFriends},
		{"Open their heart", 25, model.GoalEntertain},
		{"Commit to a partner", 30, model.GoalHelpFriend},
	},
	model.AmbitionSeekKnowledge: {
		{"Ask the right questions", 20, model.GoalInvestigate},
		{"Read everything", 25, model.GoalLearn},
		{"Find a teacher", 25, model.GoalLearn},
		{"Understand the world", 30, model.GoalInvestigate},
	},
	model.AmbitionExploreWorld: {
		{"Walk every street", 20, model.GoalExplore},
		{"Chart the outskirts", 25, model.GoalExplore},
		{"Uncover a secret", 25, model.GoalInvestigate},
		{"Know every corner", 30, model.GoalExplore},
	},
	model.AmbitionHelpCommunity: {
		{"Lend a hand", 20, model.GoalHelpFriend},
		{"Bring people together", 25, model.GoalMakeFriends},
		{"Teach what they know", 25, model.GoalLearn},
		{"Become a pillar of town", 30, model.GoalHelpFriend},
	},
	model.AmbitionBeloved: {
		{"Make people smile", 20, model.GoalEntertain},
		{"Win friends", 25, model.GoalMakeFriends},
		{"Be there for others", 25, model.GoalHelpFriend},
		{"Be loved by all", 30, model.GoalEntertain},
	},
}

// traitAmbitions maps a trait to the ambitions it feeds.
var traitAmbitions = map[model.TraitName][]model.AmbitionType{
	model.TraitAmbition:     {model.AmbitionBecomeLeader, model.AmbitionBuildWealth},
	model.TraitCreativity:   {model.AmbitionMasterCraft},
	model.TraitCharm:        {model.AmbitionFindLove, model.AmbitionBeloved},
	model.TraitIntelligence: {model.AmbitionSeekKnowledge},
	model.TraitCuriosity:    {model.AmbitionExploreWorld, model.AmbitionSeekKnowledge},
	model.TraitEmpathy:      {model.AmbitionHelpCommunity},
	model.TraitCourage:      {model.AmbitionBecomeLeader, model.AmbitionExploreWorld},
	model.TraitHumor:        {model.AmbitionBeloved},
}

// AmbitionTrait is the trait a plan exercises, used when its completion
// transforms the agent.
func AmbitionTrait(a model.AmbitionType) model.TraitName {
	switch a {
	case model.AmbitionBecomeLeader:
		return model.TraitCourage
	case model.AmbitionBuildWealth:
		return model.TraitAmbition
	case model.AmbitionMasterCraft:
		return model.TraitCreativity
	case model.AmbitionFindLove, model.AmbitionBeloved:
		return model.TraitCharm
	case model.AmbitionSeekKnowledge:
		return model.TraitIntelligence
	case model.AmbitionExploreWorld:
		return model.TraitCuriosity
	default:
		return model.TraitEmpathy
	}
}

// AmbitionWeights returns the sampling weight of each ambition for the
// agent: the summed excess over the midpoint of every trait >= 6 feeding it.
func AmbitionWeights(traits model.Traits) map[model.AmbitionType]int {
	w := make(map[model.AmbitionType]int)
	for _, trait := range model.AllTraits {
		v := traits.Get(trait)
		if v < 6 {
			continue
		}
		for _, a := range traitAmbitions[trait] {
			w[a] += v - model.TraitMidpoint
		}
	}
	return w
}

// ActivePlan returns the agent's open plan, or nil.
func (e *Engine) ActivePlan(agentID string) (*model.GoalPlan, error) {
	plans, err := e.repo.Plans(store.PlanFilter{
		AgentID:  agentID,
		Statuses: []model.PlanStatus{model.PlanPlanning, model.PlanActive, model.PlanStalled},
	})
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	return plans[len(plans)-1], nil
}

// GenerateAmbition gives the agent a long-horizon plan unless it already has
// one. Agents with no trait of 6 or more have no ambition.
func (e *Engine) GenerateAmbition(ctx context.Context, agent *model.Agent) (*model.GoalPlan, error) {
	if open, err := e.ActivePlan(agent.ID); err != nil || open != nil {
		return nil, err
	}
	weights := AmbitionWeights(agent.Traits)
	if len(weights) == 0 {
		return nil, nil
	}

	kinds := make([]model.AmbitionType, 0, len(weights))
	total := 0
	for k, w := range weights {
		kinds = append(kinds, k)
		total += w
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	pick := e.rng.IntN(total)
	var ambition model.AmbitionType
	for _, k := range kinds {
		pick -= weights[k]
		if pick < 0 {
			ambition = k
			break
		}
	}

	now := e.clock.Now()
	plan := &model.GoalPlan{
		AgentID:     agent.ID,
		Ambition:    ambition,
		Description: fmt.Sprintf("%s wants to %s", agent.Name, humanize(ambition)),
		Status:      model.PlanActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, s := range ambitionSteps[ambition] {
		plan.Milestones = append(plan.Milestones, model.Milestone{
			Title:    s.title,
			Weight:   s.weight,
			Status:   model.MilestonePending,
			GoalType: s.goal,
		})
	}
	if ambition == model.AmbitionFindLove {
		plan.TargetID, _ = e.closestFriend(agent.ID)
	}
	plan.Milestones[0].Status = model.MilestoneActive

	if err := e.repo.SavePlan(plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	if err := e.spawnSubGoal(plan); err != nil {
		return nil, err
	}
	if err := e.mem.Record(ctx, agent.ID, "Set out to "+humanize(ambition), 7, memory.KindLongTerm); err != nil {
		return nil, err
	}
	e.pub.Publish(ctx, events.New(e.clock, events.TypeGoal, plan.Description, 5, agent.ID))
	e.logger.Info("ambition formed",
		zap.String("agent", agent.ID),
		zap.String("ambition", string(ambition)))
	return plan, nil
}

func humanize(a model.AmbitionType) string {
	s := []byte(a)
	for i, c := range s {
		if c == '_' {
			s[i] = ' '
		}
	}
	return string(s)
}

// CompleteMilestone marks a milestone completed and recomputes progress as
// completed weight over total weight. Completing everything completes the plan.
func (e *Engine) CompleteMilestone(ctx context.Context, plan *model.GoalPlan, index int) error {
	if !plan.Status.Open() {
		return simerr.Conflict("plan %s is %s", plan.ID, plan.Status)
	}
	if index < 0 || index >= len(plan.Milestones) {
		return simerr.Validation("milestone %d out of range for plan %s", index, plan.ID)
	}
	m := &plan.Milestones[index]
	if m.Status == model.MilestoneCompleted {
		return simerr.Conflict("milestone %d of plan %s already completed", index, plan.ID)
	}

	now := e.clock.Now()
	m.Status = model.MilestoneCompleted
	m.CompletedAt = &now
	plan.UpdatedAt = now

	var done, total int
	for _, ms := range plan.Milestones {
		total += ms.Weight
		if ms.Status == model.MilestoneCompleted {
			done += ms.Weight
		}
	}
	if total > 0 {
		plan.Progress = float64(done) / float64(total) * 100
	}
	if plan.Progress >= 100 {
		plan.Status = model.PlanCompleted
		plan.CompletedAt = &now
		e.pub.Publish(ctx, events.New(e.clock, events.TypeGoal,
			fmt.Sprintf("%s fulfilled an ambition: %s", plan.AgentID, humanize(plan.Ambition)), 7, plan.AgentID))
	} else if plan.Status == model.PlanStalled {
		plan.Status = model.PlanActive
	}
	return e.repo.SavePlan(plan)
}

// CheckPlanProgress advances the agent's plan: once enough goals linked to
// the active milestone are completed the milestone completes and the next
// pending one is promoted. Idle plans stall and are eventually abandoned.
func (e *Engine) CheckPlanProgress(ctx context.Context, agent *model.Agent) (*model.GoalPlan, error) {
	plan, err := e.ActivePlan(agent.ID)
	if err != nil || plan == nil {
		return nil, err
	}
	now := e.clock.Now()

	idx := plan.ActiveMilestone()
	if idx >= 0 {
		linked, err := e.repo.Goals(store.GoalFilter{AgentID: agent.ID, PlanID: plan.ID, Status: model.GoalCompleted})
		if err != nil {
			return nil, err
		}
		count := 0
		for _, g := range linked {
			if g.MilestoneIndex == idx {
				count++
			}
		}
		if count >= e.th.GoalsPerStep {
			if err := e.CompleteMilestone(ctx, plan, idx); err != nil {
				return nil, err
			}
			if plan.Status == model.PlanCompleted {
				return plan, nil
			}
			idx = -1
		} else if count > 0 && plan.Status == model.PlanStalled && latestCompletion(linked).After(plan.UpdatedAt) {
			plan.Status = model.PlanActive
			plan.UpdatedAt = now
			if err := e.repo.SavePlan(plan); err != nil {
				return nil, err
			}
		}
	}

	if idx < 0 {
		next := plan.NextPending()
		if next < 0 {
			return plan, nil
		}
		plan.Milestones[next].Status = model.MilestoneActive
		plan.UpdatedAt = now
		if err := e.repo.SavePlan(plan); err != nil {
			return nil, err
		}
	}

	idle := now.Sub(plan.UpdatedAt)
	switch {
	case plan.Status == model.PlanStalled && idle >= e.th.PlanAbandon.Duration():
		plan.Status = model.PlanAbandoned
		plan.UpdatedAt = now
		if err := e.abandonLinked(plan); err != nil {
			return nil, err
		}
		e.logger.Info("plan abandoned", zap.String("agent", agent.ID), zap.String("plan", plan.ID))
		return plan, e.repo.SavePlan(plan)
	case plan.Status == model.PlanActive && idle >= e.th.PlanStall.Duration():
		plan.Status = model.PlanStalled
		if err := e.repo.SavePlan(plan); err != nil {
			return nil, err
		}
	}

	return plan, e.spawnSubGoal(plan)
}

func latestCompletion(goals []*model.Goal) (t time.Time) {
	for _, g := range goals {
		if g.CompletedAt != nil && g.CompletedAt.After(t) {
			t = *g.CompletedAt
		}
	}
	return t
}

// spawnSubGoal keeps one active goal linked to the active milestone.
func (e *Engine) spawnSubGoal(plan *model.GoalPlan) error {
	idx := plan.ActiveMilestone()
	if idx < 0 || !plan.Status.Open() {
		return nil
	}
	linked, err := e.repo.Goals(store.GoalFilter{AgentID: plan.AgentID, PlanID: plan.ID, Status: model.GoalActive})
	if err != nil || len(linked) > 0 {
		return err
	}
	m := plan.Milestones[idx]
	target := ""
	if m.GoalType == model.GoalHelpFriend {
		target = plan.TargetID
		if target == "" {
			if target, err = e.closestFriend(plan.AgentID); err != nil {
				return err
			}
		}
		if target == "" {
			m.GoalType = model.GoalMakeFriends
		}
	}
	g, err := e.save(plan.AgentID, m.GoalType, model.CategoryDesire, m.Title, 5, target)
	if err != nil {
		return err
	}
	g.PlanID = plan.ID
	g.MilestoneIndex = idx
	return e.repo.SaveGoal(g)
}

func (e *Engine) abandonLinked(plan *model.GoalPlan) error {
	linked, err := e.repo.Goals(store.GoalFilter{AgentID: plan.AgentID, PlanID: plan.ID, Status: model.GoalActive})
	if err != nil {
		return err
	}
	for _, g := range linked {
		g.Status = model.GoalAbandoned
		g.UpdatedAt = e.clock.Now()
		if err := e.repo.SaveGoal(g); err != nil {
			return err
		}
	}
	return nil
}
