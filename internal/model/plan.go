package model

import "time"

// AmbitionType is the long-horizon objective behind a goal plan.
type AmbitionType string

const (
	AmbitionBecomeLeader  AmbitionType = "become_leader"
	AmbitionBuildWealth   AmbitionType = "build_wealth"
	AmbitionMasterCraft   AmbitionType = "master_craft"
	AmbitionFindLove      AmbitionType = "find_love"
	AmbitionSeekKnowledge AmbitionType = "seek_knowledge"
	AmbitionExploreWorld  AmbitionType = "explore_world"
	AmbitionHelpCommunity AmbitionType = "help_community"
	AmbitionBeloved       AmbitionType = "become_beloved"
)

// PlanStatus is the lifecycle of a goal plan.
type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanActive    PlanStatus = "active"
	PlanStalled   PlanStatus = "stalled"
	PlanCompleted PlanStatus = "completed"
	PlanAbandoned PlanStatus = "abandoned"
)

// Open reports whether the plan still occupies the agent's single plan slot.
func (s PlanStatus) Open() bool {
	return s == PlanPlanning || s == PlanActive || s == PlanStalled
}

// MilestoneStatus is the state of one milestone.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneActive    MilestoneStatus = "active"
	MilestoneCompleted MilestoneStatus = "completed"
)

// Milestone is a weighted step of a plan. GoalType is the sub-goal it spawns.
type Milestone struct {
	Title       string          `json:"title"`
	Weight      int             `json:"weight"`
	Status      MilestoneStatus `json:"status"`
	GoalType    GoalType        `json:"goal_type"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// GoalPlan is a long-horizon ambition built from milestones.
type GoalPlan struct {
	ID          string       `json:"id"`
	AgentID     string       `json:"agent_id"`
	Ambition    AmbitionType `json:"ambition"`
	Description string       `json:"description"`
	TargetID    string       `json:"target_id,omitempty"`
	Milestones  []Milestone  `json:"milestones"`
	Progress    float64      `json:"progress"`
	Status      PlanStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ActiveMilestone returns the index of the active milestone, or -1.
func (p *GoalPlan) ActiveMilestone() int {
	for i, m := range p.Milestones {
		if m.Status == MilestoneActive {
			return i
		}
	}
	return -1
}

// NextPending returns the index of the first pending milestone, or -1.
func (p *GoalPlan) NextPending() int {
	for i, m := range p.Milestones {
		if m.Status == MilestonePending {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (p *GoalPlan) Clone() *GoalPlan {
	c := *p
	c.Milestones = make([]Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		m.CompletedAt = cloneTime(m.CompletedAt)
		c.Milestones[i] = m
	}
	c.CompletedAt = cloneTime(p.CompletedAt)
	return &c
}
