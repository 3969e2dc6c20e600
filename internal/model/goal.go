package model

import "time"

// GoalCategory orders goals when priorities tie: need, then reactive, then desire.
type GoalCategory string

const (
	CategoryNeed     GoalCategory = "need"
	CategoryReactive GoalCategory = "reactive"
	CategoryDesire   GoalCategory = "desire"
)

// Rank returns the tie-break order of a category, lower first.
func (c GoalCategory) Rank() int {
	switch c {
	case CategoryNeed:
		return 0
	case CategoryReactive:
		return 1
	default:
		return 2
	}
}

// GoalType names what a goal is about.
type GoalType string

const (
	GoalEat       GoalType = "eat"
	GoalSleep     GoalType = "sleep"
	GoalSocialize GoalType = "socialize"

	GoalInvestigate GoalType = "investigate"
	GoalGainWealth  GoalType = "gain_wealth"
	GoalGainPower   GoalType = "gain_power"
	GoalCreate      GoalType = "create"
	GoalHelpFriend  GoalType = "help_friend"
	GoalEntertain   GoalType = "entertain"
	GoalLearn       GoalType = "learn"
	GoalExplore     GoalType = "explore"
	GoalMakeFriends GoalType = "make_friends"

	GoalConfront       GoalType = "confront"
	GoalSupportPartner GoalType = "support_partner"
	GoalRevenge        GoalType = "revenge"
	GoalAvoid          GoalType = "avoid"
	GoalReconcile      GoalType = "reconcile"
	GoalSeekKnowledge  GoalType = "seek_knowledge"
	GoalMentor         GoalType = "mentor"
)

// IsNeed reports whether the type is one of the basic needs.
func (t GoalType) IsNeed() bool {
	return t == GoalEat || t == GoalSleep || t == GoalSocialize
}

// GoalStatus is the lifecycle of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalAbandoned GoalStatus = "abandoned"
)

// Goal is something an agent is trying to do.
type Goal struct {
	ID             string       `json:"id"`
	AgentID        string       `json:"agent_id"`
	Type           GoalType     `json:"type"`
	Category       GoalCategory `json:"category"`
	Description    string       `json:"description"`
	Priority       int          `json:"priority"`
	TargetID       string       `json:"target_id,omitempty"`
	Status         GoalStatus   `json:"status"`
	Progress       int          `json:"progress"`
	PlanID         string       `json:"plan_id,omitempty"`
	MilestoneIndex int          `json:"milestone_index"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (g *Goal) Clone() *Goal {
	c := *g
	c.CompletedAt = cloneTime(g.CompletedAt)
	return &c
}

// ClampPriority bounds a goal priority to 1-10.
func ClampPriority(p int) int { return clampInt(p, 1, 10) }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
