package model

import "time"

// RelationType is derived from the relationship score.
type RelationType string

const (
	RelationRival        RelationType = "rival"
	RelationSuspicious   RelationType = "suspicious"
	RelationNeutral      RelationType = "neutral"
	RelationAcquaintance RelationType = "acquaintance"
	RelationFriend       RelationType = "friend"
	RelationCloseFriend  RelationType = "close_friend"
)

const (
	MinScore   = -10
	MaxScore   = 10
	MaxHistory = 10
)

// TypeForScore maps a score to its relationship type.
func TypeForScore(score int) RelationType {
	switch {
	case score <= -6:
		return RelationRival
	case score <= -2:
		return RelationSuspicious
	case score <= 1:
		return RelationNeutral
	case score <= 4:
		return RelationAcquaintance
	case score <= 7:
		return RelationFriend
	default:
		return RelationCloseFriend
	}
}

// ClampScore bounds a relationship score to [MinScore, MaxScore].
func ClampScore(score int) int { return clampInt(score, MinScore, MaxScore) }

// Interaction is one entry in a relationship's history.
type Interaction struct {
	Reason string    `json:"reason"`
	Delta  int       `json:"delta"`
	At     time.Time `json:"at"`
}

// Relationship is the directed affinity of AgentID toward TargetID.
type Relationship struct {
	ID               string        `json:"id"`
	AgentID          string        `json:"agent_id"`
	TargetID         string        `json:"target_id"`
	Score            int           `json:"score"`
	Type             RelationType  `json:"type"`
	History          []Interaction `json:"history"`
	InteractionCount int           `json:"interaction_count"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Record applies an interaction: score delta, history entry and counter.
func (r *Relationship) Record(delta int, reason string, at time.Time) {
	r.Shift(delta, at)
	r.History = append(r.History, Interaction{Reason: reason, Delta: delta, At: at})
	if len(r.History) > MaxHistory {
		r.History = append([]Interaction(nil), r.History[len(r.History)-MaxHistory:]...)
	}
	r.InteractionCount++
}

// Shift changes the score without recording an interaction.
func (r *Relationship) Shift(delta int, at time.Time) {
	r.Score = ClampScore(r.Score + delta)
	r.Type = TypeForScore(r.Score)
	r.UpdatedAt = at
}

// LastInteraction returns the newest history entry.
func (r *Relationship) LastInteraction() (Interaction, bool) {
	if len(r.History) == 0 {
		return Interaction{}, false
	}
	return r.History[len(r.History)-1], true
}

// Clone returns a deep copy.
func (r *Relationship) Clone() *Relationship {
	c := *r
	c.History = append([]Interaction(nil), r.History...)
	return &c
}

// PairKey is an order-independent key for two agent ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
