package model

import "time"

// LifeEventType is a qualitative change in a relationship or trajectory.
type LifeEventType string

const (
	EventMarriage       LifeEventType = "marriage"
	EventFriendship     LifeEventType = "friendship"
	EventRivalry        LifeEventType = "rivalry"
	EventFeud           LifeEventType = "feud"
	EventMentorship     LifeEventType = "mentorship"
	EventBetrayal       LifeEventType = "betrayal"
	EventReconciliation LifeEventType = "reconciliation"
	EventTransformation LifeEventType = "transformation"
	EventGraduation     LifeEventType = "graduation"
)

// LifeEventStatus is active until resolved.
type LifeEventStatus string

const (
	LifeEventActive   LifeEventStatus = "active"
	LifeEventResolved LifeEventStatus = "resolved"
)

// LifeEvent is a detected turning point. For mentorships the primary agent is
// the mentor and Trait is the subject; for betrayals the primary is the victim.
type LifeEvent struct {
	ID           string          `json:"id"`
	Type         LifeEventType   `json:"type"`
	PrimaryID    string          `json:"primary_id"`
	SecondaryID  string          `json:"secondary_id,omitempty"`
	RelatedIDs   []string        `json:"related_ids,omitempty"`
	Description  string          `json:"description"`
	Significance int             `json:"significance"`
	Status       LifeEventStatus `json:"status"`
	Trait        TraitName       `json:"trait,omitempty"`
	PlanID       string          `json:"plan_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// Involves reports whether the agent is the primary, secondary or a related agent.
func (e *LifeEvent) Involves(agentID string) bool {
	if e.PrimaryID == agentID || e.SecondaryID == agentID {
		return true
	}
	for _, id := range e.RelatedIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// Pair returns the unordered key of the primary and secondary agents.
func (e *LifeEvent) Pair() string { return PairKey(e.PrimaryID, e.SecondaryID) }

// Clone returns a deep copy.
func (e *LifeEvent) Clone() *LifeEvent {
	c := *e
	c.RelatedIDs = append([]string(nil), e.RelatedIDs...)
	c.ResolvedAt = cloneTime(e.ResolvedAt)
	return &c
}
