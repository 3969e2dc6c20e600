package model

import "time"

// FactionStatus is derived from the active member count.
type FactionStatus string

const (
	FactionForming    FactionStatus = "forming"
	FactionActive     FactionStatus = "active"
	FactionStruggling FactionStatus = "struggling"
	FactionDisbanded  FactionStatus = "disbanded"
)

// Role is a member's rank inside a faction.
type Role string

const (
	RoleFounder Role = "founder"
	RoleLeader  Role = "leader"
	RoleOfficer Role = "officer"
	RoleMember  Role = "member"
	RoleRecruit Role = "recruit"
	RoleOutcast Role = "outcast"
)

// Faction is a named group of agents.
type Faction struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	FounderID   string        `json:"founder_id"`
	Status      FactionStatus `json:"status"`
	Beliefs     []string      `json:"beliefs"`
	Goals       []string      `json:"goals"`
	Location    string        `json:"location"`
	CreatedAt   time.Time     `json:"created_at"`
	DisbandedAt *time.Time    `json:"disbanded_at,omitempty"`
}

// Clone returns a deep copy.
func (f *Faction) Clone() *Faction {
	c := *f
	c.Beliefs = append([]string(nil), f.Beliefs...)
	c.Goals = append([]string(nil), f.Goals...)
	c.DisbandedAt = cloneTime(f.DisbandedAt)
	return &c
}

const (
	MinLoyalty = 0
	MaxLoyalty = 100
)

// ClampLoyalty bounds loyalty to [MinLoyalty, MaxLoyalty].
func ClampLoyalty(v int) int { return clampInt(v, MinLoyalty, MaxLoyalty) }

// Membership links an agent to a faction.
type Membership struct {
	ID        string     `json:"id"`
	FactionID string     `json:"faction_id"`
	AgentID   string     `json:"agent_id"`
	Role      Role       `json:"role"`
	Loyalty   int        `json:"loyalty"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the membership has not ended.
func (m *Membership) Active() bool { return m.LeftAt == nil }

// Clone returns a deep copy.
func (m *Membership) Clone() *Membership {
	c := *m
	c.LeftAt = cloneTime(m.LeftAt)
	return &c
}

// FactionRelationType is derived from the faction relationship score.
type FactionRelationType string

const (
	FactionAlly     FactionRelationType = "ally"
	FactionFriendly FactionRelationType = "friendly"
	FactionNeutral  FactionRelationType = "neutral"
	FactionRival    FactionRelationType = "rival"
	FactionEnemy    FactionRelationType = "enemy"
)

const (
	MinFactionScore   = -100
	MaxFactionScore   = 100
	MaxFactionHistory = 20
)

// FactionTypeForScore maps a faction relationship score to its type.
func FactionTypeForScore(score int) FactionRelationType {
	switch {
	case score >= 50:
		return FactionAlly
	case score >= 15:
		return FactionFriendly
	case score > -15:
		return FactionNeutral
	case score > -50:
		return FactionRival
	default:
		return FactionEnemy
	}
}

// FactionRelationEntry records one change to a faction relationship.
type FactionRelationEntry struct {
	Reason string    `json:"reason"`
	Score  int       `json:"score"`
	At     time.Time `json:"at"`
}

// FactionRelationship is the single row for an unordered faction pair;
// FactionA is always the smaller id.
type FactionRelationship struct {
	ID        string                 `json:"id"`
	FactionA  string                 `json:"faction_a"`
	FactionB  string                 `json:"faction_b"`
	Type      FactionRelationType    `json:"type"`
	Score     int                    `json:"score"`
	History   []FactionRelationEntry `json:"history"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Clone returns a deep copy.
func (r *FactionRelationship) Clone() *FactionRelationship {
	c := *r
	c.History = append([]FactionRelationEntry(nil), r.History...)
	return &c
}

// CanonicalPair orders two faction ids smaller first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
