package model

import "time"

// ArcType is the kind of story an arc tells.
type ArcType string

const (
	ArcLoveStory      ArcType = "love_story"
	ArcRivalry        ArcType = "rivalry"
	ArcFriendship     ArcType = "friendship"
	ArcMentorship     ArcType = "mentorship"
	ArcBetrayal       ArcType = "betrayal"
	ArcRedemption     ArcType = "redemption"
	ArcRiseToPower    ArcType = "rise_to_power"
	ArcTransformation ArcType = "transformation"
)

// ArcStatus follows the act the arc is in.
type ArcStatus string

const (
	ArcForming       ArcStatus = "forming"
	ArcRisingAction  ArcStatus = "rising_action"
	ArcClimax        ArcStatus = "climax"
	ArcFallingAction ArcStatus = "falling_action"
	ArcResolution    ArcStatus = "resolution"
	ArcAbandoned     ArcStatus = "abandoned"
)

// FinalAct is the index of the resolution act.
const FinalAct = 4

var actStatus = [FinalAct + 1]ArcStatus{
	ArcForming, ArcRisingAction, ArcClimax, ArcFallingAction, ArcResolution,
}

// ActNames are the display names of the five acts.
var ActNames = [FinalAct + 1]string{
	"Exposition", "Rising Action", "Climax", "Falling Action", "Resolution",
}

// StatusForAct maps an act index to the arc status.
func StatusForAct(act int) ArcStatus {
	if act < 0 || act > FinalAct {
		return ""
	}
	return actStatus[act]
}

// ActStatus is the state of one act.
type ActStatus string

const (
	ActInProgress ActStatus = "in_progress"
	ActComplete   ActStatus = "complete"
)

// Act is one of the five acts of an arc.
type Act struct {
	Number       int        `json:"number"`
	Name         string     `json:"name"`
	Status       ActStatus  `json:"status"`
	EventIDs     []string   `json:"event_ids"`
	KeyMoments   []string   `json:"key_moments"`
	TurningPoint string     `json:"turning_point,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NarrativeArc is a multi-act storyline among agents.
type NarrativeArc struct {
	ID           string     `json:"id"`
	Type         ArcType    `json:"type"`
	Title        string     `json:"title"`
	PrimaryID    string     `json:"primary_id"`
	SecondaryID  string     `json:"secondary_id,omitempty"`
	Theme        string     `json:"theme"`
	Acts         []Act      `json:"acts"`
	CurrentAct   int        `json:"current_act"`
	Status       ArcStatus  `json:"status"`
	Significance int        `json:"significance"`
	Resolution   string     `json:"resolution,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	LastEventAt  time.Time  `json:"last_event_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Open reports whether the arc can still change.
func (a *NarrativeArc) Open() bool {
	return a.Status != ArcResolution && a.Status != ArcAbandoned
}

// Involves reports whether the agent is a protagonist of the arc.
func (a *NarrativeArc) Involves(agentID string) bool {
	return a.PrimaryID == agentID || a.SecondaryID == agentID
}

// Current returns the act in progress, or nil for malformed arcs.
func (a *NarrativeArc) Current() *Act {
	if a.CurrentAct < 0 || a.CurrentAct >= len(a.Acts) {
		return nil
	}
	return &a.Acts[a.CurrentAct]
}

// Clone returns a deep copy.
func (a *NarrativeArc) Clone() *NarrativeArc {
	c := *a
	c.Acts = make([]Act, len(a.Acts))
	for i, act := range a.Acts {
		act.EventIDs = append([]string(nil), act.EventIDs...)
		act.KeyMoments = append([]string(nil), act.KeyMoments...)
		act.CompletedAt = cloneTime(act.CompletedAt)
		c.Acts[i] = act
	}
	c.CompletedAt = cloneTime(a.CompletedAt)
	return &c
}

// ArcEvent links an arc act to a world event.
type ArcEvent struct {
	ID           string    `json:"id"`
	ArcID        string    `json:"arc_id"`
	Act          int       `json:"act"`
	EventID      string    `json:"event_id"`
	Description  string    `json:"description"`
	TurningPoint bool      `json:"turning_point"`
	At           time.Time `json:"at"`
}
