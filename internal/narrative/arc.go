// Package narrative discovers storylines in the simulation and tracks them
// through five acts.
package narrative

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// Thresholds tune arc detection and progression.
type Thresholds struct {
	EventsPerAct       int           `json:"events_per_act"`
	AbandonAfter       time.Duration `json:"-"`
	LoveScore          int           `json:"love_score"`
	LoveInteractions   int           `json:"love_interactions"`
	FriendScore        int           `json:"friend_score"`
	FriendInteractions int           `json:"friend_interactions"`
	RivalScore         int           `json:"rival_score"`
	RivalInteractions  int           `json:"rival_interactions"`
	PowerGoals         int           `json:"power_goals"`
}

// DefaultThresholds returns the standard arc tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EventsPerAct:       2,
		AbandonAfter:       14 * 24 * time.Hour,
		LoveScore:          8,
		LoveInteractions:   10,
		FriendScore:        6,
		FriendInteractions: 5,
		RivalScore:         -5,
		RivalInteractions:  3,
		PowerGoals:         1,
	}
}

// Engine detects and advances narrative arcs. Callers hold the world lock.
type Engine struct {
	repo   store.Repository
	clock  clock.Clock
	pub    events.Publisher
	th     Thresholds
	logger *zap.Logger
}

// NewEngine creates a narrative engine.
func NewEngine(repo store.Repository, clk clock.Clock, pub events.Publisher, th Thresholds, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, clock: clk, pub: pub, th: th, logger: logger}
}

// newArc builds an arc in exposition with act 0 already in progress.
func (e *Engine) newArc(typ model.ArcType, primary, secondary *model.Agent, significance int) *model.NarrativeArc {
	now := e.clock.Now()
	arc := &model.NarrativeArc{
		Type:         typ,
		PrimaryID:    primary.ID,
		Theme:        themes[typ],
		CurrentAct:   0,
		Status:       model.StatusForAct(0),
		Significance: max(1, min(10, significance)),
		DiscoveredAt: now,
		LastEventAt:  now,
		Acts:         []model.Act{openAct(0, now)},
	}
	if secondary != nil {
		arc.SecondaryID = secondary.ID
		arc.Title = fmt.Sprintf(titles[typ], primary.Name, secondary.Name)
	} else {
		arc.Title = fmt.Sprintf(titles[typ], primary.Name)
	}
	return arc
}

func openAct(n int, at time.Time) model.Act {
	return model.Act{Number: n, Name: model.ActNames[n], Status: model.ActInProgress, StartedAt: at}
}

// Advance closes the current act with the turning point and opens the next.
// It fails without touching the arc once the arc is in its final act or closed.
func (e *Engine) Advance(ctx context.Context, arc *model.NarrativeArc, turningPoint string) error {
	if !arc.Open() {
		return simerr.Conflict("arc %s is %s", arc.ID, arc.Status)
	}
	if arc.CurrentAct >= model.FinalAct {
		return simerr.Conflict("arc %s is already in its final act", arc.ID)
	}
	cur := arc.Current()
	if cur == nil {
		return simerr.Validation("arc %s has no act %d", arc.ID, arc.CurrentAct)
	}

	now := e.clock.Now()
	cur.Status = model.ActComplete
	cur.TurningPoint = turningPoint
	cur.CompletedAt = &now

	arc.CurrentAct++
	arc.Acts = append(arc.Acts, openAct(arc.CurrentAct, now))
	arc.Status = model.StatusForAct(arc.CurrentAct)
	if arc.CurrentAct == model.FinalAct {
		last := arc.Current()
		last.Status = model.ActComplete
		last.CompletedAt = &now
		arc.Resolution = turningPoint
		arc.CompletedAt = &now
	}
	if err := e.repo.SaveArc(arc); err != nil {
		return fmt.Errorf("save arc: %w", err)
	}

	e.publish(ctx, arc, fmt.Sprintf("%s enters %s", arc.Title, model.ActNames[arc.CurrentAct]), 3+arc.CurrentAct)
	e.logger.Info("arc advanced",
		zap.String("arc", arc.ID),
		zap.Int("act", arc.CurrentAct),
		zap.String("status", string(arc.Status)))
	return nil
}

// Complete resolves the arc from whatever act it is in.
func (e *Engine) Complete(ctx context.Context, arc *model.NarrativeArc, resolution string) error {
	if !arc.Open() {
		return simerr.Conflict("arc %s is %s", arc.ID, arc.Status)
	}
	now := e.clock.Now()
	if cur := arc.Current(); cur != nil {
		cur.Status = model.ActComplete
		cur.TurningPoint = resolution
		cur.CompletedAt = &now
	}
	arc.Status = model.ArcResolution
	arc.Resolution = resolution
	arc.CompletedAt = &now
	if err := e.repo.SaveArc(arc); err != nil {
		return fmt.Errorf("save arc: %w", err)
	}
	e.publish(ctx, arc, fmt.Sprintf("%s has ended: %s", arc.Title, resolution), arc.Significance)
	return nil
}

// Abandon closes the arc without advancing it.
func (e *Engine) Abandon(ctx context.Context, arc *model.NarrativeArc, reason string) error {
	if !arc.Open() {
		return simerr.Conflict("arc %s is %s", arc.ID, arc.Status)
	}
	arc.Status = model.ArcAbandoned
	arc.Resolution = reason
	if err := e.repo.SaveArc(arc); err != nil {
		return fmt.Errorf("save arc: %w", err)
	}
	e.logger.Debug("arc abandoned", zap.String("arc", arc.ID), zap.String("reason", reason))
	return nil
}

// AdvanceArc advances the arc with the given id.
func (e *Engine) AdvanceArc(ctx context.Context, arcID, turningPoint string) (*model.NarrativeArc, error) {
	arc, err := e.repo.Arc(arcID)
	if err != nil {
		return nil, err
	}
	return arc, e.Advance(ctx, arc, turningPoint)
}

// CompleteArc resolves the arc with the given id.
func (e *Engine) CompleteArc(ctx context.Context, arcID, resolution string) (*model.NarrativeArc, error) {
	arc, err := e.repo.Arc(arcID)
	if err != nil {
		return nil, err
	}
	return arc, e.Complete(ctx, arc, resolution)
}

// AbandonArc abandons the arc with the given id.
func (e *Engine) AbandonArc(ctx context.Context, arcID, reason string) (*model.NarrativeArc, error) {
	arc, err := e.repo.Arc(arcID)
	if err != nil {
		return nil, err
	}
	return arc, e.Abandon(ctx, arc, reason)
}

// AddEvent records a world event in the arc's current act. Once the act holds
// EventsPerAct events the arc advances with this event as the turning point.
func (e *Engine) AddEvent(ctx context.Context, arc *model.NarrativeArc, eventID, description string) error {
	if !arc.Open() {
		return simerr.Conflict("arc %s is %s", arc.ID, arc.Status)
	}
	cur := arc.Current()
	if cur == nil {
		return simerr.Validation("arc %s has no act %d", arc.ID, arc.CurrentAct)
	}
	now := e.clock.Now()
	cur.EventIDs = append(cur.EventIDs, eventID)
	cur.KeyMoments = append(cur.KeyMoments, description)
	arc.LastEventAt = now

	if err := e.repo.SaveArc(arc); err != nil {
		return fmt.Errorf("save arc: %w", err)
	}
	link := &model.ArcEvent{ArcID: arc.ID, Act: arc.CurrentAct, EventID: eventID, Description: description, At: now}
	if len(cur.EventIDs) >= e.th.EventsPerAct && arc.CurrentAct < model.FinalAct {
		link.TurningPoint = true
	}
	if err := e.repo.SaveArcEvent(link); err != nil {
		return fmt.Errorf("save arc event: %w", err)
	}
	if link.TurningPoint {
		return e.Advance(ctx, arc, description)
	}
	return nil
}

// ActiveFor returns the open arcs the agent is a protagonist of.
func (e *Engine) ActiveFor(agentID string) ([]*model.NarrativeArc, error) {
	return e.repo.Arcs(store.ArcFilter{AgentID: agentID, OpenOnly: true})
}

func (e *Engine) publish(ctx context.Context, arc *model.NarrativeArc, summary string, significance int) {
	actors := []string{arc.PrimaryID}
	if arc.SecondaryID != "" {
		actors = append(actors, arc.SecondaryID)
	}
	ev := events.New(e.clock, events.TypeNarrative, summary, max(1, min(10, significance)), actors...)
	ev.Data = map[string]string{"arc": arc.ID, "arc_type": string(arc.Type), "status": string(arc.Status)}
	e.pub.Publish(ctx, ev)
}
