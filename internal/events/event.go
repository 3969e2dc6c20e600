// Package events publishes notifications about world happenings.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-society/internal/clock"
)

// Type categorizes a world event.
type Type string

const (
	TypeSystem     Type = "system"
	TypeAction     Type = "action"
	TypeLifeEvent  Type = "life_event"
	TypeFaction    Type = "faction"
	TypeNarrative  Type = "narrative"
	TypeGoal       Type = "goal"
	TypeResolution Type = "resolution"
)

// WorldEvent is a fire-and-forget notification consumed by presentation layers.
type WorldEvent struct {
	ID           string            `json:"id"`
	Type         Type              `json:"type"`
	Summary      string            `json:"summary"`
	ActorIDs     []string          `json:"actor_ids"`
	LocationID   string            `json:"location_id,omitempty"`
	Significance int               `json:"significance"`
	Data         map[string]string `json:"data,omitempty"`
	At           time.Time         `json:"at"`
}

// Publisher delivers world events. Delivery failures are the publisher's to
// log; callers never wait on or react to them.
type Publisher interface {
	Publish(ctx context.Context, ev *WorldEvent)
}

// New builds an event stamped with the clock.
func New(clk clock.Clock, typ Type, summary string, significance int, actors ...string) *WorldEvent {
	return &WorldEvent{
		ID:           uuid.New().String(),
		Type:         typ,
		Summary:      summary,
		ActorIDs:     actors,
		Significance: significance,
		At:           clk.Now(),
	}
}

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev *WorldEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Deferrer queues work until the surrounding transaction commits.
type Deferrer interface {
	Defer(fn func(ctx context.Context))
}

// Deferred holds events back until the repository transaction commits, so a
// rolled back subsystem pass never announces anything.
type Deferred struct {
	tx    Deferrer
	inner Publisher
}

// NewDeferred wraps inner so publishes go through tx.
func NewDeferred(tx Deferrer, inner Publisher) *Deferred {
	return &Deferred{tx: tx, inner: inner}
}

// Publish implements Publisher.
func (d *Deferred) Publish(_ context.Context, ev *WorldEvent) {
	d.tx.Defer(func(ctx context.Context) { d.inner.Publish(ctx, ev) })
}

// Recorder keeps published events in memory, newest last.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []*WorldEvent
}

// NewRecorder keeps at most limit events (0 means unbounded).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev *WorldEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*WorldEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*WorldEvent(nil), r.events...)
}

// OfType returns recorded events of one type.
func (r *Recorder) OfType(t Type) []*WorldEvent {
	var out []*WorldEvent
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
