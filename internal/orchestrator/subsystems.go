package orchestrator

import (
	"context"
	"time"

	"github.com/nidhogg/nuka-society/internal/factions"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/lifeevents"
	"github.com/nidhogg/nuka-society/internal/narrative"
)

// Subsystem names.
const (
	Resolutions = "resolutions"
	Goals       = "goals"
	LifeEvents  = "life_events"
	Arcs        = "arcs"
	Factions    = "factions"
	Persist     = "persist"
)

// Intervals are the world-time spacing of the staggered passes.
type Intervals struct {
	Goals      time.Duration `json:"goals"`
	LifeEvents time.Duration `json:"life_events"`
	Arcs       time.Duration `json:"arcs"`
	Factions   time.Duration `json:"factions"`
	Persist    time.Duration `json:"persist"`
}

// DefaultIntervals returns the standard schedule.
func DefaultIntervals() Intervals {
	return Intervals{
		Goals:      10 * time.Minute,
		LifeEvents: 30 * time.Minute,
		Arcs:       time.Hour,
		Factions:   2 * time.Hour,
		Persist:    time.Hour,
	}
}

// Engines are the subsystems the orchestrator drives. Persister may be nil.
type Engines struct {
	Goals      *goals.Engine
	LifeEvents *lifeevents.Engine
	Arcs       *narrative.Engine
	Factions   *factions.Engine
	Persister  *Persister
}

// RegisterEngines registers the standard passes. Life-event resolutions are
// checked on every tick.
func (o *Orchestrator) RegisterEngines(en Engines, iv Intervals) {
	o.Register(Subsystem{Name: Resolutions, Run: func(ctx context.Context) error {
		_, err := en.LifeEvents.CheckResolutions(ctx)
		return err
	}})
	o.Register(Subsystem{Name: Goals, Interval: iv.Goals, Run: en.Goals.Pass})
	o.Register(Subsystem{Name: LifeEvents, Interval: iv.LifeEvents, Run: func(ctx context.Context) error {
		_, err := en.LifeEvents.Scan(ctx)
		return err
	}})
	o.Register(Subsystem{Name: Arcs, Interval: iv.Arcs, Run: en.Arcs.Pass})
	o.Register(Subsystem{Name: Factions, Interval: iv.Factions, Run: en.Factions.Pass})
	if en.Persister != nil {
		o.Register(Subsystem{Name: Persist, Interval: iv.Persist, Mode: ModeBackground, Run: en.Persister.Run})
	}
}
