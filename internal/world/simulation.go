package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// ClockListener receives world tick events after all agents took their turn.
type ClockListener interface {
	OnTick(ctx context.Context, worldTime time.Time)
}

// TurnRunner decides and executes one action for an awake agent.
type TurnRunner interface {
	TakeTurn(ctx context.Context, agent *model.Agent) error
}

// TickClock drives the simulation: every tick it advances world time, puts
// agents to bed or wakes them, decays needs, runs each awake agent's turn and
// finally notifies listeners.
type TickClock struct {
	repo      store.Repository
	tx        store.Transactor
	clock     *clock.Manual
	step      time.Duration
	interval  time.Duration
	needs     *NeedsModel
	days      DaySchedule
	turns     TurnRunner
	pub       events.Publisher
	listeners []ClockListener
	logger    *zap.Logger

	tickMu sync.Mutex
	ticks  int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// TickConfig configures a TickClock.
type TickConfig struct {
	Step     time.Duration // simulated time per tick
	Interval time.Duration // real time between ticks when started
	Days     DaySchedule
}

// NewTickClock creates a tick clock over the world clock.
func NewTickClock(
	repo store.Repository,
	tx store.Transactor,
	worldClock *clock.Manual,
	cfg TickConfig,
	needs *NeedsModel,
	turns TurnRunner,
	pub events.Publisher,
	logger *zap.Logger,
) *TickClock {
	if cfg.Step <= 0 {
		cfg.Step = 10 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &TickClock{
		repo:     repo,
		tx:       tx,
		clock:    worldClock,
		step:     cfg.Step,
		interval: cfg.Interval,
		needs:    needs,
		days:     cfg.Days,
		turns:    turns,
		pub:      pub,
		logger:   logger,
	}
}

// AddListener registers a tick listener.
func (c *TickClock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// WorldTime returns the current simulated world time.
func (c *TickClock) WorldTime() time.Time {
	return c.clock.Now()
}

// Ticks returns how many ticks have completed.
func (c *TickClock) Ticks() int64 {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.ticks
}

// Running reports whether the background loop is active.
func (c *TickClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Start begins the tick loop in a background goroutine.
func (c *TickClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)
	c.logger.Info("world clock started",
		zap.Duration("interval", c.interval),
		zap.Duration("step", c.step))
}

// Stop halts the tick loop. A tick already in flight runs to completion
// before Stop returns.
func (c *TickClock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("world clock stopped", zap.Time("world_time", c.clock.Now()))
}

func (c *TickClock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The tick itself is never aborted midway.
			if err := c.Tick(context.WithoutCancel(ctx)); err != nil {
				c.logger.Error("tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one simulation step. Ticks never overlap.
func (c *TickClock) Tick(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	now := c.clock.Advance(c.step)

	var awake []string
	err := c.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		awake, err = c.updateAgents(ctx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("update agents: %w", err)
	}

	for _, id := range awake {
		err := c.tx.InTx(ctx, func(ctx context.Context) error {
			a, err := c.repo.Agent(id)
			if err != nil {
				return err
			}
			if !a.Awake() {
				return nil
			}
			return c.turns.TakeTurn(ctx, a)
		})
		if err != nil {
			c.logger.Warn("agent turn failed",
				zap.String("agent", id),
				zap.Time("world_time", now),
				zap.Error(err))
		}
	}

	c.mu.Lock()
	listeners := make([]ClockListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(ctx, now)
	}

	c.ticks++
	c.logger.Debug("tick complete",
		zap.Int64("tick", c.ticks),
		zap.Time("world_time", now),
		zap.Int("awake", len(awake)))
	return nil
}

// updateAgents applies sleep transitions and needs decay, returning the ids
// of agents that are awake for this tick.
func (c *TickClock) updateAgents(ctx context.Context, now time.Time) ([]string, error) {
	agents, err := c.repo.Agents()
	if err != nil {
		return nil, err
	}
	night := c.days.Asleep(now)
	hours := c.step.Hours()

	var awake []string
	for _, a := range agents {
		switch {
		case night && a.State != model.StateSleeping:
			a.State = model.StateSleeping
			c.pub.Publish(ctx, c.transition(a, "went to sleep"))
		case !night && a.State == model.StateSleeping:
			a.State = model.StateIdle
			c.pub.Publish(ctx, c.transition(a, "woke up"))
		}
		c.needs.Decay(a, hours)
		if err := c.repo.SaveAgent(a); err != nil {
			return nil, err
		}
		if a.Awake() {
			awake = append(awake, a.ID)
		}
	}
	return awake, nil
}

func (c *TickClock) transition(a *model.Agent, what string) *events.WorldEvent {
	ev := events.New(c.clock, events.TypeSystem, fmt.Sprintf("%s %s", a.Name, what), 1, a.ID)
	ev.LocationID = a.Location
	return ev
}
