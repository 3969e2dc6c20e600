// Package orchestrator staggers the simulation subsystems across ticks and
// keeps a failure in one of them from reaching the others.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

type entry struct {
	Subsystem
	lastRun  time.Time
	lastErr  error
	runs     int
	failures int
	running  bool
}

// Orchestrator runs registered subsystems when their interval has elapsed.
// It implements world.ClockListener.
type Orchestrator struct {
	tx      store.Transactor
	mu      sync.RWMutex
	entries []*entry
	pool    chan struct{} // background slots
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates an orchestrator. poolSize bounds concurrent background passes.
func New(tx store.Transactor, poolSize int, logger *zap.Logger) *Orchestrator {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Orchestrator{
		tx:     tx,
		pool:   make(chan struct{}, poolSize),
		logger: logger,
	}
}

// Register adds a subsystem. Registration order is execution order.
func (o *Orchestrator) Register(s Subsystem) {
	if s.Mode == "" {
		s.Mode = ModeTx
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, &entry{Subsystem: s})
	o.logger.Info("registered subsystem",
		zap.String("subsystem", s.Name),
		zap.Duration("interval", s.Interval),
		zap.String("mode", string(s.Mode)))
}

// OnTick runs every subsystem that is due at worldTime. Each runs inside its
// own failure boundary; errors are logged and retried at the next interval.
func (o *Orchestrator) OnTick(ctx context.Context, worldTime time.Time) {
	for _, e := range o.due(worldTime) {
		if e.Mode == ModeBackground {
			o.background(ctx, e, worldTime)
			continue
		}
		o.finish(e, worldTime, o.runTx(ctx, e))
	}
}

// due marks and returns the entries whose interval has elapsed.
func (o *Orchestrator) due(worldTime time.Time) []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*entry
	for _, e := range o.entries {
		if e.running {
			continue
		}
		if !e.lastRun.IsZero() && worldTime.Sub(e.lastRun) < e.Interval {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (o *Orchestrator) runTx(ctx context.Context, e *entry) error {
	return o.tx.InTx(ctx, func(ctx context.Context) error {
		return e.Run(ctx)
	})
}

func (o *Orchestrator) background(ctx context.Context, e *entry, worldTime time.Time) {
	select {
	case o.pool <- struct{}{}:
	default:
		o.logger.Debug("no free slot, deferring pass", zap.String("subsystem", e.Name))
		return
	}
	o.mu.Lock()
	e.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() { <-o.pool }()
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in %s: %v", e.Name, r)
				}
			}()
			return e.Run(context.WithoutCancel(ctx))
		}()
		o.finish(e, worldTime, err)
	}()
}

// finish records the outcome. lastRun moves forward even on failure so a
// broken subsystem waits for its next interval instead of retrying every tick.
func (o *Orchestrator) finish(e *entry, worldTime time.Time, err error) {
	o.mu.Lock()
	e.lastRun = worldTime
	e.lastErr = err
	e.runs++
	e.running = false
	if err != nil {
		e.failures++
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.Error("subsystem pass failed",
			zap.String("subsystem", e.Name),
			zap.Time("world_time", worldTime),
			zap.Bool("transient", simerr.Kind(err) == simerr.ErrRepository),
			zap.Error(err))
		return
	}
	o.logger.Debug("subsystem pass done", zap.String("subsystem", e.Name), zap.Time("world_time", worldTime))
}

// RunNow runs one subsystem immediately regardless of its schedule.
func (o *Orchestrator) RunNow(ctx context.Context, name string, worldTime time.Time) error {
	o.mu.RLock()
	var target *entry
	for _, e := range o.entries {
		if e.Name == name {
			target = e
			break
		}
	}
	o.mu.RUnlock()
	if target == nil {
		return simerr.NotFound("subsystem %s", name)
	}

	var err error
	if target.Mode == ModeBackground {
		err = target.Run(ctx)
	} else {
		err = o.runTx(ctx, target)
	}
	o.finish(target, worldTime, err)
	return err
}

// Wait blocks until in-flight background passes finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status reports every subsystem in registration order.
func (o *Orchestrator) Status() []Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Status, 0, len(o.entries))
	for _, e := range o.entries {
		s := Status{
			Name:     e.Name,
			Interval: e.Interval,
			Mode:     e.Mode,
			Runs:     e.runs,
			Failures: e.failures,
			Running:  e.running,
		}
		if !e.lastRun.IsZero() {
			t := e.lastRun
			s.LastRun = &t
		}
		if e.lastErr != nil {
			s.LastError = e.lastErr.Error()
		}
		out = append(out, s)
	}
	return out
}
