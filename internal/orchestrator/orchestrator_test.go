package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/factions"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/lifeevents"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/narrative"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

func TestStaggeredSchedule(t *testing.T) {
	repo := store.NewMemory(zap.NewNop())
	o := New(repo, 1, zap.NewNop())
	runs := map[string]int{}
	count := func(name string) Pass {
		return func(context.Context) error { runs[name]++; return nil }
	}
	o.Register(Subsystem{Name: "every", Run: count("every")})
	o.Register(Subsystem{Name: "half", Interval: 30 * time.Minute, Run: count("half")})
	o.Register(Subsystem{Name: "hourly", Interval: time.Hour, Run: count("hourly")})

	for i := 0; i <= 6; i++ {
		o.OnTick(context.Background(), t0.Add(time.Duration(i)*10*time.Minute))
	}
	want := map[string]int{"every": 7, "half": 3, "hourly": 2}
	for name, n := range want {
		if runs[name] != n {
			t.Errorf("%s ran %d times, want %d", name, runs[name], n)
		}
	}
}

func TestFailureIsIsolatedAndRolledBack(t *testing.T) {
	repo := store.NewMemory(zap.NewNop())
	o := New(repo, 1, zap.NewNop())
	o.Register(Subsystem{Name: "broken", Interval: time.Hour, Run: func(context.Context) error {
		repo.SaveAgent(&model.Agent{ID: "ghost", Name: "Ghost"})
		return simerr.Repository("write", errors.New("disk full"))
	}})
	o.Register(Subsystem{Name: "panicky", Interval: time.Hour, Run: func(context.Context) error {
		repo.SaveAgent(&model.Agent{ID: "poltergeist", Name: "Poltergeist"})
		panic("boom")
	}})
	o.Register(Subsystem{Name: "healthy", Interval: time.Hour, Run: func(context.Context) error {
		return repo.SaveAgent(&model.Agent{ID: "ada", Name: "Ada"})
	}})

	o.OnTick(context.Background(), t0)

	if _, err := repo.Agent("ada"); err != nil {
		t.Errorf("healthy subsystem write lost: %v", err)
	}
	for _, id := range []string{"ghost", "poltergeist"} {
		if _, err := repo.Agent(id); !errors.Is(err, simerr.ErrNotFound) {
			t.Errorf("write of failed pass %s survived: %v", id, err)
		}
	}

	status := o.Status()
	if len(status) != 3 {
		t.Fatalf("%d statuses", len(status))
	}
	for _, s := range status[:2] {
		if s.Failures != 1 || s.LastError == "" || s.LastRun == nil {
			t.Errorf("%s status = %+v", s.Name, s)
		}
	}
	if status[2].Failures != 0 || status[2].Runs != 1 {
		t.Errorf("healthy status = %+v", status[2])
	}

	// A failed pass waits for its next interval.
	o.OnTick(context.Background(), t0.Add(10*time.Minute))
	if got := o.Status()[0].Runs; got != 1 {
		t.Errorf("broken subsystem retried early: %d runs", got)
	}
}

type fakeSaver struct {
	mu    sync.Mutex
	snaps []*store.Snapshot
	err   error
}

func (f *fakeSaver) SaveSnapshot(_ context.Context, s *store.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
	return f.err
}

type fakeMirror struct{ rels int }

func (f *fakeMirror) Sync(_ context.Context, _ []*model.Agent, rels []*model.Relationship) error {
	f.rels = len(rels)
	return nil
}

func TestBackgroundPersist(t *testing.T) {
	repo := store.NewMemory(zap.NewNop())
	repo.SaveAgent(&model.Agent{ID: "a", Name: "Ada"})
	repo.SaveAgent(&model.Agent{ID: "b", Name: "Bo"})
	repo.SaveRelationship(&model.Relationship{AgentID: "a", TargetID: "b", Score: 3})

	saver, mirror := &fakeSaver{}, &fakeMirror{}
	clk := clock.NewManual(t0)
	log := memory.NewLog(clk, 0)
	p := NewPersister(repo, saver, mirror, log, zap.NewNop())

	o := New(repo, 1, zap.NewNop())
	o.Register(Subsystem{Name: Persist, Interval: time.Hour, Mode: ModeBackground, Run: p.Run})
	o.OnTick(context.Background(), t0)
	o.Wait()

	if len(saver.snaps) != 1 || len(saver.snaps[0].Agents) != 2 {
		t.Fatalf("snapshots = %+v", saver.snaps)
	}
	if mirror.rels != 1 {
		t.Errorf("mirrored %d relationships", mirror.rels)
	}
	if s := o.Status()[0]; s.Runs != 1 || s.Running {
		t.Errorf("status = %+v", s)
	}

	saver.err = errors.New("connection refused")
	err := o.RunNow(context.Background(), Persist, t0.Add(time.Minute))
	if !errors.Is(err, simerr.ErrRepository) {
		t.Errorf("persist failure = %v, want repository error", err)
	}
	if mirror.rels != 1 {
		t.Error("mirror skipped after save failure")
	}
}

func TestRunNowUnknown(t *testing.T) {
	o := New(store.NewMemory(zap.NewNop()), 1, zap.NewNop())
	if err := o.RunNow(context.Background(), "nope", t0); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestEnginesOverTicks(t *testing.T) {
	repo := store.NewMemory(zap.NewNop())
	clk := clock.NewManual(t0)
	rng := rand.New(rand.NewPCG(11, 12))
	pub := events.NewDeferred(repo, events.NewRecorder(0))
	mem := memory.NewDeferred(repo, memory.NewLog(clk, 0), nil)
	graph := world.NewRelationshipGraph(repo, clk)

	ge := goals.NewEngine(repo, clk, rng, pub, mem, goals.DefaultThresholds(), zap.NewNop())
	le := lifeevents.NewEngine(repo, graph, ge, clk, mem, pub, lifeevents.DefaultThresholds(), zap.NewNop())
	ne := narrative.NewEngine(repo, clk, pub, narrative.DefaultThresholds(), zap.NewNop())
	fe := factions.NewEngine(repo, clk, rng, pub, mem, factions.DefaultThresholds(), zap.NewNop())

	o := New(repo, 1, zap.NewNop())
	o.RegisterEngines(Engines{Goals: ge, LifeEvents: le, Arcs: ne, Factions: fe}, DefaultIntervals())

	a := &model.Agent{Name: "Ada", State: model.StateIdle, Traits: model.Traits{Curiosity: 5, Empathy: 5, Ambition: 5, Creativity: 5, Courage: 5, Charm: 5, Intelligence: 5, Humor: 5}}
	b := &model.Agent{Name: "Bo", State: model.StateIdle, Traits: a.Traits}
	repo.SaveAgent(a)
	repo.SaveAgent(b)
	repo.SaveRelationship(&model.Relationship{AgentID: a.ID, TargetID: b.ID, Score: -6, InteractionCount: 4})

	for i := 0; i < 12; i++ {
		o.OnTick(context.Background(), clk.Advance(10*time.Minute))
	}
	for _, s := range o.Status() {
		if s.Failures != 0 {
			t.Errorf("%s failed: %s", s.Name, s.LastError)
		}
	}
	rivalries, _ := repo.LifeEvents(store.LifeEventFilter{Type: model.EventRivalry})
	if len(rivalries) != 1 {
		t.Errorf("%d rivalries, want 1", len(rivalries))
	}
	arcs, _ := repo.Arcs(store.ArcFilter{Type: model.ArcRivalry})
	if len(arcs) != 1 {
		t.Errorf("%d rivalry arcs, want 1", len(arcs))
	}
}
