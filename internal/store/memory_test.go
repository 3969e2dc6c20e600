package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seedAgents(t *testing.T, m *Memory, names ...string) []*model.Agent {
	t.Helper()
	var out []*model.Agent
	for i, n := range names {
		a := &model.Agent{Name: n, CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		if err := m.SaveAgent(a); err != nil {
			t.Fatalf("save agent: %v", err)
		}
		out = append(out, a)
	}
	return out
}

func TestInTxRollsBackOnError(t *testing.T) {
	m := NewMemory(zap.NewNop())
	agents := seedAgents(t, m, "Ada")
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.InTx(ctx, func(ctx context.Context) error {
		a, _ := m.Agent(agents[0].ID)
		a.Name = "Changed"
		m.SaveAgent(&model.Agent{Name: "Ghost"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	m.View(ctx, func(ctx context.Context) error {
		all, _ := m.Agents()
		if len(all) != 1 {
			t.Errorf("got %d agents after rollback, want 1", len(all))
		}
		if all[0].Name != "Ada" {
			t.Errorf("name = %q after rollback", all[0].Name)
		}
		return nil
	})
}

func TestInTxRecoversPanic(t *testing.T) {
	m := NewMemory(zap.NewNop())
	seedAgents(t, m, "Ada")

	err := m.InTx(context.Background(), func(ctx context.Context) error {
		m.SaveAgent(&model.Agent{Name: "Ghost"})
		panic("bad state")
	})
	if err == nil {
		t.Fatal("expected error from panicking transaction")
	}
	all, _ := m.Agents()
	if len(all) != 1 {
		t.Errorf("got %d agents, want 1", len(all))
	}
}

func TestDeferRunsAfterCommitOnly(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	var ran []string

	m.InTx(ctx, func(ctx context.Context) error {
		m.Defer(func(context.Context) { ran = append(ran, "committed") })
		if len(ran) != 0 {
			t.Error("deferred effect ran inside transaction")
		}
		return nil
	})
	m.InTx(ctx, func(ctx context.Context) error {
		m.Defer(func(context.Context) { ran = append(ran, "rolled back") })
		return errors.New("fail")
	})

	if len(ran) != 1 || ran[0] != "committed" {
		t.Errorf("ran = %v", ran)
	}

	m.Defer(func(context.Context) { ran = append(ran, "immediate") })
	if len(ran) != 2 {
		t.Error("Defer outside a transaction should run immediately")
	}
}

func TestDeferredEffectCanStartNewTx(t *testing.T) {
	m := NewMemory(zap.NewNop())
	ctx := context.Background()
	done := false

	m.InTx(ctx, func(ctx context.Context) error {
		m.Defer(func(ctx context.Context) {
			m.InTx(ctx, func(ctx context.Context) error {
				done = true
				return nil
			})
		})
		return nil
	})
	if !done {
		t.Error("deferred effect did not run")
	}
}

func TestFactionRelationshipCanonicalPair(t *testing.T) {
	m := NewMemory(zap.NewNop())

	err := m.SaveFactionRelationship(&model.FactionRelationship{FactionA: "b", FactionB: "a"})
	if !errors.Is(err, simerr.ErrValidation) {
		t.Fatalf("non-canonical save error = %v, want validation", err)
	}

	if err := m.SaveFactionRelationship(&model.FactionRelationship{FactionA: "a", FactionB: "b", Score: 20}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := m.FactionRelationship("b", "a")
	if got == nil || got.Score != 20 {
		t.Errorf("lookup by reversed pair = %+v", got)
	}
}

func TestRelationshipLookups(t *testing.T) {
	m := NewMemory(zap.NewNop())
	agents := seedAgents(t, m, "Ada", "Bo", "Cy")

	if err := m.SaveRelationship(&model.Relationship{AgentID: agents[0].ID, TargetID: agents[0].ID}); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("self relationship error = %v", err)
	}
	m.SaveRelationship(&model.Relationship{AgentID: agents[0].ID, TargetID: agents[1].ID, CreatedAt: t0})
	m.SaveRelationship(&model.Relationship{AgentID: agents[0].ID, TargetID: agents[2].ID, CreatedAt: t0.Add(time.Minute)})
	m.SaveRelationship(&model.Relationship{AgentID: agents[1].ID, TargetID: agents[0].ID, CreatedAt: t0})

	from, _ := m.RelationshipsFrom(agents[0].ID)
	if len(from) != 2 || from[0].TargetID != agents[1].ID {
		t.Errorf("RelationshipsFrom = %+v", from)
	}
	missing, err := m.Relationship(agents[2].ID, agents[1].ID)
	if missing != nil || err != nil {
		t.Errorf("missing relationship = %v, %v; want nil, nil", missing, err)
	}
	if _, err := m.Agent("nope"); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("Agent(nope) error = %v", err)
	}
}

func TestGoalFilter(t *testing.T) {
	m := NewMemory(zap.NewNop())
	m.SaveGoal(&model.Goal{AgentID: "a", Type: model.GoalEat, Category: model.CategoryNeed, Status: model.GoalActive, CreatedAt: t0})
	m.SaveGoal(&model.Goal{AgentID: "a", Type: model.GoalLearn, Category: model.CategoryDesire, Status: model.GoalCompleted, CreatedAt: t0})
	m.SaveGoal(&model.Goal{AgentID: "b", Type: model.GoalEat, Category: model.CategoryNeed, Status: model.GoalActive, CreatedAt: t0})

	got, _ := m.Goals(GoalFilter{AgentID: "a", Status: model.GoalActive})
	if len(got) != 1 || got[0].Type != model.GoalEat {
		t.Errorf("Goals(a, active) = %+v", got)
	}
	got, _ = m.Goals(GoalFilter{Type: model.GoalEat})
	if len(got) != 2 {
		t.Errorf("Goals(eat) returned %d, want 2", len(got))
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := NewMemory(zap.NewNop())
	agents := seedAgents(t, src, "Ada", "Bo")
	src.SaveRelationship(&model.Relationship{AgentID: agents[0].ID, TargetID: agents[1].ID, Score: 4, CreatedAt: t0})
	ctx := context.Background()

	snap := src.Export(ctx)
	dst := NewMemory(zap.NewNop())
	if err := dst.Import(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	rel, _ := dst.Relationship(agents[0].ID, agents[1].ID)
	if rel == nil || rel.Score != 4 {
		t.Fatalf("imported relationship = %+v", rel)
	}

	// The export is a copy; later edits to the source do not leak in.
	a, _ := src.Agent(agents[0].ID)
	a.Name = "Renamed"
	b, _ := dst.Agent(agents[0].ID)
	if b.Name != "Ada" {
		t.Errorf("imported agent aliased source: %q", b.Name)
	}
}

func TestSnapshotLatest(t *testing.T) {
	m := NewMemory(zap.NewNop())
	if got := m.Export(context.Background()).Latest(); !got.IsZero() {
		t.Errorf("empty snapshot latest = %v", got)
	}
	seedAgents(t, m, "Ada", "Bo")
	resolved := t0.Add(48 * time.Hour)
	m.SaveLifeEvent(&model.LifeEvent{Type: model.EventGraduation, PrimaryID: "a", Timestamp: t0.Add(time.Hour), ResolvedAt: &resolved})
	m.SaveRelationship(&model.Relationship{AgentID: "a", TargetID: "b", UpdatedAt: t0.Add(24 * time.Hour)})

	if got := m.Export(context.Background()).Latest(); !got.Equal(resolved) {
		t.Errorf("latest = %v, want %v", got, resolved)
	}
}
