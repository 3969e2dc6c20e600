package lifeevents

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

type fixture struct {
	repo  *store.Memory
	clk   *clock.Manual
	graph *world.RelationshipGraph
	eng   *Engine
	mem   *memory.Log
	pub   *events.Recorder
}

func newFixture() *fixture {
	repo := store.NewMemory(zap.NewNop())
	clk := clock.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	graph := world.NewRelationshipGraph(repo, clk)
	mem := memory.NewLog(clk, 0)
	pub := events.NewRecorder(0)
	ge := goals.NewEngine(repo, clk, rand.New(rand.NewPCG(5, 5)), pub, mem, goals.DefaultThresholds(), zap.NewNop())
	eng := NewEngine(repo, graph, ge, clk, mem, pub, DefaultThresholds(), zap.NewNop())
	return &fixture{repo: repo, clk: clk, graph: graph, eng: eng, mem: mem, pub: pub}
}

func (f *fixture) agent(t *testing.T, name string, tweak func(*model.Traits)) *model.Agent {
	t.Helper()
	tr := model.Traits{Curiosity: 5, Empathy: 5, Ambition: 5, Creativity: 5, Courage: 5, Charm: 5, Intelligence: 5, Humor: 5}
	if tweak != nil {
		tweak(&tr)
	}
	a := &model.Agent{Name: name, Traits: tr, State: model.StateIdle, Location: "park", CreatedAt: f.clk.Now()}
	if err := f.repo.SaveAgent(a); err != nil {
		t.Fatalf("save agent: %v", err)
	}
	return a
}

// interact records n interactions and then pins the score.
func (f *fixture) interact(t *testing.T, from, to string, n, score int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.clk.Advance(time.Minute)
		if _, err := f.graph.Interact(from, to, 0, "chat"); err != nil {
			t.Fatalf("interact: %v", err)
		}
	}
	r, _ := f.graph.Get(from, to)
	r.Score = score
	r.Type = model.TypeForScore(score)
}

func (f *fixture) count(t *testing.T, typ model.LifeEventType, status model.LifeEventStatus) int {
	t.Helper()
	list, err := f.repo.LifeEvents(store.LifeEventFilter{Type: typ, Status: status})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return len(list)
}

func TestMarriageScanIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", func(tr *model.Traits) { tr.Charm = 8 })
	b := f.agent(t, "Bo", func(tr *model.Traits) { tr.Charm = 7 })
	f.interact(t, a.ID, b.ID, 12, 9)

	created, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.EventMarriage {
		t.Fatalf("first scan created %+v, want one marriage", created)
	}
	again, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second scan created %d events", len(again))
	}

	ab, _ := f.graph.Get(a.ID, b.ID)
	ba, _ := f.graph.Get(b.ID, a.ID)
	if ab.Score != model.MaxScore || ba.Score != 2 {
		t.Errorf("scores after marriage = %d / %d", ab.Score, ba.Score)
	}
	support, _ := f.repo.Goals(store.GoalFilter{Type: model.GoalSupportPartner, Status: model.GoalActive})
	if len(support) != 2 {
		t.Errorf("got %d support goals, want 2", len(support))
	}
	mems, _ := f.mem.Recent(ctx, b.ID, 5)
	if len(mems) == 0 || mems[0].Kind != memory.KindLongTerm || mems[0].Significance != 10 {
		t.Errorf("spouse memories = %+v", mems)
	}
}

func TestMarriageNeedsCharm(t *testing.T) {
	f := newFixture()
	a := f.agent(t, "Ada", func(tr *model.Traits) { tr.Charm = 7 })
	b := f.agent(t, "Bo", nil)
	f.interact(t, a.ID, b.ID, 12, 9)

	created, _ := f.eng.Scan(context.Background())
	if len(created) != 1 || created[0].Type != model.EventFriendship {
		t.Fatalf("created %+v, want a friendship instead of marriage", created)
	}
}

func TestRivalryEscalatesToFeud(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", nil)
	b := f.agent(t, "Bo", nil)
	f.interact(t, a.ID, b.ID, 3, -6)

	created, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.EventRivalry {
		t.Fatalf("created %+v, want one rivalry", created)
	}
	confront, _ := f.repo.Goals(store.GoalFilter{AgentID: a.ID, Type: model.GoalConfront})
	if len(confront) != 1 || confront[0].TargetID != b.ID {
		t.Errorf("confront goals = %+v", confront)
	}

	f.interact(t, a.ID, b.ID, 1, -9)
	created, _ = f.eng.Scan(ctx)
	if len(created) != 1 || created[0].Type != model.EventFeud {
		t.Fatalf("created %+v, want one feud", created)
	}
	if n := f.count(t, model.EventRivalry, model.LifeEventActive); n != 1 {
		t.Errorf("active rivalries = %d, want 1", n)
	}
}

func TestFeudNeedsRivalryInSameScan(t *testing.T) {
	f := newFixture()
	a := f.agent(t, "Ada", nil)
	b := f.agent(t, "Bo", nil)
	f.interact(t, a.ID, b.ID, 2, -10)

	created, _ := f.eng.Scan(context.Background())
	if len(created) != 2 || created[0].Type != model.EventRivalry || created[1].Type != model.EventFeud {
		t.Fatalf("created %+v, want rivalry then feud", created)
	}
	again, _ := f.eng.Scan(context.Background())
	if len(again) != 0 {
		t.Errorf("rescan created %d events", len(again))
	}
}

func TestBetrayalGatesRevengeOnCourage(t *testing.T) {
	for _, tc := range []struct {
		courage int
		want    model.GoalType
	}{{8, model.GoalRevenge}, {3, model.GoalAvoid}} {
		f := newFixture()
		ctx := context.Background()
		victim := f.agent(t, "Ada", func(tr *model.Traits) { tr.Courage = tc.courage })
		betrayer := f.agent(t, "Bo", nil)
		f.interact(t, victim.ID, betrayer.ID, 1, 7)
		f.clk.Advance(time.Minute)
		f.graph.Interact(victim.ID, betrayer.ID, -5, "caught lying")

		created, err := f.eng.Scan(ctx)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		var betrayal *model.LifeEvent
		for _, ev := range created {
			if ev.Type == model.EventBetrayal {
				betrayal = ev
			}
		}
		if betrayal == nil || betrayal.PrimaryID != victim.ID {
			t.Fatalf("courage %d: created %+v, want a betrayal with victim as primary", tc.courage, created)
		}
		g, _ := f.repo.Goals(store.GoalFilter{AgentID: victim.ID, Type: tc.want})
		if len(g) != 1 {
			t.Errorf("courage %d: want one %s goal, got %d", tc.courage, tc.want, len(g))
		}

		// The same drop is never reported twice, even after the event goes stale.
		f.clk.Advance(8 * 24 * time.Hour)
		f.eng.CheckResolutions(ctx)
		again, _ := f.eng.Scan(ctx)
		for _, ev := range again {
			if ev.Type == model.EventBetrayal {
				t.Errorf("courage %d: betrayal reported again", tc.courage)
			}
		}
	}
}

func TestMentorshipLessonsAndGraduation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mentor := f.agent(t, "Sage", func(tr *model.Traits) { tr.Intelligence = 9 })
	student := f.agent(t, "Pip", func(tr *model.Traits) { tr.Intelligence = 4 })
	f.interact(t, student.ID, mentor.ID, 3, 2)

	created, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.EventMentorship {
		t.Fatalf("created %+v, want one mentorship", created)
	}
	ms := created[0]
	if ms.PrimaryID != mentor.ID || ms.Trait != model.TraitIntelligence {
		t.Errorf("mentorship = %+v", ms)
	}
	seek, _ := f.repo.Goals(store.GoalFilter{AgentID: student.ID, Type: model.GoalSeekKnowledge})
	if len(seek) != 1 {
		t.Errorf("student seek_knowledge goals = %d", len(seek))
	}

	if ok, err := f.eng.Lesson(mentor.ID, f.agent(t, "Dot", nil).ID); ok || err != nil {
		t.Fatalf("lesson outside the mentorship = %v, %v", ok, err)
	}
	var grads []*model.LifeEvent
	for i := 0; i < 6 && len(grads) == 0; i++ {
		if _, err := f.eng.Lesson(student.ID, mentor.ID); err != nil {
			t.Fatalf("lesson: %v", err)
		}
		grads, _ = f.eng.CheckResolutions(ctx)
	}
	if len(grads) != 1 || grads[0].Type != model.EventGraduation {
		t.Fatalf("graduation events = %+v", grads)
	}
	if got := student.Traits.Intelligence; got != 8 {
		t.Errorf("student intelligence = %d, want 8", got)
	}
	if ms.Status != model.LifeEventResolved {
		t.Error("mentorship not resolved after graduation")
	}
}

func TestRepeatedScanLeavesMentorshipsAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sage := f.agent(t, "Sage", func(tr *model.Traits) { tr.Intelligence = 10 })
	pip := f.agent(t, "Pip", func(tr *model.Traits) { tr.Intelligence = 5 })
	dot := f.agent(t, "Dot", func(tr *model.Traits) { tr.Intelligence = 2 })
	f.interact(t, pip.ID, sage.ID, 3, 2)
	f.interact(t, pip.ID, dot.ID, 3, 2)

	first, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(first) != 1 || first[0].PrimaryID != sage.ID || first[0].SecondaryID != pip.ID {
		t.Fatalf("first scan = %+v, want Sage mentoring Pip", first)
	}
	second, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, ev := range second {
		t.Errorf("second scan created %s: %s", ev.Type, ev.Description)
	}
	if got := pip.Traits.Intelligence; got != 5 {
		t.Errorf("scanning changed Pip's intelligence to %d", got)
	}
}

func TestMentorshipNeedsFriendlyHistory(t *testing.T) {
	f := newFixture()
	mentor := f.agent(t, "Sage", func(tr *model.Traits) { tr.Courage = 10 })
	student := f.agent(t, "Pip", func(tr *model.Traits) { tr.Courage = 2 })

	if created, _ := f.eng.ScanMentorships(context.Background()); len(created) != 0 {
		t.Fatal("mentorship without any relationship")
	}
	f.interact(t, student.ID, mentor.ID, 5, -1)
	if created, _ := f.eng.ScanMentorships(context.Background()); len(created) != 0 {
		t.Fatal("mentorship despite negative relationship")
	}
}

func TestReconciliationResolvesRivalry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", nil)
	b := f.agent(t, "Bo", nil)
	f.interact(t, a.ID, b.ID, 3, -6)
	f.eng.Scan(ctx)

	f.interact(t, a.ID, b.ID, 1, 1)
	f.interact(t, b.ID, a.ID, 1, 0)
	created, err := f.eng.CheckResolutions(ctx)
	if err != nil {
		t.Fatalf("resolutions: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.EventReconciliation {
		t.Fatalf("created %+v, want reconciliation", created)
	}
	if n := f.count(t, model.EventRivalry, model.LifeEventActive); n != 0 {
		t.Errorf("%d rivalries still active", n)
	}
}

func TestMalformedEventsAreSkipped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", nil)
	b := f.agent(t, "Bo", nil)
	f.interact(t, a.ID, b.ID, 3, -6)
	f.repo.SaveRelationship(&model.Relationship{AgentID: a.ID, TargetID: "ghost", Score: -9, InteractionCount: 4})
	f.repo.SaveLifeEvent(&model.LifeEvent{Type: model.EventMentorship, PrimaryID: a.ID, Status: model.LifeEventActive, Timestamp: f.clk.Now()})

	created, err := f.eng.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.EventRivalry {
		t.Errorf("created %+v, want the valid rivalry only", created)
	}
	if _, err := f.eng.CheckResolutions(ctx); err != nil {
		t.Errorf("resolutions: %v", err)
	}
}

func TestTransformationOncePerPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", func(tr *model.Traits) { tr.Creativity = 7 })
	done := f.clk.Now()
	f.repo.SavePlan(&model.GoalPlan{AgentID: a.ID, Ambition: model.AmbitionMasterCraft, Description: "master a craft", Status: model.PlanCompleted, Progress: 100, CompletedAt: &done})

	first, _ := f.eng.Scan(ctx)
	second, _ := f.eng.Scan(ctx)
	if len(first) != 1 || first[0].Type != model.EventTransformation || len(second) != 0 {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if a.Traits.Creativity != 8 {
		t.Errorf("creativity = %d, want 8", a.Traits.Creativity)
	}
}

func TestStaleFleetingEventsResolve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.agent(t, "Ada", nil)
	b := f.agent(t, "Bo", nil)
	f.repo.SaveLifeEvent(&model.LifeEvent{Type: model.EventGraduation, PrimaryID: a.ID, SecondaryID: b.ID, Status: model.LifeEventActive, Timestamp: f.clk.Now()})
	f.repo.SaveLifeEvent(&model.LifeEvent{Type: model.EventMarriage, PrimaryID: a.ID, SecondaryID: b.ID, Status: model.LifeEventActive, Timestamp: f.clk.Now()})

	f.clk.Advance(8 * 24 * time.Hour)
	if _, err := f.eng.CheckResolutions(ctx); err != nil {
		t.Fatalf("resolutions: %v", err)
	}
	if n := f.count(t, model.EventGraduation, model.LifeEventActive); n != 0 {
		t.Error("graduation should have gone stale")
	}
	if n := f.count(t, model.EventMarriage, model.LifeEventActive); n != 1 {
		t.Error("marriage should persist")
	}
	active, _ := f.eng.ActiveFor(a.ID)
	if len(active) != 1 {
		t.Errorf("ActiveFor = %d events, want 1", len(active))
	}
}
