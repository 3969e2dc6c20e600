package narrative

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Engine, *store.Memory, *clock.Manual, *model.Agent, *model.Agent) {
	t.Helper()
	repo := store.NewMemory(zap.NewNop())
	clk := clock.NewManual(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	eng := NewEngine(repo, clk, events.NewRecorder(0), DefaultThresholds(), zap.NewNop())
	a := &model.Agent{Name: "Ada", State: model.StateIdle}
	b := &model.Agent{Name: "Bo", State: model.StateIdle}
	for _, ag := range []*model.Agent{a, b} {
		if err := repo.SaveAgent(ag); err != nil {
			t.Fatalf("save agent: %v", err)
		}
	}
	return eng, repo, clk, a, b
}

func TestAdvanceWalksTheActs(t *testing.T) {
	eng, repo, clk, a, b := setup(t)
	ctx := context.Background()
	arc := eng.newArc(model.ArcRivalry, a, b, 6)
	repo.SaveArc(arc)

	if arc.Status != model.ArcForming || len(arc.Acts) != 1 || arc.Acts[0].Status != model.ActInProgress {
		t.Fatalf("new arc = %+v", arc)
	}
	want := []model.ArcStatus{model.ArcRisingAction, model.ArcClimax, model.ArcFallingAction, model.ArcResolution}
	for i, status := range want {
		clk.Advance(time.Hour)
		if err := eng.Advance(ctx, arc, "turn"); err != nil {
			t.Fatalf("advance %d: %v", i+1, err)
		}
		if arc.CurrentAct != i+1 || arc.Status != status {
			t.Fatalf("after advance %d: act=%d status=%s", i+1, arc.CurrentAct, arc.Status)
		}
		if arc.Acts[i].Status != model.ActComplete || arc.Acts[i].TurningPoint != "turn" {
			t.Errorf("act %d not closed: %+v", i, arc.Acts[i])
		}
	}
	if arc.CompletedAt == nil {
		t.Error("resolved arc has no completion time")
	}
	if err := eng.Advance(ctx, arc, "again"); !errors.Is(err, simerr.ErrConflict) {
		t.Errorf("advance past resolution: %v", err)
	}
	if len(arc.Acts) != model.FinalAct+1 {
		t.Errorf("%d acts", len(arc.Acts))
	}
}

func TestAdvanceAtFinalActDoesNotMutate(t *testing.T) {
	eng, repo, _, a, b := setup(t)
	arc := eng.newArc(model.ArcFriendship, a, b, 5)
	arc.CurrentAct = model.FinalAct
	arc.Status = model.ArcFallingAction
	repo.SaveArc(arc)
	before := arc.Clone()

	_, err := eng.AdvanceArc(context.Background(), arc.ID, "late twist")
	if !errors.Is(err, simerr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if !reflect.DeepEqual(before, arc) {
		t.Errorf("arc changed:\nbefore %+v\nafter  %+v", before, arc)
	}
	if _, err := eng.AdvanceArc(context.Background(), "missing", ""); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("missing arc: %v", err)
	}
}

func TestCompleteAndAbandon(t *testing.T) {
	eng, repo, _, a, b := setup(t)
	ctx := context.Background()

	arc := eng.newArc(model.ArcLoveStory, a, b, 7)
	repo.SaveArc(arc)
	eng.Advance(ctx, arc, "first dance")
	if _, err := eng.CompleteArc(ctx, arc.ID, "they parted as friends"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if arc.Status != model.ArcResolution || arc.CurrentAct != 1 || arc.Acts[1].Status != model.ActComplete {
		t.Errorf("completed arc = status %s act %d", arc.Status, arc.CurrentAct)
	}
	if arc.Resolution != "they parted as friends" || arc.CompletedAt == nil {
		t.Errorf("resolution = %q", arc.Resolution)
	}
	if _, err := eng.AbandonArc(ctx, arc.ID, "bored"); !errors.Is(err, simerr.ErrConflict) {
		t.Errorf("abandoning a resolved arc: %v", err)
	}

	other := eng.newArc(model.ArcRivalry, a, b, 6)
	repo.SaveArc(other)
	if _, err := eng.AbandonArc(ctx, other.ID, "moved on"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if other.Status != model.ArcAbandoned || other.CurrentAct != 0 {
		t.Errorf("abandoned arc = status %s act %d", other.Status, other.CurrentAct)
	}
}

func TestLifeEventsSeedAndFeedArcs(t *testing.T) {
	eng, repo, clk, a, b := setup(t)
	ctx := context.Background()
	save := func(typ model.LifeEventType, desc string) *model.LifeEvent {
		clk.Advance(time.Minute)
		ev := &model.LifeEvent{Type: typ, PrimaryID: a.ID, SecondaryID: b.ID, Description: desc, Significance: 6, Status: model.LifeEventActive, Timestamp: clk.Now()}
		repo.SaveLifeEvent(ev)
		return ev
	}

	rivalry := save(model.EventRivalry, "Ada and Bo became rivals")
	created, err := eng.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.ArcRivalry {
		t.Fatalf("created %+v", created)
	}
	arc := created[0]
	if arc.Title != "Ada versus Bo" || arc.Acts[0].EventIDs[0] != rivalry.ID {
		t.Errorf("arc = %+v", arc)
	}
	if again, _ := eng.Detect(ctx); len(again) != 0 {
		t.Fatalf("second detect created %d arcs", len(again))
	}

	save(model.EventFeud, "The rivalry between Ada and Bo became a feud")
	if more, _ := eng.Detect(ctx); len(more) != 0 {
		t.Fatalf("feud created a new arc instead of joining the rivalry")
	}
	if arc.CurrentAct != 1 || arc.Status != model.ArcRisingAction {
		t.Errorf("arc at act %d status %s, want rising action", arc.CurrentAct, arc.Status)
	}
	links, _ := repo.ArcEvents(arc.ID)
	if len(links) != 2 || links[0].TurningPoint || !links[1].TurningPoint {
		t.Errorf("arc events = %+v", links)
	}
	if arc.Acts[0].TurningPoint != "The rivalry between Ada and Bo became a feud" {
		t.Errorf("turning point = %q", arc.Acts[0].TurningPoint)
	}
}

func TestRelationshipArcsAreOncePerPair(t *testing.T) {
	eng, repo, clk, a, b := setup(t)
	ctx := context.Background()
	repo.SaveRelationship(&model.Relationship{AgentID: a.ID, TargetID: b.ID, Score: 7, InteractionCount: 6, CreatedAt: clk.Now()})
	repo.SaveRelationship(&model.Relationship{AgentID: b.ID, TargetID: a.ID, Score: 6, InteractionCount: 6, CreatedAt: clk.Now()})

	created, err := eng.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(created) != 1 || created[0].Type != model.ArcFriendship {
		t.Fatalf("created %+v", created)
	}
	if len(created[0].Acts[0].KeyMoments) != 1 {
		t.Errorf("key moments = %v", created[0].Acts[0].KeyMoments)
	}
	if again, _ := eng.Detect(ctx); len(again) != 0 {
		t.Errorf("second detect created %d arcs", len(again))
	}
}

func TestRiseToPowerFromGoals(t *testing.T) {
	eng, repo, clk, a, _ := setup(t)
	ctx := context.Background()
	g := &model.Goal{AgentID: a.ID, Type: model.GoalGainWealth, Category: model.CategoryDesire, Description: "earn more coin", Status: model.GoalActive, CreatedAt: clk.Now()}
	repo.SaveGoal(g)

	created, _ := eng.Detect(ctx)
	if len(created) != 1 || created[0].Type != model.ArcRiseToPower || created[0].Title != "The Rise of Ada" {
		t.Fatalf("created %+v", created)
	}
	arc := created[0]
	if again, _ := eng.Detect(ctx); len(again) != 0 {
		t.Fatal("rise arc duplicated")
	}

	clk.Advance(time.Hour)
	done := clk.Now()
	g.Status, g.CompletedAt = model.GoalCompleted, &done
	eng.Detect(ctx)
	eng.Detect(ctx)
	if n := len(arc.Acts[0].EventIDs); n != 1 {
		t.Errorf("completed goal linked %d times", n)
	}
}

func TestAbandonedRiseIsNotReseededByOldGoals(t *testing.T) {
	eng, repo, clk, a, _ := setup(t)
	ctx := context.Background()
	repo.SaveGoal(&model.Goal{AgentID: a.ID, Type: model.GoalGainPower, Category: model.CategoryDesire, Description: "lead the guild", Status: model.GoalActive, CreatedAt: clk.Now()})

	created, _ := eng.Detect(ctx)
	if len(created) != 1 {
		t.Fatalf("created %d arcs, want 1", len(created))
	}
	clk.Advance(15 * 24 * time.Hour)
	if abandoned, _ := eng.Maintain(ctx); len(abandoned) != 1 {
		t.Fatalf("abandoned %d arcs, want 1", len(abandoned))
	}
	if again, _ := eng.Detect(ctx); len(again) != 0 {
		t.Fatalf("old goal reseeded %d arcs", len(again))
	}

	clk.Advance(time.Hour)
	repo.SaveGoal(&model.Goal{AgentID: a.ID, Type: model.GoalGainWealth, Category: model.CategoryDesire, Description: "buy the mill", Status: model.GoalActive, CreatedAt: clk.Now()})
	fresh, _ := eng.Detect(ctx)
	if len(fresh) != 1 || fresh[0].Type != model.ArcRiseToPower {
		t.Fatalf("new ambition created %+v", fresh)
	}
}

func TestMaintainAbandonsQuietArcs(t *testing.T) {
	eng, repo, clk, a, b := setup(t)
	ctx := context.Background()
	quiet := eng.newArc(model.ArcBetrayal, a, b, 8)
	repo.SaveArc(quiet)
	clk.Advance(10 * 24 * time.Hour)
	fresh := eng.newArc(model.ArcRedemption, a, b, 7)
	repo.SaveArc(fresh)
	clk.Advance(5 * 24 * time.Hour)

	abandoned, err := eng.Maintain(ctx)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if len(abandoned) != 1 || abandoned[0] != quiet || quiet.Status != model.ArcAbandoned {
		t.Errorf("abandoned %+v", abandoned)
	}
	if !fresh.Open() {
		t.Error("recent arc abandoned")
	}
}

func TestSummary(t *testing.T) {
	eng, repo, _, a, b := setup(t)
	ctx := context.Background()

	s, err := eng.Summary(a.ID)
	if err != nil || s != "Ada has no stories yet." {
		t.Fatalf("empty summary = %q, %v", s, err)
	}

	open := eng.newArc(model.ArcMentorship, a, b, 6)
	open.Acts[0].KeyMoments = []string{"Ada began mentoring Bo"}
	repo.SaveArc(open)
	done := eng.newArc(model.ArcFriendship, a, b, 5)
	repo.SaveArc(done)
	eng.Complete(ctx, done, "they stayed close")

	s, _ = eng.Summary(a.ID)
	for _, want := range []string{"1 unfolding story", "Ada Teaches Bo", "Ada began mentoring Bo", "Past stories", "they stayed close"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if _, err := eng.Summary("ghost"); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("missing agent: %v", err)
	}
}
