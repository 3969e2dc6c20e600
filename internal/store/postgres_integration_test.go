//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

// startPostgres starts a PostgreSQL testcontainer and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("nuka_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	return dsn
}

func TestPostgresSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	pg, err := NewPostgres(ctx, startPostgres(t), zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pg.Close()
	for i := 0; i < 2; i++ {
		if err := pg.Migrate(ctx, "../../migrations"); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	m := NewMemory(zap.NewNop())
	agents := seedAgents(t, m, "Ada", "Bo")
	ada, bo := agents[0], agents[1]
	rel := &model.Relationship{AgentID: ada.ID, TargetID: bo.ID, Score: 7, InteractionCount: 6, CreatedAt: t0, UpdatedAt: t0}
	rel.Record(2, "shared a meal", t0)
	m.SaveRelationship(rel)
	m.SaveGoal(&model.Goal{AgentID: ada.ID, Type: model.GoalGainWealth, Category: model.CategoryDesire, Status: model.GoalActive, CreatedAt: t0, UpdatedAt: t0})
	m.SaveLifeEvent(&model.LifeEvent{Type: model.EventFriendship, PrimaryID: ada.ID, SecondaryID: bo.ID, Significance: 5, Status: model.LifeEventActive, Timestamp: t0})
	f := &model.Faction{Name: "The Lamplighters", FounderID: ada.ID, Status: model.FactionForming, Beliefs: []string{"knowledge"}, CreatedAt: t0}
	m.SaveFaction(f)
	m.SaveMembership(&model.Membership{FactionID: f.ID, AgentID: ada.ID, Role: model.RoleFounder, Loyalty: 80, JoinedAt: t0})
	arc := &model.NarrativeArc{Type: model.ArcFriendship, Title: "Ada and Bo", PrimaryID: ada.ID, SecondaryID: bo.ID, Status: model.ArcForming,
		Acts: []model.Act{{Number: 0, Status: model.ActInProgress, StartedAt: t0, KeyMoments: []string{"they met"}}}, DiscoveredAt: t0, LastEventAt: t0}
	m.SaveArc(arc)
	m.SaveArcEvent(&model.ArcEvent{ArcID: arc.ID, EventID: "ev-1", Description: "they met", At: t0})

	snap := m.Export(ctx)
	if err := pg.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	// Saving again upserts instead of duplicating.
	rel.Score = 8
	if err := pg.SaveSnapshot(ctx, m.Export(ctx)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := pg.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(got.Agents) != 2 || len(got.Relationships) != 1 || len(got.Goals) != 1 || len(got.LifeEvents) != 1 ||
		len(got.Factions) != 1 || len(got.Memberships) != 1 || len(got.Arcs) != 1 || len(got.ArcEvents) != 1 {
		t.Fatalf("loaded %d agents %d rels %d goals %d events %d factions %d members %d arcs %d links",
			len(got.Agents), len(got.Relationships), len(got.Goals), len(got.LifeEvents),
			len(got.Factions), len(got.Memberships), len(got.Arcs), len(got.ArcEvents))
	}
	r := got.Relationships[0]
	if r.Score != 8 || len(r.History) != 1 || r.History[0].Reason != "shared a meal" {
		t.Errorf("relationship = %+v", r)
	}
	if a := got.Arcs[0]; len(a.Acts) != 1 || a.Acts[0].KeyMoments[0] != "they met" || !a.LastEventAt.Equal(t0) {
		t.Errorf("arc = %+v", a)
	}
	if !got.Latest().Equal(t0.Add(time.Second)) {
		t.Errorf("latest = %v", got.Latest())
	}

	restored := NewMemory(zap.NewNop())
	if err := restored.Import(ctx, got); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := restored.Agent(bo.ID); err != nil {
		t.Errorf("restored agent: %v", err)
	}
}
