package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/nuka-society/internal/model"
	"go.uber.org/zap"
)

// Postgres persists repository snapshots through a pgx connection pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a persister with a pgx connection pool.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (p *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		p.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.db.Close()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every value passed here is a plain struct or slice of them.
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return data
}

// SaveSnapshot upserts every row of the snapshot in one transaction.
func (p *Postgres) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, a := range snap.Agents {
		b.Queue(`
			INSERT INTO agents (id, name, traits, mood, location, inventory, needs, state, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, traits = EXCLUDED.traits, mood = EXCLUDED.mood,
				location = EXCLUDED.location, inventory = EXCLUDED.inventory,
				needs = EXCLUDED.needs, state = EXCLUDED.state`,
			a.ID, a.Name, mustJSON(a.Traits), mustJSON(a.Mood), a.Location,
			mustJSON(a.Inventory), mustJSON(a.Needs), string(a.State), a.CreatedAt)
	}
	for _, r := range snap.Relationships {
		b.Queue(`
			INSERT INTO relationships (id, agent_id, target_id, score, type, history, interaction_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (agent_id, target_id) DO UPDATE SET
				score = EXCLUDED.score, type = EXCLUDED.type, history = EXCLUDED.history,
				interaction_count = EXCLUDED.interaction_count, updated_at = EXCLUDED.updated_at`,
			r.ID, r.AgentID, r.TargetID, r.Score, string(r.Type), mustJSON(r.History),
			r.InteractionCount, r.CreatedAt, r.UpdatedAt)
	}
	for _, g := range snap.Goals {
		b.Queue(`
			INSERT INTO goals (id, agent_id, type, category, description, priority, target_id, status,
				progress, plan_id, milestone_index, created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				priority = EXCLUDED.priority, status = EXCLUDED.status, progress = EXCLUDED.progress,
				updated_at = EXCLUDED.updated_at, completed_at = EXCLUDED.completed_at`,
			g.ID, g.AgentID, string(g.Type), string(g.Category), g.Description, g.Priority,
			g.TargetID, string(g.Status), g.Progress, g.PlanID, g.MilestoneIndex,
			g.CreatedAt, g.UpdatedAt, g.CompletedAt)
	}
	for _, pl := range snap.Plans {
		b.Queue(`
			INSERT INTO goal_plans (id, agent_id, ambition, description, target_id, milestones, progress,
				status, created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				milestones = EXCLUDED.milestones, progress = EXCLUDED.progress, status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at, completed_at = EXCLUDED.completed_at`,
			pl.ID, pl.AgentID, string(pl.Ambition), pl.Description, pl.TargetID,
			mustJSON(pl.Milestones), pl.Progress, string(pl.Status), pl.CreatedAt, pl.UpdatedAt, pl.CompletedAt)
	}
	for _, e := range snap.LifeEvents {
		b.Queue(`
			INSERT INTO life_events (id, type, primary_id, secondary_id, related_ids, description,
				significance, status, trait, plan_id, occurred_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status, resolved_at = EXCLUDED.resolved_at`,
			e.ID, string(e.Type), e.PrimaryID, e.SecondaryID, mustJSON(e.RelatedIDs), e.Description,
			e.Significance, string(e.Status), string(e.Trait), e.PlanID, e.Timestamp, e.ResolvedAt)
	}
	for _, f := range snap.Factions {
		b.Queue(`
			INSERT INTO factions (id, name, founder_id, status, beliefs, goals, location, created_at, disbanded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status, beliefs = EXCLUDED.beliefs, goals = EXCLUDED.goals,
				disbanded_at = EXCLUDED.disbanded_at`,
			f.ID, f.Name, f.FounderID, string(f.Status), mustJSON(f.Beliefs), mustJSON(f.Goals),
			f.Location, f.CreatedAt, f.DisbandedAt)
	}
	for _, m := range snap.Memberships {
		b.Queue(`
			INSERT INTO faction_memberships (id, faction_id, agent_id, role, loyalty, joined_at, left_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				role = EXCLUDED.role, loyalty = EXCLUDED.loyalty, left_at = EXCLUDED.left_at`,
			m.ID, m.FactionID, m.AgentID, string(m.Role), m.Loyalty, m.JoinedAt, m.LeftAt)
	}
	for _, r := range snap.FactionRelationships {
		b.Queue(`
			INSERT INTO faction_relationships (id, faction_a, faction_b, type, score, history, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (faction_a, faction_b) DO UPDATE SET
				type = EXCLUDED.type, score = EXCLUDED.score, history = EXCLUDED.history,
				updated_at = EXCLUDED.updated_at`,
			r.ID, r.FactionA, r.FactionB, string(r.Type), r.Score, mustJSON(r.History), r.UpdatedAt)
	}
	for _, a := range snap.Arcs {
		b.Queue(`
			INSERT INTO narrative_arcs (id, type, title, primary_id, secondary_id, theme, acts, current_act,
				status, significance, resolution, discovered_at, last_event_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				acts = EXCLUDED.acts, current_act = EXCLUDED.current_act, status = EXCLUDED.status,
				resolution = EXCLUDED.resolution, last_event_at = EXCLUDED.last_event_at,
				completed_at = EXCLUDED.completed_at`,
			a.ID, string(a.Type), a.Title, a.PrimaryID, a.SecondaryID, a.Theme, mustJSON(a.Acts),
			a.CurrentAct, string(a.Status), a.Significance, a.Resolution, a.DiscoveredAt, a.LastEventAt, a.CompletedAt)
	}
	for _, e := range snap.ArcEvents {
		b.Queue(`
			INSERT INTO arc_events (id, arc_id, act, event_id, description, turning_point, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.ArcID, e.Act, e.EventID, e.Description, e.TurningPoint, e.At)
	}

	if b.Len() > 0 {
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	p.logger.Debug("snapshot saved",
		zap.Int("agents", len(snap.Agents)),
		zap.Int("relationships", len(snap.Relationships)),
		zap.Int("arcs", len(snap.Arcs)))
	return nil
}

// LoadSnapshot reads every table into a snapshot.
func (p *Postgres) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	loaders := []struct {
		name string
		fn   func(context.Context, *Snapshot) error
	}{
		{"agents", p.loadAgents},
		{"relationships", p.loadRelationships},
		{"goals", p.loadGoals},
		{"goal_plans", p.loadPlans},
		{"life_events", p.loadLifeEvents},
		{"factions", p.loadFactions},
		{"faction_memberships", p.loadMemberships},
		{"faction_relationships", p.loadFactionRelationships},
		{"narrative_arcs", p.loadArcs},
		{"arc_events", p.loadArcEvents},
	}
	for _, l := range loaders {
		if err := l.fn(ctx, snap); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.name, err)
		}
	}
	return snap, nil
}

func (p *Postgres) loadAgents(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, traits, mood, location, inventory, needs, state, created_at
		FROM agents ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Agent
		var traits, mood, inventory, needs []byte
		if err := rows.Scan(&a.ID, &a.Name, &traits, &mood, &a.Location, &inventory, &needs, &a.State, &a.CreatedAt); err != nil {
			return fmt.Errorf("scan agent: %w", err)
		}
		if err := unmarshalAll(traits, &a.Traits, mood, &a.Mood, inventory, &a.Inventory, needs, &a.Needs); err != nil {
			return fmt.Errorf("decode agent %s: %w", a.ID, err)
		}
		snap.Agents = append(snap.Agents, &a)
	}
	return rows.Err()
}

func (p *Postgres) loadRelationships(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, agent_id, target_id, score, type, history, interaction_count, created_at, updated_at
		FROM relationships ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r model.Relationship
		var history []byte
		if err := rows.Scan(&r.ID, &r.AgentID, &r.TargetID, &r.Score, &r.Type, &history,
			&r.InteractionCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan relationship: %w", err)
		}
		if err := unmarshalAll(history, &r.History); err != nil {
			return fmt.Errorf("decode relationship %s: %w", r.ID, err)
		}
		snap.Relationships = append(snap.Relationships, &r)
	}
	return rows.Err()
}

func (p *Postgres) loadGoals(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, agent_id, type, category, description, priority, COALESCE(target_id,''), status,
		       progress, COALESCE(plan_id,''), milestone_index, created_at, updated_at, completed_at
		FROM goals ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.ID, &g.AgentID, &g.Type, &g.Category, &g.Description, &g.Priority,
			&g.TargetID, &g.Status, &g.Progress, &g.PlanID, &g.MilestoneIndex,
			&g.CreatedAt, &g.UpdatedAt, &g.CompletedAt); err != nil {
			return fmt.Errorf("scan goal: %w", err)
		}
		snap.Goals = append(snap.Goals, &g)
	}
	return rows.Err()
}

func (p *Postgres) loadPlans(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, agent_id, ambition, description, COALESCE(target_id,''), milestones, progress,
		       status, created_at, updated_at, completed_at
		FROM goal_plans ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pl model.GoalPlan
		var milestones []byte
		if err := rows.Scan(&pl.ID, &pl.AgentID, &pl.Ambition, &pl.Description, &pl.TargetID,
			&milestones, &pl.Progress, &pl.Status, &pl.CreatedAt, &pl.UpdatedAt, &pl.CompletedAt); err != nil {
			return fmt.Errorf("scan plan: %w", err)
		}
		if err := unmarshalAll(milestones, &pl.Milestones); err != nil {
			return fmt.Errorf("decode plan %s: %w", pl.ID, err)
		}
		snap.Plans = append(snap.Plans, &pl)
	}
	return rows.Err()
}

func (p *Postgres) loadLifeEvents(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, type, primary_id, COALESCE(secondary_id,''), related_ids, description,
		       significance, status, COALESCE(trait,''), COALESCE(plan_id,''), occurred_at, resolved_at
		FROM life_events ORDER BY occurred_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e model.LifeEvent
		var related []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.PrimaryID, &e.SecondaryID, &related, &e.Description,
			&e.Significance, &e.Status, &e.Trait, &e.PlanID, &e.Timestamp, &e.ResolvedAt); err != nil {
			return fmt.Errorf("scan life event: %w", err)
		}
		if err := unmarshalAll(related, &e.RelatedIDs); err != nil {
			return fmt.Errorf("decode life event %s: %w", e.ID, err)
		}
		snap.LifeEvents = append(snap.LifeEvents, &e)
	}
	return rows.Err()
}

func (p *Postgres) loadFactions(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, founder_id, status, beliefs, goals, location, created_at, disbanded_at
		FROM factions ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var f model.Faction
		var beliefs, goals []byte
		if err := rows.Scan(&f.ID, &f.Name, &f.FounderID, &f.Status, &beliefs, &goals,
			&f.Location, &f.CreatedAt, &f.DisbandedAt); err != nil {
			return fmt.Errorf("scan faction: %w", err)
		}
		if err := unmarshalAll(beliefs, &f.Beliefs, goals, &f.Goals); err != nil {
			return fmt.Errorf("decode faction %s: %w", f.ID, err)
		}
		snap.Factions = append(snap.Factions, &f)
	}
	return rows.Err()
}

func (p *Postgres) loadMemberships(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, faction_id, agent_id, role, loyalty, joined_at, left_at
		FROM faction_memberships ORDER BY joined_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.ID, &m.FactionID, &m.AgentID, &m.Role, &m.Loyalty, &m.JoinedAt, &m.LeftAt); err != nil {
			return fmt.Errorf("scan membership: %w", err)
		}
		snap.Memberships = append(snap.Memberships, &m)
	}
	return rows.Err()
}

func (p *Postgres) loadFactionRelationships(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, faction_a, faction_b, type, score, history, updated_at
		FROM faction_relationships ORDER BY faction_a, faction_b`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r model.FactionRelationship
		var history []byte
		if err := rows.Scan(&r.ID, &r.FactionA, &r.FactionB, &r.Type, &r.Score, &history, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan faction relationship: %w", err)
		}
		if err := unmarshalAll(history, &r.History); err != nil {
			return fmt.Errorf("decode faction relationship %s: %w", r.ID, err)
		}
		snap.FactionRelationships = append(snap.FactionRelationships, &r)
	}
	return rows.Err()
}

func (p *Postgres) loadArcs(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, type, title, primary_id, COALESCE(secondary_id,''), theme, acts, current_act,
		       status, significance, COALESCE(resolution,''), discovered_at, last_event_at, completed_at
		FROM narrative_arcs ORDER BY discovered_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.NarrativeArc
		var acts []byte
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.PrimaryID, &a.SecondaryID, &a.Theme, &acts,
			&a.CurrentAct, &a.Status, &a.Significance, &a.Resolution, &a.DiscoveredAt,
			&a.LastEventAt, &a.CompletedAt); err != nil {
			return fmt.Errorf("scan arc: %w", err)
		}
		if err := unmarshalAll(acts, &a.Acts); err != nil {
			return fmt.Errorf("decode arc %s: %w", a.ID, err)
		}
		snap.Arcs = append(snap.Arcs, &a)
	}
	return rows.Err()
}

func (p *Postgres) loadArcEvents(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.Query(ctx, `
		SELECT id, arc_id, act, event_id, description, turning_point, occurred_at
		FROM arc_events ORDER BY occurred_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e model.ArcEvent
		if err := rows.Scan(&e.ID, &e.ArcID, &e.Act, &e.EventID, &e.Description, &e.TurningPoint, &e.At); err != nil {
			return fmt.Errorf("scan arc event: %w", err)
		}
		snap.ArcEvents = append(snap.ArcEvents, &e)
	}
	return rows.Err()
}

// unmarshalAll decodes (data, target) pairs, skipping empty columns.
func unmarshalAll(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		data, _ := pairs[i].([]byte)
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
