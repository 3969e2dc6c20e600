package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nuka.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Simulation.LifeEventThresholds().StaleAfter; got != 7*24*time.Hour {
		t.Errorf("stale after = %v", got)
	}
	if got := cfg.Simulation.ArcThresholds().AbandonAfter; got != 14*24*time.Hour {
		t.Errorf("abandon after = %v", got)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Setenv("NUKA_TEST_DSN", "postgres://nuka@db/nuka")
	path := writeConfig(t, `{
		"server": {"port": 8080},
		"database": {"postgres": {"dsn": "${NUKA_TEST_DSN}"}, "redis": {"url": "${NUKA_TEST_REDIS:redis://localhost:6379/0}"}},
		"simulation": {
			"tick_step": "30m",
			"intervals": {"factions": "4h"},
			"thresholds": {"factions": {"join_chance": 0.5}, "arcs_abandon_after": "72h"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.LogLevel != "info" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Database.Postgres.DSN != "postgres://nuka@db/nuka" || cfg.Database.Postgres.MigrationsDir != "migrations" {
		t.Errorf("postgres = %+v", cfg.Database.Postgres)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("redis default not applied: %q", cfg.Database.Redis.URL)
	}
	sim := cfg.Simulation
	if sim.TickStep.D() != 30*time.Minute || sim.TickInterval.D() != 5*time.Second {
		t.Errorf("tick step %v interval %v", sim.TickStep.D(), sim.TickInterval.D())
	}
	iv := sim.OrchestratorIntervals()
	if iv.Factions != 4*time.Hour || iv.Goals != 10*time.Minute {
		t.Errorf("intervals = %+v", iv)
	}
	if th := sim.Thresholds.Factions; th.JoinChance != 0.5 || th.LeaderLoyalty != 85 {
		t.Errorf("faction thresholds = %+v", th)
	}
	if got := sim.ArcThresholds(); got.AbandonAfter != 72*time.Hour || got.EventsPerAct != 2 {
		t.Errorf("arc thresholds = %+v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "parse config"},
		{"numeric duration", `{"simulation": {"tick_step": 600}}`, "duration must be a string"},
		{"bad hour", `{"simulation": {"sleep_hour": 24}}`, "sleep/wake"},
		{"bad significance", `{"gateway": {"min_significance": 11}}`, "min_significance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "nuka.json"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if cfg.Simulation.SeedAgents != 8 || cfg.Simulation.Thresholds.LifeEvents.Feud != -8 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Simulation.Thresholds.LifeEvents.MarriageCharm != 6 {
		t.Error("unlisted threshold lost its default")
	}
}
