// Package config loads the JSON configuration with environment substitution.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/nuka-society/internal/factions"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/lifeevents"
	"github.com/nidhogg/nuka-society/internal/narrative"
	"github.com/nidhogg/nuka-society/internal/orchestrator"
	"github.com/nidhogg/nuka-society/internal/world"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Gateway    GatewayConfig    `json:"gateway"`
	Simulation SimulationConfig `json:"simulation"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type GatewayConfig struct {
	Slack           SlackGatewayConfig   `json:"slack"`
	Discord         DiscordGatewayConfig `json:"discord"`
	MinSignificance int                  `json:"min_significance"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled    bool   `json:"enabled"`
	BotToken   string `json:"bot_token"`
	Channel    string `json:"channel"`
	WebhookURL string `json:"webhook_url"`
}

// SimulationConfig tunes the world clock, the subsystem schedule and the
// detection thresholds.
type SimulationConfig struct {
	TickInterval Duration  `json:"tick_interval"` // real time between ticks
	TickStep     Duration  `json:"tick_step"`     // world time per tick
	AutoStart    bool      `json:"auto_start"`
	Seed         uint64    `json:"seed"` // 0 picks a random seed
	SeedAgents   int       `json:"seed_agents"`
	StartTime    time.Time `json:"start_time"`
	SleepHour    int       `json:"sleep_hour"`
	WakeHour     int       `json:"wake_hour"`
	WorkerPool   int       `json:"worker_pool"`

	Intervals  IntervalConfig  `json:"intervals"`
	Thresholds ThresholdConfig `json:"thresholds"`
}

// IntervalConfig is the world-time spacing of each subsystem pass.
type IntervalConfig struct {
	Goals      Duration `json:"goals"`
	LifeEvents Duration `json:"life_events"`
	Arcs       Duration `json:"arcs"`
	Factions   Duration `json:"factions"`
	Persist    Duration `json:"persist"`
}

// ThresholdConfig carries each engine's tuning. Durations live here because
// the engines keep them as time.Duration.
type ThresholdConfig struct {
	Goals           goals.Thresholds      `json:"goals"`
	LifeEvents      lifeevents.Thresholds `json:"life_events"`
	Factions        factions.Thresholds   `json:"factions"`
	Arcs            narrative.Thresholds  `json:"arcs"`
	LifeEventsStale Duration              `json:"life_events_stale_after"`
	ArcsAbandon     Duration              `json:"arcs_abandon_after"`
}

// Duration is a time.Duration written as "90m" or "1h30m" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %s", b)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// D returns the time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Default returns a complete configuration that runs with no backing services.
func Default() *Config {
	iv := orchestrator.DefaultIntervals()
	le := lifeevents.DefaultThresholds()
	arcs := narrative.DefaultThresholds()
	days := world.DefaultDaySchedule()
	return &Config{
		Server: ServerConfig{Port: 3210, LogLevel: "info"},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{MigrationsDir: "migrations"},
		},
		Gateway: GatewayConfig{MinSignificance: 7},
		Simulation: SimulationConfig{
			TickInterval: Duration(5 * time.Second),
			TickStep:     Duration(10 * time.Minute),
			AutoStart:    true,
			SeedAgents:   8,
			StartTime:    time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
			SleepHour:    days.SleepHour,
			WakeHour:     days.WakeHour,
			WorkerPool:   2,
			Intervals: IntervalConfig{
				Goals:      Duration(iv.Goals),
				LifeEvents: Duration(iv.LifeEvents),
				Arcs:       Duration(iv.Arcs),
				Factions:   Duration(iv.Factions),
				Persist:    Duration(iv.Persist),
			},
			Thresholds: ThresholdConfig{
				Goals:           goals.DefaultThresholds(),
				LifeEvents:      le,
				Factions:        factions.DefaultThresholds(),
				Arcs:            arcs,
				LifeEventsStale: Duration(le.StaleAfter),
				ArcsAbandon:     Duration(arcs.AbandonAfter),
			},
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Expand substitutes ${VAR} and ${VAR:default} with environment values.
func Expand(data string) string {
	return envVarRe.ReplaceAllStringFunc(data, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

// Load reads a JSON config file over the defaults and substitutes
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal([]byte(Expand(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case s.TickStep <= 0:
		return fmt.Errorf("simulation.tick_step must be positive")
	case s.TickInterval <= 0:
		return fmt.Errorf("simulation.tick_interval must be positive")
	case s.SleepHour < 0 || s.SleepHour > 23 || s.WakeHour < 0 || s.WakeHour > 23:
		return fmt.Errorf("simulation sleep/wake hours must be 0-23")
	case s.SeedAgents < 0:
		return fmt.Errorf("simulation.seed_agents must not be negative")
	case c.Gateway.MinSignificance < 1 || c.Gateway.MinSignificance > 10:
		return fmt.Errorf("gateway.min_significance must be 1-10")
	}
	return nil
}

// OrchestratorIntervals converts the schedule for the orchestrator.
func (s SimulationConfig) OrchestratorIntervals() orchestrator.Intervals {
	return orchestrator.Intervals{
		Goals:      s.Intervals.Goals.D(),
		LifeEvents: s.Intervals.LifeEvents.D(),
		Arcs:       s.Intervals.Arcs.D(),
		Factions:   s.Intervals.Factions.D(),
		Persist:    s.Intervals.Persist.D(),
	}
}

// LifeEventThresholds returns the life event tuning with its stale window.
func (s SimulationConfig) LifeEventThresholds() lifeevents.Thresholds {
	th := s.Thresholds.LifeEvents
	th.StaleAfter = s.Thresholds.LifeEventsStale.D()
	return th
}

// ArcThresholds returns the arc tuning with its abandonment window.
func (s SimulationConfig) ArcThresholds() narrative.Thresholds {
	th := s.Thresholds.Arcs
	th.AbandonAfter = s.Thresholds.ArcsAbandon.D()
	return th
}

// DaySchedule returns the sleep window.
func (s SimulationConfig) DaySchedule() world.DaySchedule {
	return world.DaySchedule{SleepHour: s.SleepHour, WakeHour: s.WakeHour}
}
