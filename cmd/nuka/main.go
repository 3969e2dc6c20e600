package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/nuka-society/internal/api"
	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/config"
	"github.com/nidhogg/nuka-society/internal/decision"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/nidhogg/nuka-society/internal/factions"
	"github.com/nidhogg/nuka-society/internal/gateway"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/lifeevents"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/narrative"
	"github.com/nidhogg/nuka-society/internal/orchestrator"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/nuka.json"
	}
	cfg, cfgErr := config.Load(cfgPath)
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	if cfgErr != nil {
		logger.Warn("config unavailable, using defaults", zap.String("path", cfgPath), zap.Error(cfgErr))
	} else {
		logger.Info("config loaded", zap.String("path", cfgPath))
	}
	logger.Info("starting Nuka Society...")

	ctx := context.Background()
	sim := cfg.Simulation
	repo := store.NewMemory(logger)

	// PostgreSQL: restore the last snapshot, then save one every persist pass.
	var pg *store.Postgres
	if cfg.Database.Postgres.DSN != "" {
		p, err := store.NewPostgres(ctx, cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(err))
		} else {
			if err := p.Migrate(ctx, cfg.Database.Postgres.MigrationsDir); err != nil {
				logger.Fatal("migration failed", zap.Error(err))
			}
			snap, err := p.LoadSnapshot(ctx)
			if err != nil {
				logger.Fatal("load snapshot failed", zap.Error(err))
			}
			if err := repo.Import(ctx, snap); err != nil {
				logger.Fatal("import snapshot failed", zap.Error(err))
			}
			if latest := snap.Latest(); latest.After(sim.StartTime) {
				sim.StartTime = latest
			}
			logger.Info("world restored from PostgreSQL", zap.Int("agents", len(snap.Agents)))
			pg = p
		}
	}

	worldClock := clock.NewManual(sim.StartTime)
	seed := sim.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	logger.Info("world clock set", zap.Time("world_time", worldClock.Now()), zap.Uint64("seed", seed))

	// Memories go to Neo4j when it is reachable, otherwise they stay in process.
	var (
		recorder  memory.Recorder
		reader    api.MemoryReader
		sweeper   orchestrator.Sweeper
		mirror    orchestrator.GraphMirror
		neighbors api.NeighborReader
		neo       *memory.Store
	)
	memLog := memory.NewLog(worldClock, 0)
	recorder, reader, sweeper = memLog, memLog, memLog
	if cfg.Database.Neo4j.URI != "" {
		s, err := memory.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, worldClock, logger)
		if err == nil {
			err = s.Ping(ctx)
		}
		if err != nil {
			logger.Warn("Neo4j unavailable, keeping memories in process", zap.Error(err))
		} else {
			neo = s
			recorder, reader, sweeper = s, s, s
			rm := world.NewRelationMirror(s.Driver(), logger)
			mirror, neighbors = rm, rm
		}
	}

	// Event fan-out: Redis stream, chat broadcasts and an in-process ring.
	publishers := events.Multi{events.NewRecorder(500)}
	var stream *events.StreamPublisher
	if cfg.Database.Redis.URL != "" {
		sp, err := events.NewStreamPublisher(ctx, cfg.Database.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, world events stay in process", zap.Error(err))
		} else {
			stream = sp
			publishers = append(publishers, sp)
		}
	}

	gw := gateway.NewGateway(logger)
	var slackN *gateway.SlackNotifier
	var discordN *gateway.DiscordNotifier
	if g := cfg.Gateway.Slack; g.Enabled && g.BotToken != "" {
		slackN = gateway.NewSlackNotifier(g.BotToken, g.Channel, logger)
		gw.Register(slackN)
	}
	if g := cfg.Gateway.Discord; g.Enabled && g.BotToken != "" {
		discordN = gateway.NewDiscordNotifier(g.BotToken, g.Channel, logger)
		if g.WebhookURL != "" {
			if err := discordN.SetWebhook(g.WebhookURL); err != nil {
				logger.Warn("ignoring discord webhook", zap.Error(err))
			}
		}
		gw.Register(discordN)
	}
	var broadcaster *gateway.Broadcaster
	if len(gw.Platforms()) > 0 {
		if err := gw.ConnectAll(ctx); err != nil {
			logger.Warn("some gateway notifiers failed to connect", zap.Error(err))
		}
		broadcaster = gateway.NewBroadcaster(gw, cfg.Gateway.MinSignificance, worldClock, logger)
		publishers = append(publishers, broadcaster)
	}

	// Engines publish and remember only once their transaction commits.
	pub := events.NewDeferred(repo, publishers)
	mem := memory.NewDeferred(repo, recorder, func(agentID string, err error) {
		logger.Warn("record memory failed", zap.String("agent", agentID), zap.Error(err))
	})

	graph := world.NewRelationshipGraph(repo, worldClock)
	goalEngine := goals.NewEngine(repo, worldClock, rng, pub, mem, sim.Thresholds.Goals, logger)
	lifeEngine := lifeevents.NewEngine(repo, graph, goalEngine, worldClock, mem, pub, sim.LifeEventThresholds(), logger)
	arcEngine := narrative.NewEngine(repo, worldClock, pub, sim.ArcThresholds(), logger)
	factionEngine := factions.NewEngine(repo, worldClock, rng, pub, mem, sim.Thresholds.Factions, logger)

	spawner := world.NewSpawner(repo, worldClock, rng)
	err := repo.InTx(ctx, func(context.Context) error {
		existing, err := repo.Agents()
		if err != nil || len(existing) > 0 {
			return err
		}
		spawned, err := spawner.SpawnN(sim.SeedAgents)
		if err == nil {
			logger.Info("seeded agents", zap.Int("count", len(spawned)))
		}
		return err
	})
	if err != nil {
		logger.Fatal("seed agents failed", zap.Error(err))
	}
	setPersonas(ctx, repo, slackN, discordN)

	var saver orchestrator.SnapshotSaver
	if pg != nil {
		saver = pg
	}
	persister := orchestrator.NewPersister(repo, saver, mirror, sweeper, logger)

	orch := orchestrator.New(repo, sim.WorkerPool, logger)
	orch.RegisterEngines(orchestrator.Engines{
		Goals:      goalEngine,
		LifeEvents: lifeEngine,
		Arcs:       arcEngine,
		Factions:   factionEngine,
		Persister:  persister,
	}, sim.OrchestratorIntervals())

	executor := decision.NewExecutor(repo, graph, worldClock, rng, mem, pub, logger)
	executor.SetTutor(lifeEngine)
	turns := decision.NewTurns(repo, decision.NewGoalDecider(decision.NewRandomDecider(rng)), executor, worldClock, logger)
	ticks := world.NewTickClock(repo, repo, worldClock, world.TickConfig{
		Step:     sim.TickStep.D(),
		Interval: sim.TickInterval.D(),
		Days:     sim.DaySchedule(),
	}, world.NewNeedsModel(world.DefaultNeedsRates()), turns, pub, logger)
	ticks.AddListener(orch)

	if sim.AutoStart {
		ticks.Start()
	}

	handler := api.NewHandler(api.Deps{
		Repo:         repo,
		Tx:           repo,
		Clock:        ticks,
		Spawner:      spawner,
		Goals:        goalEngine,
		LifeEvents:   lifeEngine,
		Arcs:         arcEngine,
		Factions:     factionEngine,
		Orchestrator: orch,
		Memories:     reader,
		Neighbors:    neighbors,
		Gateway:      gw,
		Broadcaster:  broadcaster,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Nuka Society listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down Nuka Society...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	ticks.Stop()
	orch.Wait()

	// Last snapshot so a restart resumes where this run stopped.
	if err := persister.Run(shutdownCtx); err != nil {
		logger.Warn("final persist failed", zap.Error(err))
	}
	if pg != nil {
		pg.Close()
	}
	if neo != nil {
		neo.Close(shutdownCtx)
	}
	if stream != nil {
		stream.Close()
	}
	gw.Close()
}

// newLogger uses the development encoder at debug level and JSON otherwise.
func newLogger(level string) *zap.Logger {
	zc := zap.NewProductionConfig()
	if level == "debug" {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// setPersonas gives every agent a chat identity on the enabled platforms.
func setPersonas(ctx context.Context, repo *store.Memory, slackN *gateway.SlackNotifier, discordN *gateway.DiscordNotifier) {
	if slackN == nil && discordN == nil {
		return
	}
	repo.View(ctx, func(context.Context) error {
		agents, err := repo.Agents()
		if err != nil {
			return err
		}
		for _, a := range agents {
			p := &gateway.AgentPersona{Name: a.Name, Emoji: ":bust_in_silhouette:"}
			if slackN != nil {
				slackN.SetPersona(a.ID, p)
			}
			if discordN != nil {
				discordN.SetPersona(a.ID, p)
			}
		}
		return nil
	})
}
