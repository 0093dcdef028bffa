// Package main runs the hunting bot: the targeting engine driving a simulated world on
// the cooperative host loop, with a gRPC health endpoint reporting its state.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/control"
	"github.com/cory-johannsen/huntbot/internal/host"
	"github.com/cory-johannsen/huntbot/internal/hunt"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/observability"
	"github.com/cory-johannsen/huntbot/internal/scripting"
	"github.com/cory-johannsen/huntbot/internal/server"
	"github.com/cory-johannsen/huntbot/internal/sim"
	"github.com/cory-johannsen/huntbot/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenarioPath := flag.String("scenario", "", "override sim.scenario")
	startPaused := flag.Bool("paused", false, "start with target acquisition paused")
	statsInterval := flag.Duration("stats-interval", 30*time.Second, "how often to log session statistics")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *scenarioPath != "" {
		cfg.Sim.Scenario = *scenarioPath
	}

	logger, err := observability.NewLogger(cfg.Logging, "huntbot")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting huntbot",
		zap.String("control_addr", cfg.Control.Addr()),
		zap.String("scenario", cfg.Sim.Scenario),
		zap.String("policy", cfg.Engine.Targeting.Policy),
	)

	lifecycle := server.NewLifecycle(logger)

	// Behavior rules: YAML files first, then PostgreSQL rows override them.
	var sink behavior.Sink
	var repo *postgres.BehaviorRepository
	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	switch {
	case errors.Is(err, postgres.ErrDisabled):
		logger.Info("database disabled; behavior changes are not persisted")
	case err != nil:
		logger.Fatal("connecting to database", zap.Error(err))
	default:
		repo = postgres.NewBehaviorRepository(pool.DB())
		sink = repo.SinkFor(ctx)
	}
	registry := behavior.NewRegistry(sink)

	behaviorStart := time.Now()
	files, err := behavior.LoadDir(cfg.Engine.BehaviorsDir)
	if err != nil {
		logger.Warn("some behavior files were skipped", zap.String("dir", cfg.Engine.BehaviorsDir), zap.Error(err))
	}
	if err := registry.Load(files); err != nil {
		logger.Warn("invalid behavior files", zap.Error(err))
	}
	if repo != nil {
		rows, err := repo.List(ctx)
		if err != nil {
			logger.Fatal("listing stored behaviors", zap.Error(err))
		}
		if err := registry.Load(rows); err != nil {
			logger.Warn("invalid stored behaviors", zap.Error(err))
		}
	}
	logger.Info("behaviors loaded",
		zap.Int("count", registry.Len()),
		zap.Duration("elapsed", time.Since(behaviorStart)),
	)

	eval := scripting.NewEvaluator(cfg.Scripting.InstructionLimit, logger)
	defer eval.Close()
	if cfg.Scripting.ScriptsDir != "" {
		if err := eval.LoadDir(cfg.Scripting.ScriptsDir); err != nil {
			logger.Fatal("loading trigger helpers", zap.Error(err))
		}
	}

	scenario, err := sim.LoadScenario(cfg.Sim.Scenario)
	if err != nil {
		logger.Fatal("loading scenario", zap.Error(err))
	}
	world := sim.NewWorld(scenario, logger.Named("sim"))

	loop := host.NewLoop(cfg.Host.Resolution, logger.Named("host"))
	engine, err := hunt.New(cfg.Engine.HuntConfig(), hunt.Deps{
		World:     world,
		Self:      world,
		Behaviors: registry,
		Timer:     loop,
		Abilities: world,
		Items:     world,
		Auto:      world,
		Eval:      eval,
	}, logger.Named("engine"))
	if err != nil {
		logger.Fatal("creating engine", zap.Error(err))
	}
	world.SetPursuer(engine)

	ctrl := control.NewServer(cfg.Control.Addr(), logger.Named("control"))

	// Every periodic task runs on the loop goroutine, so the engine and world are never
	// touched concurrently.
	loop.RegisterPeriodic(cfg.Sim.StepInterval, world.Step)
	loop.RegisterPeriodic(cfg.Control.SyncInterval, func(time.Time) { ctrl.Sync(engine) })
	loop.RegisterPeriodic(*statsInterval, func(time.Time) {
		stats := engine.Statistics()
		logger.Info("session statistics",
			zap.Int("kills", stats.KillCount),
			zap.Int("casts", stats.AbilityCastCount),
			zap.Int("items", stats.ItemUseCount),
			zap.Int("switches", stats.SwitchCount),
			zap.Stringer("tier", engine.Tier()),
			zap.Int("deaths", world.Stats().Deaths),
		)
	})
	engine.SetEnabled(true)
	if *startPaused {
		engine.Pause()
	}

	lifecycle.Add("host-loop", server.RunFunc(loop.Run))
	lifecycle.Add("control", ctrl)
	if pool != nil {
		lifecycle.Add("postgres", server.RunFunc(func(ctx context.Context) error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			defer pool.Close()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		}))
	}

	logger.Info("huntbot initialized", zap.Duration("startup", time.Since(start)))

	runErr := lifecycle.Run(ctx)

	// The loop has stopped; tearing the engine down here cannot race a tick.
	engine.SetEnabled(false)
	ws := world.Stats()
	logger.Info("simulation summary",
		zap.Int("spawns", ws.Spawns),
		zap.Int("kills", ws.Kills),
		zap.Int("deaths", ws.Deaths),
		zap.Int("damage_dealt", ws.DamageDealt),
		zap.Int("damage_taken", ws.DamageTaken),
	)
	if runErr != nil {
		logger.Fatal("server error", zap.Error(runErr))
	}
}
