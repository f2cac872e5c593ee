package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Farjord/dronewars-server/internal/config"
	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/ai"
	"github.com/Farjord/dronewars-server/internal/match"
	"github.com/Farjord/dronewars-server/internal/repository"
	"github.com/Farjord/dronewars-server/internal/server"
	gamesync "github.com/Farjord/dronewars-server/internal/sync"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting dronewars server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	var store *repository.MatchRepository
	if cfg.Database.Enabled {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		store = repository.NewMatchRepository(db)
		logger.Info("match persistence enabled")

		go pruneLoop(ctx, store, cfg.Match.ReplayRetention, logger)
	}

	engine := game.NewEngine(logger)

	director := ai.NewDirector(logger, aiWeights(cfg.AI))
	engine.SetInterceptionChooser(director)
	runner := ai.NewRunner(engine, director, logger)
	logger.Info("ai director initialized", zap.String("difficulty", cfg.AI.Difficulty))

	lobbies := match.NewManager(engine, cfg.Match.JoinCodeLength, cfg.Match.LobbyTimeout, logger)
	go expireLoop(ctx, lobbies, logger)

	host := gamesync.NewHost(engine, logger)
	defer host.Close()

	srv := server.New(cfg.Server, engine, lobbies, host, runner, store, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// aiWeights builds the director's weight set from the difficulty preset plus
// any per-weight overrides.
func aiWeights(cfg config.AIConfig) ai.Weights {
	w := ai.WeightsFor(ai.Difficulty(cfg.Difficulty))
	if cfg.MaxInterceptCost != nil {
		w.MaxInterceptCost = *cfg.MaxInterceptCost
	}
	if cfg.EnergyReserve != nil {
		w.EnergyReserve = *cfg.EnergyReserve
	}
	if cfg.SectionAggression != nil {
		w.SectionAggression = *cfg.SectionAggression
	}
	if cfg.UseSectionAbilities != nil {
		w.UseSectionAbilities = *cfg.UseSectionAbilities
	}
	return w
}

func expireLoop(ctx context.Context, lobbies *match.Manager, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := lobbies.ExpireStale(now); n > 0 {
				logger.Info("expired stale lobbies", zap.Int("count", n))
			}
		}
	}
}

func pruneLoop(ctx context.Context, store *repository.MatchRepository, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("pruning replays", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned old replays", zap.Int64("count", n))
			}
		}
	}
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
