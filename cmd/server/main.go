package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"creature-tree/internal/api"
	"creature-tree/internal/config"
	"creature-tree/internal/game"
	"creature-tree/internal/logging"
	"creature-tree/internal/render"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	// .env is optional; the process environment always applies.
	_ = godotenv.Load(".env")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func loadConfig(path string) (config.AppConfig, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg := config.Load()
	return cfg, cfg.Validate()
}

func run(cfg config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stats := config.DefaultCreatureStats()
	if path := cfg.World.StatsFile; path != "" {
		loaded, err := config.LoadCreatureStats(path)
		if err != nil {
			return err
		}
		stats = loaded
	}

	engine, err := game.NewEngine(game.Options{
		World:      cfg.World,
		Spatial:    cfg.Spatial,
		Stats:      stats,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	if path := cfg.World.StatsFile; path != "" {
		watcher, err := config.NewStatsWatcher(path)
		if err != nil {
			logger.Warn("creature stats hot reload disabled", zap.String("path", path), zap.Error(err))
		} else {
			defer watcher.Close()
			go engine.WatchStats(ctx, watcher)
			logger.Info("watching creature stats", zap.String("path", path))
		}
	}

	if path := cfg.World.EventLog; path != "" {
		if err := engine.StartEventLog(path); err != nil {
			logger.Warn("event log disabled", zap.Error(err))
		} else {
			logger.Info("event log", zap.String("path", path))
		}
	}

	debug, derr := api.StartDebugServer(cfg.Observability, reg, logger.Named("debug"))
	if derr != nil {
		logger.Warn("debug server disabled", zap.Error(derr))
	}

	server := api.NewServer(engine, api.ServerOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Render:      render.DefaultConfig(),
		Metrics:     api.NewMetrics(reg),
		Logger:      logger,
	})

	logger.Info("creature index starting",
		zap.String("backend", cfg.Spatial.Backend),
		zap.String("boundary", cfg.Spatial.Boundary),
		zap.Int("creatures", cfg.World.Creatures),
		zap.Int("tps", cfg.World.TickRate),
		zap.Int("world_width", cfg.World.Width),
		zap.Int("world_height", cfg.World.Height))

	engine.Start()

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
		if runErr != nil {
			logger.Error("API server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine.Stop()
	if lerr := engine.StopEventLog(); lerr != nil {
		logger.Warn("event log close", zap.Error(lerr))
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("API server shutdown", zap.Error(serr))
	}
	if derr := debug.Shutdown(shutdownCtx); derr != nil {
		logger.Warn("debug server shutdown", zap.Error(derr))
	}
	return runErr
}
