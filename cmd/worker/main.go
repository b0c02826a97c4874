// Package main is the entry point of the maintenance worker: a small
// process running the retention purges (link tokens, webhook dedup rows,
// stale bot sessions) on a schedule, separate from the gateway so a slow
// purge never competes with webhook traffic.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/psyhub-dev/psyhub-gateway/config"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/persistence/postgres"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/scheduler"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/scheduler/jobs"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	logOpts := logger.DefaultOptions()
	if cfg.App.Debug {
		logOpts.Level = logger.LevelDebug
	}
	log := logger.New(logOpts).With(logger.Component("worker"))
	log.Info("starting maintenance worker", logger.String("version", cfg.App.Version))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE CONNECTION
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. JOBS & SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	sched := scheduler.New(schedCfg)

	linkRepo := postgres.NewLinkRepository(conn)
	stateRepo := postgres.NewStateRepository(conn)
	dedupRepo := postgres.NewDedupRepository(conn)

	if err := sched.Register(&jobs.PurgeDedup{Repo: dedupRepo, Log: log}, scheduler.Every(time.Hour)); err != nil {
		return err
	}
	if err := sched.Register(&jobs.PurgeLinkTokens{Repo: linkRepo, Log: log}, scheduler.DailyAt(3, 0)); err != nil {
		return err
	}
	if err := sched.Register(&jobs.PurgeSessions{Repo: stateRepo, Log: log}, scheduler.DailyAt(3, 30)); err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	sched.Stop()
	log.Info("shutdown completed successfully")
	return nil
}
