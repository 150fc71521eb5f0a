package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"horse.fit/tgewatch/internal/cli"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/logging"
	"horse.fit/tgewatch/internal/monitor"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	schedule := fs.String("schedule", "*/15 * * * *", "Cron schedule for detection cycles")
	immediate := fs.Bool("immediate", false, "Run one cycle immediately before the first scheduled tick")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("watch failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator := buildOrchestrator(cfg, pool, logger, false)

	tick := func() {
		sessionUUID, cycleErr := orchestrator.RunCycle(ctx)
		switch {
		case cycleErr == nil:
			logger.Info().Str("session_uuid", sessionUUID).Msg("scheduled cycle completed")
		case errors.Is(cycleErr, monitor.ErrCycleInProgress):
			logger.Warn().Msg("previous cycle still running, skipping tick")
		case ctx.Err() != nil:
			// Shutting down; the abort is already logged by the cycle.
		default:
			logger.Error().Err(cycleErr).Str("session_uuid", sessionUUID).Msg("scheduled cycle failed")
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*schedule, tick); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --schedule %q: %v\n", *schedule, err)
		return 2
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info().Str("schedule", *schedule).Msg("watch started")
	scheduler.Start()

	if *immediate {
		go tick()
	}

	<-sigCh
	logger.Info().Msg("signal received, stopping watch")
	cancel()

	// Stop scheduling new ticks, then wait for the in-flight one; the
	// cancelled context makes it wind down as an aborted session.
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("timed out waiting for running cycle to stop")
	}

	logger.Info().Msg("watch stopped")
	return 0
}
