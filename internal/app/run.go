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

	"horse.fit/tgewatch/internal/cli"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/logging"
)

func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dryRun := fs.Bool("dry-run", false, "Skip fingerprint writes and alert persistence; log would-be alerts")

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
		logger.Error().Err(err).Msg("run failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logger.Warn().Msg("signal received, aborting cycle")
		cancel()
	}()

	orchestrator := buildOrchestrator(cfg, pool, logger, *dryRun)

	logger.Info().Bool("dry_run", *dryRun).Msg("starting detection cycle")
	sessionUUID, err := orchestrator.RunCycle(ctx)
	if err != nil {
		logger.Error().Err(err).Str("session_uuid", sessionUUID).Msg("detection cycle failed")
		fmt.Fprintf(os.Stderr, "Cycle failed (session %s): %v\n", sessionUUID, err)
		return 1
	}

	logger.Info().Str("session_uuid", sessionUUID).Msg("detection cycle completed")
	fmt.Printf("ok: cycle completed, session %s\n", sessionUUID)
	return 0
}
