package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/tgewatch/internal/cli"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/globaltime"
	"horse.fit/tgewatch/internal/logging"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	olderThan := fs.Duration("older-than", 90*24*time.Hour, "Delete fingerprints first seen before now minus this window")
	timeout := fs.Duration("timeout", 60*time.Second, "Sweep timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "--older-than must be positive")
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("sweep failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	cutoff := globaltime.UTC().Add(-*olderThan)
	deleted, err := pool.DeleteFingerprintsBefore(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Time("cutoff", cutoff).Msg("fingerprint sweep failed")
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("fingerprint sweep completed")
	fmt.Printf("ok: deleted %d fingerprints first seen before %s\n", deleted, cutoff.Format(time.RFC3339))
	return 0
}
