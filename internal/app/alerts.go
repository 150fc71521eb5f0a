package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/tgewatch/internal/cli"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/logging"
)

func runAlerts(args []string) int {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	band := fs.String("band", "", "Filter by confidence band (high, medium, low)")
	company := fs.String("company", "", "Filter by resolved company name")
	since := fs.String("since", "", "Only alerts at or after this time (RFC3339 or YYYY-MM-DD)")
	limit := fs.Int("limit", 50, "Maximum alerts to list")
	timeout := fs.Duration("timeout", 10*time.Second, "Query timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	bandFilter := strings.TrimSpace(strings.ToLower(*band))
	switch bandFilter {
	case "", "high", "medium", "low":
	default:
		fmt.Fprintln(os.Stderr, "--band must be high, medium, or low")
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}

	var sinceFilter *time.Time
	if trimmed := strings.TrimSpace(*since); trimmed != "" {
		parsed, err := parseCLITime(trimmed)
		if err != nil {
			fmt.Fprintln(os.Stderr, "--since must be RFC3339 or YYYY-MM-DD")
			return 2
		}
		sinceFilter = &parsed
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
		logger.Error().Err(err).Msg("alerts failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	alerts, err := pool.ListAlerts(ctx, db.AlertFilter{
		Band:    bandFilter,
		Company: strings.TrimSpace(*company),
		Since:   sinceFilter,
		Limit:   *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load alerts: %v\n", err)
		return 1
	}
	return printJSON(alerts)
}

func parseCLITime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse("2006-01-02", raw); err == nil {
		return day.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
