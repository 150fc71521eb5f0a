package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/tgewatch/internal/alert"
	"horse.fit/tgewatch/internal/config"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/dedupe"
	"horse.fit/tgewatch/internal/fetch"
	"horse.fit/tgewatch/internal/globaltime"
	"horse.fit/tgewatch/internal/langdetect"
	"horse.fit/tgewatch/internal/match"
	"horse.fit/tgewatch/internal/monitor"
	"horse.fit/tgewatch/internal/registry"
)

// buildOrchestrator assembles a cycle orchestrator from configuration. With
// dryRun set, the database-backed dedupe store and alert sink are swapped for
// in-memory equivalents so a cycle can run without recording detections;
// session and source health rows are still written.
func buildOrchestrator(cfg *config.Config, pool *db.Pool, logger zerolog.Logger, dryRun bool) *monitor.Orchestrator {
	news := fetch.NewNewsClient(fetch.NewsOptions{
		Timeout:         cfg.FetchTimeout,
		ExtractArticles: true,
	})
	social := fetch.NewSocialClient(fetch.SocialOptions{
		Timeout:       cfg.FetchTimeout,
		BearerToken:   cfg.SocialBearerToken,
		RatePerSecond: cfg.SocialRatePerSec,
	})

	var dedup dedupe.Store = dedupe.NewPostgresStore(pool)
	var sink alert.Sink = alert.MultiSink{
		alert.NewDBSink(pool, globaltime.UTC),
		alert.NewLogSink(logger),
	}
	if dryRun {
		dedup = dedupe.NewMemoryStore()
		sink = alert.NewLogSink(logger)
	}

	deps := monitor.Deps{
		Sessions: pool,
		Health:   pool,
		LoadRegistry: func(ctx context.Context) (*registry.Snapshot, error) {
			return registry.Load(ctx, pool)
		},
		News:          news,
		Social:        social,
		Dedup:         dedup,
		Sink:          sink,
		MatcherConfig: matcherConfig(cfg),
		DetectLanguage: func(text string) (string, bool) {
			code := langdetect.DetectISO6391(text)
			return code, code != ""
		},
		Log: logger,
		Now: globaltime.UTC,
	}

	opts := monitor.Options{
		NewsConcurrency:   cfg.NewsConcurrency,
		SocialConcurrency: cfg.SocialConcurrency,
		ScrapeDeadline:    cfg.ScrapeDeadline,
		BreakerThreshold:  cfg.BreakerFailureThreshold,
		BreakerCooldown:   cfg.BreakerCooldown,
		Retry: fetch.RetryPolicy{
			MaxAttempts: cfg.FetchRetryMaxAttempts,
			BaseDelay:   cfg.FetchRetryBaseDelay,
		},
		Languages: cfg.MatchLanguageList(),
	}

	return monitor.New(deps, opts)
}

func matcherConfig(cfg *config.Config) match.Config {
	mc := match.DefaultConfig()
	mc.ProximityWindow = cfg.ProximityWindowChars
	mc.HighWeight = cfg.HighKeywordWeight
	mc.MediumWeight = cfg.MediumKeywordWeight
	mc.LowWeight = cfg.LowKeywordWeight
	mc.HighStandaloneFactor = cfg.HighStandaloneFactor
	mc.OtherStandaloneFactor = cfg.OtherStandaloneFactor
	mc.ExclusionPenalty = cfg.ExclusionPenalty
	mc.FreshnessWindow = time.Duration(cfg.FreshnessWindowHours) * time.Hour
	mc.FreshnessBonus = cfg.FreshnessBonus
	mc.TimeSensitiveBonus = cfg.TimeSensitiveBonus
	mc.HighBandCutoff = cfg.HighBandCutoff
	mc.MediumBandCutoff = cfg.MediumBandCutoff
	return mc
}
