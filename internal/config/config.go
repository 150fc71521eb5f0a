package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"TW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"TW_DB_MAX_CONNS" default:"8"`

	// Scoring. These are operating defaults, not canon; the production
	// numbers drifted across deployments, so every knob stays configurable.
	ProximityWindowChars  int     `envconfig:"TW_PROXIMITY_WINDOW_CHARS" default:"200"`
	HighKeywordWeight     float64 `envconfig:"TW_HIGH_KEYWORD_WEIGHT" default:"40"`
	MediumKeywordWeight   float64 `envconfig:"TW_MEDIUM_KEYWORD_WEIGHT" default:"25"`
	LowKeywordWeight      float64 `envconfig:"TW_LOW_KEYWORD_WEIGHT" default:"10"`
	HighStandaloneFactor  float64 `envconfig:"TW_HIGH_STANDALONE_FACTOR" default:"0.8"`
	OtherStandaloneFactor float64 `envconfig:"TW_OTHER_STANDALONE_FACTOR" default:"0.5"`
	ExclusionPenalty      float64 `envconfig:"TW_EXCLUSION_PENALTY" default:"25"`
	FreshnessWindowHours  int     `envconfig:"TW_FRESHNESS_WINDOW_HOURS" default:"24"`
	FreshnessBonus        float64 `envconfig:"TW_FRESHNESS_BONUS" default:"10"`
	TimeSensitiveBonus    float64 `envconfig:"TW_TIME_SENSITIVE_BONUS" default:"5"`
	HighBandCutoff        float64 `envconfig:"TW_HIGH_BAND_CUTOFF" default:"70"`
	MediumBandCutoff      float64 `envconfig:"TW_MEDIUM_BAND_CUTOFF" default:"40"`
	MatchLanguages        string  `envconfig:"TW_MATCH_LANGUAGES" default:"en"`

	// Fetching.
	FetchTimeout            time.Duration `envconfig:"TW_FETCH_TIMEOUT" default:"15s"`
	FetchRetryMaxAttempts   int           `envconfig:"TW_FETCH_RETRY_MAX_ATTEMPTS" default:"3"`
	FetchRetryBaseDelay     time.Duration `envconfig:"TW_FETCH_RETRY_BASE_DELAY" default:"500ms"`
	BreakerFailureThreshold int           `envconfig:"TW_BREAKER_FAILURE_THRESHOLD" default:"3"`
	BreakerCooldown         time.Duration `envconfig:"TW_BREAKER_COOLDOWN" default:"15m"`
	SocialRatePerSec        float64       `envconfig:"TW_SOCIAL_RATE_PER_SEC" default:"1"`
	SocialBearerToken       string        `envconfig:"TW_SOCIAL_BEARER_TOKEN" default:""`

	// Cycle orchestration.
	NewsConcurrency   int           `envconfig:"TW_NEWS_CONCURRENCY" default:"10"`
	SocialConcurrency int           `envconfig:"TW_SOCIAL_CONCURRENCY" default:"4"`
	ScrapeDeadline    time.Duration `envconfig:"TW_SCRAPE_DEADLINE" default:"4m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("TW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("TW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("TW_DB_MIN_CONNS (%d) cannot exceed TW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ProximityWindowChars < 1 {
		return fmt.Errorf("TW_PROXIMITY_WINDOW_CHARS must be >= 1")
	}
	if c.HighStandaloneFactor <= 0 || c.HighStandaloneFactor > 1 {
		return fmt.Errorf("TW_HIGH_STANDALONE_FACTOR must be in (0, 1]")
	}
	if c.OtherStandaloneFactor <= 0 || c.OtherStandaloneFactor > 1 {
		return fmt.Errorf("TW_OTHER_STANDALONE_FACTOR must be in (0, 1]")
	}
	if c.MediumBandCutoff >= c.HighBandCutoff {
		return fmt.Errorf("TW_MEDIUM_BAND_CUTOFF (%v) must be below TW_HIGH_BAND_CUTOFF (%v)", c.MediumBandCutoff, c.HighBandCutoff)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("TW_FETCH_TIMEOUT must be positive")
	}
	if c.FetchRetryMaxAttempts < 1 {
		return fmt.Errorf("TW_FETCH_RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("TW_BREAKER_FAILURE_THRESHOLD must be >= 1")
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("TW_BREAKER_COOLDOWN must be positive")
	}
	if c.NewsConcurrency < 1 {
		return fmt.Errorf("TW_NEWS_CONCURRENCY must be >= 1")
	}
	if c.SocialConcurrency < 1 {
		return fmt.Errorf("TW_SOCIAL_CONCURRENCY must be >= 1")
	}
	if c.ScrapeDeadline <= 0 {
		return fmt.Errorf("TW_SCRAPE_DEADLINE must be positive")
	}
	return nil
}

// MatchLanguageList returns the deduplicated ISO-639-1 codes the matcher
// accepts. An empty list disables language filtering.
func (c *Config) MatchLanguageList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.MatchLanguages, ",")
	codes := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, exists := seen[code]; exists {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
