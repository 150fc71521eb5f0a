package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:             "local",
		LogLevel:                "info",
		DatabaseURL:             "postgres://localhost/tgewatch",
		DBMinConns:              1,
		DBMaxConns:              8,
		ProximityWindowChars:    200,
		HighKeywordWeight:       40,
		MediumKeywordWeight:     25,
		LowKeywordWeight:        10,
		HighStandaloneFactor:    0.8,
		OtherStandaloneFactor:   0.5,
		ExclusionPenalty:        25,
		FreshnessWindowHours:    24,
		HighBandCutoff:          70,
		MediumBandCutoff:        40,
		MatchLanguages:          "en, EN ,de",
		FetchTimeout:            15 * time.Second,
		FetchRetryMaxAttempts:   3,
		FetchRetryBaseDelay:     500 * time.Millisecond,
		BreakerFailureThreshold: 3,
		BreakerCooldown:         15 * time.Minute,
		SocialRatePerSec:        1,
		NewsConcurrency:         10,
		SocialConcurrency:       4,
		ScrapeDeadline:          4 * time.Minute,
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_RejectsInvertedBandCutoffs(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.MediumBandCutoff = 80
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when medium cutoff is above high cutoff")
	}
}

func TestValidate_RequiresDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DatabaseURL = "   "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for blank DATABASE_URL")
	}
}

func TestMatchLanguageList_DedupesAndNormalizes(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	codes := cfg.MatchLanguageList()
	if len(codes) != 2 || codes[0] != "en" || codes[1] != "de" {
		t.Fatalf("unexpected language list: %v", codes)
	}
}
