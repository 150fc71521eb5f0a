// Package alert defines the alert payload and the sinks that deliver it.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/tgewatch/internal/db"
)

// Alert is one accepted detection, fully resolved and ready to deliver.
type Alert struct {
	SessionUUID       string
	SourceID          int64
	SourceLabel       string
	CompanyName       string
	Score             float64
	Band              string
	MatchedKeywords   []string
	MatchedExclusions []string
	URL               string
	Title             string
	PublishedAt       *time.Time
	Fingerprint       []byte
}

// Sink delivers alerts. Emit must be safe for concurrent use; delivery
// happens only after the fingerprint write has committed, so a crashed
// delivery loses the alert rather than duplicating it.
type Sink interface {
	Emit(ctx context.Context, a Alert) error
}

// DBSink persists alerts to the alerts table.
type DBSink struct {
	pool *db.Pool
	now  func() time.Time
}

func NewDBSink(pool *db.Pool, now func() time.Time) *DBSink {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DBSink{pool: pool, now: now}
}

func (s *DBSink) Emit(ctx context.Context, a Alert) error {
	keywords, err := json.Marshal(nonNil(a.MatchedKeywords))
	if err != nil {
		return fmt.Errorf("marshal matched keywords: %w", err)
	}
	exclusions, err := json.Marshal(nonNil(a.MatchedExclusions))
	if err != nil {
		return fmt.Errorf("marshal matched exclusions: %w", err)
	}

	row := db.AlertRow{
		SessionUUID:       a.SessionUUID,
		SourceID:          a.SourceID,
		Score:             a.Score,
		ConfidenceBand:    a.Band,
		MatchedKeywords:   keywords,
		MatchedExclusions: exclusions,
		Title:             a.Title,
		PublishedAt:       a.PublishedAt,
		Fingerprint:       a.Fingerprint,
	}
	if a.CompanyName != "" {
		row.CompanyName = &a.CompanyName
	}
	if a.URL != "" {
		row.URL = &a.URL
	}

	if err := s.pool.InsertAlert(ctx, row, s.now()); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// LogSink writes alerts to the structured log. Used for dry runs and as a
// secondary sink in every deployment.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, a Alert) error {
	s.log.Info().
		Str("session_uuid", a.SessionUUID).
		Str("source", a.SourceLabel).
		Str("company", a.CompanyName).
		Float64("score", a.Score).
		Str("band", a.Band).
		Strs("keywords", a.MatchedKeywords).
		Str("url", a.URL).
		Msg("alert")
	return nil
}

// MultiSink fans one alert out to several sinks, returning the first error
// after attempting all of them.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, a Alert) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Emit(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
