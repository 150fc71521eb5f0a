package db

import (
	"context"
	"encoding/json"
	"time"
)

// AlertRow is the insert payload for one accepted match.
type AlertRow struct {
	SessionUUID       string
	SourceID          int64
	CompanyName       *string
	Score             float64
	ConfidenceBand    string
	MatchedKeywords   json.RawMessage
	MatchedExclusions json.RawMessage
	URL               *string
	Title             string
	PublishedAt       *time.Time
	Fingerprint       []byte
}

// AlertView is the API-facing projection of an alert.
type AlertView struct {
	AlertUUID         string          `json:"alert_uuid"`
	SessionUUID       string          `json:"session_uuid"`
	SourceID          int64           `json:"source_id"`
	CompanyName       *string         `json:"company_name,omitempty"`
	Score             float64         `json:"score"`
	ConfidenceBand    string          `json:"confidence_band"`
	MatchedKeywords   json.RawMessage `json:"matched_keywords"`
	MatchedExclusions json.RawMessage `json:"matched_exclusions"`
	URL               *string         `json:"url,omitempty"`
	Title             string          `json:"title"`
	PublishedAt       *time.Time      `json:"published_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (p *Pool) InsertAlert(ctx context.Context, row AlertRow, now time.Time) error {
	const q = `
INSERT INTO tge.alerts (
	session_uuid,
	source_id,
	company_name,
	score,
	confidence_band,
	matched_keywords,
	matched_exclusions,
	url,
	title,
	published_at,
	fingerprint,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12)
ON CONFLICT (fingerprint) DO NOTHING
`
	_, err := p.Exec(ctx, q,
		row.SessionUUID,
		row.SourceID,
		row.CompanyName,
		row.Score,
		row.ConfidenceBand,
		string(row.MatchedKeywords),
		string(row.MatchedExclusions),
		row.URL,
		row.Title,
		row.PublishedAt,
		row.Fingerprint,
		now,
	)
	return err
}

// AlertFilter narrows ListAlerts; zero values mean "no constraint".
type AlertFilter struct {
	Band    string
	Company string
	Since   *time.Time
	Limit   int
}

func (p *Pool) ListAlerts(ctx context.Context, filter AlertFilter) ([]AlertView, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const q = `
SELECT alert_uuid, session_uuid, source_id, company_name, score, confidence_band,
	matched_keywords, matched_exclusions, url, title, published_at, created_at
FROM tge.alerts
WHERE ($1 = '' OR confidence_band = $1)
  AND ($2 = '' OR company_name = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
ORDER BY created_at DESC
LIMIT $4
`
	rows, err := p.Query(ctx, q, filter.Band, filter.Company, filter.Since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]AlertView, 0, limit)
	for rows.Next() {
		var view AlertView
		var keywords, exclusions []byte
		if err := rows.Scan(
			&view.AlertUUID,
			&view.SessionUUID,
			&view.SourceID,
			&view.CompanyName,
			&view.Score,
			&view.ConfidenceBand,
			&keywords,
			&exclusions,
			&view.URL,
			&view.Title,
			&view.PublishedAt,
			&view.CreatedAt,
		); err != nil {
			return nil, err
		}
		view.MatchedKeywords = json.RawMessage(keywords)
		view.MatchedExclusions = json.RawMessage(exclusions)
		alerts = append(alerts, view)
	}
	return alerts, rows.Err()
}

// Stats aggregates the counters the dashboard and the stats endpoint show.
type Stats struct {
	Sessions        int64            `json:"sessions"`
	RunningSessions int64            `json:"running_sessions"`
	Sources         int64            `json:"sources"`
	ActiveSources   int64            `json:"active_sources"`
	Fingerprints    int64            `json:"fingerprints"`
	Alerts          int64            `json:"alerts"`
	AlertsByBand    map[string]int64 `json:"alerts_by_band"`
	LastAlertAt     *time.Time       `json:"last_alert_at,omitempty"`
	LastSessionAt   *time.Time       `json:"last_session_at,omitempty"`
}

func (p *Pool) QueryStats(ctx context.Context) (*Stats, error) {
	const q = `
SELECT
	(SELECT count(*) FROM tge.monitoring_sessions),
	(SELECT count(*) FROM tge.monitoring_sessions WHERE status = 'running'),
	(SELECT count(*) FROM tge.sources),
	(SELECT count(*) FROM tge.sources WHERE active),
	(SELECT count(*) FROM tge.fingerprints),
	(SELECT count(*) FROM tge.alerts),
	(SELECT max(created_at) FROM tge.alerts),
	(SELECT max(started_at) FROM tge.monitoring_sessions)
`
	var stats Stats
	err := p.QueryRow(ctx, q).Scan(
		&stats.Sessions,
		&stats.RunningSessions,
		&stats.Sources,
		&stats.ActiveSources,
		&stats.Fingerprints,
		&stats.Alerts,
		&stats.LastAlertAt,
		&stats.LastSessionAt,
	)
	if err != nil {
		return nil, err
	}

	stats.AlertsByBand = make(map[string]int64, 3)
	rows, err := p.Query(ctx, `SELECT confidence_band, count(*) FROM tge.alerts GROUP BY confidence_band`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var band string
		var count int64
		if err := rows.Scan(&band, &count); err != nil {
			return nil, err
		}
		stats.AlertsByBand[band] = count
	}
	return &stats, rows.Err()
}
