package db

import (
	"context"
	"fmt"
	"time"
)

// SourceHealth carries the circuit breaker fields written back after a cycle.
type SourceHealth struct {
	SourceID            int64
	ConsecutiveFailures int
	CircuitState        string
	OpenedAt            *time.Time
	LastSuccessAt       *time.Time
}

func (p *Pool) ListActiveSources(ctx context.Context) ([]Source, error) {
	const q = `
SELECT source_id, source_uuid, kind, label, endpoint, account, priority_tier, active,
	consecutive_failures, circuit_state, opened_at, last_success_at, deactivated_reason,
	created_at, updated_at
FROM tge.sources
WHERE active
ORDER BY priority_tier ASC, label ASC
`
	return p.scanSources(ctx, q)
}

func (p *Pool) ListSources(ctx context.Context) ([]Source, error) {
	const q = `
SELECT source_id, source_uuid, kind, label, endpoint, account, priority_tier, active,
	consecutive_failures, circuit_state, opened_at, last_success_at, deactivated_reason,
	created_at, updated_at
FROM tge.sources
ORDER BY priority_tier ASC, label ASC
`
	return p.scanSources(ctx, q)
}

func (p *Pool) scanSources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]Source, 0, 16)
	for rows.Next() {
		var s Source
		if err := rows.Scan(
			&s.SourceID,
			&s.SourceUUID,
			&s.Kind,
			&s.Label,
			&s.Endpoint,
			&s.Account,
			&s.PriorityTier,
			&s.Active,
			&s.ConsecutiveFailures,
			&s.CircuitState,
			&s.OpenedAt,
			&s.LastSuccessAt,
			&s.DeactivatedReason,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (p *Pool) UpdateSourceHealth(ctx context.Context, health SourceHealth, now time.Time) error {
	const q = `
UPDATE tge.sources
SET consecutive_failures = $2,
	circuit_state = $3,
	opened_at = $4,
	last_success_at = $5,
	updated_at = $6
WHERE source_id = $1
`
	tag, err := p.Exec(ctx, q, health.SourceID, health.ConsecutiveFailures, health.CircuitState, health.OpenedAt, health.LastSuccessAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d not found", health.SourceID)
	}
	return nil
}

// DeactivateSource flags a permanently broken source; it is never deleted.
func (p *Pool) DeactivateSource(ctx context.Context, sourceID int64, reason string, now time.Time) error {
	const q = `
UPDATE tge.sources
SET active = false,
	deactivated_reason = $2,
	updated_at = $3
WHERE source_id = $1
`
	tag, err := p.Exec(ctx, q, sourceID, reason, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d not found", sourceID)
	}
	return nil
}

func (p *Pool) UpsertSource(ctx context.Context, kind, label, endpoint string, account *string, priorityTier int16, now time.Time) error {
	const q = `
INSERT INTO tge.sources (kind, label, endpoint, account, priority_tier, active, consecutive_failures, circuit_state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, true, 0, 'closed', $6, $6)
ON CONFLICT (label) DO UPDATE
SET kind = EXCLUDED.kind,
	endpoint = EXCLUDED.endpoint,
	account = EXCLUDED.account,
	priority_tier = EXCLUDED.priority_tier,
	active = true,
	deactivated_reason = NULL,
	updated_at = EXCLUDED.updated_at
`
	_, err := p.Exec(ctx, q, kind, label, endpoint, account, priorityTier, now)
	return err
}
