package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SessionView is the poller-facing projection of a monitoring session.
type SessionView struct {
	SessionUUID        string          `json:"session_uuid"`
	Status             string          `json:"status"`
	CurrentPhase       string          `json:"current_phase"`
	ProgressPercentage int             `json:"progress_percentage"`
	PerformanceMetrics json.RawMessage `json:"performance_metrics"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	EndedAt            *time.Time      `json:"ended_at,omitempty"`
}

func (p *Pool) InsertSession(ctx context.Context, sessionUUID string, metrics json.RawMessage, startedAt time.Time) error {
	const q = `
INSERT INTO tge.monitoring_sessions (
	session_uuid,
	status,
	current_phase,
	progress_percentage,
	performance_metrics,
	started_at,
	created_at,
	updated_at
)
VALUES ($1, 'pending', 'pending', 0, $2::jsonb, $3, $3, $3)
`
	_, err := p.Exec(ctx, q, sessionUUID, string(metrics), startedAt)
	return err
}

// UpdateSessionProgress persists phase, progress, and the full metrics value
// in a single UPDATE. The metrics jsonb is always rewritten wholesale: an
// in-place mutation of a nested field is invisible to the persistence layer.
func (p *Pool) UpdateSessionProgress(ctx context.Context, sessionUUID, status, phase string, progress int, metrics json.RawMessage, now time.Time) error {
	const q = `
UPDATE tge.monitoring_sessions
SET status = $2,
	current_phase = $3,
	progress_percentage = $4,
	performance_metrics = $5::jsonb,
	updated_at = $6
WHERE session_uuid = $1
`
	tag, err := p.Exec(ctx, q, sessionUUID, status, phase, progress, string(metrics), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", sessionUUID)
	}
	return nil
}

func (p *Pool) FinishSession(ctx context.Context, sessionUUID, status, phase string, progress int, metrics json.RawMessage, errorMessage *string, endedAt time.Time) error {
	const q = `
UPDATE tge.monitoring_sessions
SET status = $2,
	current_phase = $3,
	progress_percentage = $4,
	performance_metrics = $5::jsonb,
	error_message = $6,
	ended_at = $7,
	updated_at = $7
WHERE session_uuid = $1
`
	tag, err := p.Exec(ctx, q, sessionUUID, status, phase, progress, string(metrics), errorMessage, endedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", sessionUUID)
	}
	return nil
}

func (p *Pool) GetSession(ctx context.Context, sessionUUID string) (*SessionView, error) {
	const q = `
SELECT session_uuid, status, current_phase, progress_percentage, performance_metrics, error_message, started_at, ended_at
FROM tge.monitoring_sessions
WHERE session_uuid = $1
`
	var view SessionView
	var metrics []byte
	err := p.QueryRow(ctx, q, sessionUUID).Scan(
		&view.SessionUUID,
		&view.Status,
		&view.CurrentPhase,
		&view.ProgressPercentage,
		&metrics,
		&view.ErrorMessage,
		&view.StartedAt,
		&view.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	view.PerformanceMetrics = json.RawMessage(metrics)
	return &view, nil
}

func (p *Pool) ListRecentSessions(ctx context.Context, limit int) ([]SessionView, error) {
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT session_uuid, status, current_phase, progress_percentage, performance_metrics, error_message, started_at, ended_at
FROM tge.monitoring_sessions
ORDER BY started_at DESC
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]SessionView, 0, limit)
	for rows.Next() {
		var view SessionView
		var metrics []byte
		if err := rows.Scan(
			&view.SessionUUID,
			&view.Status,
			&view.CurrentPhase,
			&view.ProgressPercentage,
			&metrics,
			&view.ErrorMessage,
			&view.StartedAt,
			&view.EndedAt,
		); err != nil {
			return nil, err
		}
		view.PerformanceMetrics = json.RawMessage(metrics)
		sessions = append(sessions, view)
	}
	return sessions, rows.Err()
}
