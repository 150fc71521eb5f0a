package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionStore is the persistence contract for session lifecycle writes.
// *db.Pool satisfies it; tests use an in-memory fake.
type SessionStore interface {
	InsertSession(ctx context.Context, sessionUUID string, metrics json.RawMessage, startedAt time.Time) error
	UpdateSessionProgress(ctx context.Context, sessionUUID, status, phase string, progress int, metrics json.RawMessage, now time.Time) error
	FinishSession(ctx context.Context, sessionUUID, status, phase string, progress int, metrics json.RawMessage, errorMessage *string, endedAt time.Time) error
}

// session tracks one running cycle. Phase advances persist BEFORE the
// phase's work begins, so a poller reading the row always sees a phase that
// is genuinely underway.
type session struct {
	uuid  string
	store SessionStore
	log   zerolog.Logger
	now   func() time.Time

	mu           sync.Mutex
	phase        Phase
	metrics      *Metrics
	phaseStarted time.Time
}

func newSession(ctx context.Context, uuid string, store SessionStore, log zerolog.Logger, now func() time.Time) (*session, error) {
	s := &session{
		uuid:         uuid,
		store:        store,
		log:          log.With().Str("session_uuid", uuid).Logger(),
		now:          now,
		phase:        PhasePending,
		metrics:      newMetrics(),
		phaseStarted: now(),
	}
	if err := store.InsertSession(ctx, uuid, s.metrics.JSON(), s.phaseStarted); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// advance validates the transition, closes out the duration of the phase
// being left, and persists the new phase before returning.
func (s *session) advance(ctx context.Context, to Phase) error {
	s.mu.Lock()
	from := s.phase
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("illegal phase transition %s -> %s", from, to)
	}
	now := s.now()
	s.recordPhaseDurationLocked(from, now)
	s.phase = to
	s.phaseStarted = now
	metrics := s.metrics.JSON()
	s.mu.Unlock()

	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Int("progress", to.Progress()).Msg("phase transition")
	if err := s.store.UpdateSessionProgress(ctx, s.uuid, to.Status(), string(to), to.Progress(), metrics, now); err != nil {
		return fmt.Errorf("persist phase %s: %w", to, err)
	}
	return nil
}

// updateMetrics applies a mutation copy-on-write. The swap keeps every
// previously marshaled snapshot immutable.
func (s *session) updateMetrics(mutate func(*Metrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.metrics.Clone()
	mutate(next)
	s.metrics = next
}

func (s *session) snapshotMetrics() *Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *session) complete(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	s.recordPhaseDurationLocked(s.phase, now)
	s.phase = PhaseCompleted
	metrics := s.metrics.JSON()
	s.mu.Unlock()

	if err := s.store.FinishSession(ctx, s.uuid, StatusCompleted, string(PhaseCompleted), PhaseCompleted.Progress(), metrics, nil, now); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	s.log.Info().Msg("cycle completed")
	return nil
}

// fail absorbs the session into the failed state, keeping the progress the
// cycle actually reached. It deliberately takes a fresh context so a
// canceled cycle can still record its failure.
func (s *session) fail(cause error) {
	s.mu.Lock()
	now := s.now()
	reached := s.phase.Progress()
	s.recordPhaseDurationLocked(s.phase, now)
	s.phase = PhaseFailed
	metrics := s.metrics.JSON()
	s.mu.Unlock()

	message := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.FinishSession(ctx, s.uuid, StatusFailed, string(PhaseFailed), reached, metrics, &message, now); err != nil {
		s.log.Error().Err(err).Msg("persist session failure")
	}
	s.log.Error().Err(cause).Msg("cycle failed")
}

func (s *session) recordPhaseDurationLocked(phase Phase, now time.Time) {
	if phase == PhasePending {
		return
	}
	next := s.metrics.Clone()
	next.PhaseDurationsMS[string(phase)] += now.Sub(s.phaseStarted).Milliseconds()
	s.metrics = next
}
