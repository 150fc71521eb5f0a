package fetch

import (
	"sync"
	"time"
)

// Breaker states, stored verbatim in the sources table so health survives
// process restarts.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerState is the persistable view of a breaker, written back to the
// source row at the end of every cycle.
type BreakerState struct {
	State               string
	ConsecutiveFailures int
	OpenedAt            *time.Time
	LastSuccessAt       *time.Time
}

// Breaker is a per-source circuit breaker. Closed counts consecutive
// failures; at the threshold it opens and all calls are refused until the
// cooldown elapses, after which exactly one probe is let through. A probe
// success closes the circuit, a probe failure re-opens it.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	state         string
	failures      int
	openedAt      *time.Time
	lastSuccessAt *time.Time
	probing       bool
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return Restore(threshold, cooldown, BreakerState{State: StateClosed})
}

// Restore rebuilds a breaker from persisted health so an open circuit stays
// open across restarts.
func Restore(threshold int, cooldown time.Duration, saved BreakerState) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}

	state := saved.State
	switch state {
	case StateClosed, StateOpen, StateHalfOpen:
	default:
		state = StateClosed
	}

	return &Breaker{
		threshold:     threshold,
		cooldown:      cooldown,
		state:         state,
		failures:      saved.ConsecutiveFailures,
		openedAt:      saved.OpenedAt,
		lastSuccessAt: saved.LastSuccessAt,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// cooldown has elapsed transitions to half-open and admits a single probe;
// concurrent callers see false until the probe resolves.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.openedAt == nil || now.Sub(*b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.openedAt = nil
	b.probing = false
	t := now
	b.lastSuccessAt = &t
}

func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false

	switch b.state {
	case StateHalfOpen:
		b.open(now)
	case StateClosed:
		if b.failures >= b.threshold {
			b.open(now)
		}
	case StateOpen:
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	t := now
	b.openedAt = &t
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerState{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            copyTime(b.openedAt),
		LastSuccessAt:       copyTime(b.lastSuccessAt),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
