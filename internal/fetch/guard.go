package fetch

import (
	"context"
	"time"

	"horse.fit/tgewatch/internal/registry"
)

// Fetcher is the transport-level client contract shared by the news and
// social clients.
type Fetcher interface {
	Fetch(ctx context.Context, source registry.Source) ([]Item, error)
}

// Guard wraps one source's fetches with its circuit breaker and the retry
// policy. An open circuit short-circuits before any network call. Rate
// limiting passes through untouched: it is neither retried nor counted
// against the breaker.
type Guard struct {
	breaker *Breaker
	policy  RetryPolicy
	now     func() time.Time
}

func NewGuard(breaker *Breaker, policy RetryPolicy, now func() time.Time) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{breaker: breaker, policy: policy, now: now}
}

func (g *Guard) Fetch(ctx context.Context, fetcher Fetcher, source registry.Source) ([]Item, error) {
	if !g.breaker.Allow(g.now()) {
		return nil, ErrCircuitOpen
	}

	var items []Item
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		items, fetchErr = fetcher.Fetch(ctx, source)
		return fetchErr
	})

	switch {
	case err == nil:
		g.breaker.RecordSuccess(g.now())
	case IsRateLimited(err):
		// Throttling says nothing about source health.
	case ctx.Err() != nil:
		// Cycle deadline or abort, not the source's fault.
	default:
		g.breaker.RecordFailure(g.now())
	}

	return items, err
}

// Health exposes the breaker state for the end-of-cycle write-back.
func (g *Guard) Health() BreakerState {
	return g.breaker.Snapshot()
}
