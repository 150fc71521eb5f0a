package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"horse.fit/tgewatch/internal/registry"
)

type scriptedFetcher struct {
	calls   int
	results []error
	items   []Item
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ registry.Source) ([]Item, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	if err := f.results[idx]; err != nil {
		return nil, err
	}
	return f.items, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestGuard_OpenCircuitMakesNoCalls(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	opened := now.Add(-time.Minute)
	breaker := Restore(3, 15*time.Minute, BreakerState{State: StateOpen, OpenedAt: &opened})

	fetcher := &scriptedFetcher{results: []error{nil}}
	guard := NewGuard(breaker, testPolicy(), fixedClock(now))

	_, err := guard.Fetch(context.Background(), fetcher, registry.Source{Label: "feed-a"})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("open circuit must not touch the network, saw %d calls", fetcher.calls)
	}
}

func TestGuard_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{
		results: []error{errors.New("connection reset"), nil},
		items:   []Item{{Title: "tge live"}},
	}
	guard := NewGuard(NewBreaker(3, time.Minute), testPolicy(), fixedClock(now))

	items, err := guard.Fetch(context.Background(), fetcher, registry.Source{Label: "feed-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected one retry, saw %d calls", fetcher.calls)
	}
	if len(items) != 1 {
		t.Fatalf("expected items from the successful attempt, got %v", items)
	}
	if got := guard.Health().State; got != StateClosed {
		t.Fatalf("success must leave the breaker closed, got %q", got)
	}
}

func TestGuard_PermanentErrorFailsFastAndCounts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{results: []error{&PermanentError{Status: 404, Msg: "gone"}}}
	guard := NewGuard(NewBreaker(3, time.Minute), testPolicy(), fixedClock(now))

	_, err := guard.Fetch(context.Background(), fetcher, registry.Source{Label: "feed-a"})
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("permanent errors must not be retried, saw %d calls", fetcher.calls)
	}
	if got := guard.Health().ConsecutiveFailures; got != 1 {
		t.Fatalf("expected one recorded failure, got %d", got)
	}
}

func TestGuard_RateLimitDoesNotCountAgainstBreaker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{results: []error{&RateLimitedError{ResetAt: now.Add(time.Hour)}}}
	guard := NewGuard(NewBreaker(1, time.Minute), testPolicy(), fixedClock(now))

	_, err := guard.Fetch(context.Background(), fetcher, registry.Source{Label: "acct-b"})
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("rate limiting must not be retried, saw %d calls", fetcher.calls)
	}
	health := guard.Health()
	if health.State != StateClosed || health.ConsecutiveFailures != 0 {
		t.Fatalf("rate limiting must not affect breaker health: %+v", health)
	}
}

func TestGuard_ThresholdFailuresOpenBreaker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	guard := NewGuard(NewBreaker(3, time.Minute), RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}, fixedClock(now))
	source := registry.Source{Label: "feed-a"}

	for i := 0; i < 3; i++ {
		fetcher := &scriptedFetcher{results: []error{errors.New("boom")}}
		if _, err := guard.Fetch(context.Background(), fetcher, source); err == nil {
			t.Fatalf("expected failure on call %d", i)
		}
	}

	if got := guard.Health().State; got != StateOpen {
		t.Fatalf("expected open breaker after threshold failures, got %q", got)
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}
