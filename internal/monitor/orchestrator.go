package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/tgewatch/internal/alert"
	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/dedupe"
	"horse.fit/tgewatch/internal/fetch"
	"horse.fit/tgewatch/internal/match"
	"horse.fit/tgewatch/internal/registry"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running. Cycles never overlap.
var ErrCycleInProgress = errors.New("a monitoring cycle is already in progress")

// HealthStore persists per-source circuit breaker state between cycles and
// retires sources whose failures retrying cannot fix.
type HealthStore interface {
	UpdateSourceHealth(ctx context.Context, health db.SourceHealth, now time.Time) error
	DeactivateSource(ctx context.Context, sourceID int64, reason string, now time.Time) error
}

// RegistryLoader produces the immutable registry snapshot a cycle works
// from. Registry edits during a cycle affect the next cycle only.
type RegistryLoader func(ctx context.Context) (*registry.Snapshot, error)

// LanguageDetector reports the ISO 639-1 code of a text when confident.
type LanguageDetector func(text string) (string, bool)

// Options are the cycle tuning knobs.
type Options struct {
	NewsConcurrency   int
	SocialConcurrency int
	ProcessingLimit   int
	ScrapeDeadline    time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	Retry             fetch.RetryPolicy
	Languages         []string
}

func DefaultOptions() Options {
	return Options{
		NewsConcurrency:   10,
		SocialConcurrency: 4,
		ProcessingLimit:   8,
		ScrapeDeadline:    4 * time.Minute,
		BreakerThreshold:  3,
		BreakerCooldown:   15 * time.Minute,
		Retry:             fetch.DefaultRetryPolicy(),
		Languages:         []string{"en"},
	}
}

// Deps wires the orchestrator to its collaborators. Everything is an
// interface or function so cycle behavior is testable without a database or
// network.
type Deps struct {
	Sessions       SessionStore
	Health         HealthStore
	LoadRegistry   RegistryLoader
	News           fetch.Fetcher
	Social         fetch.Fetcher
	Dedup          dedupe.Store
	Sink           alert.Sink
	MatcherConfig  match.Config
	DetectLanguage LanguageDetector
	Log            zerolog.Logger
	Now            func() time.Time
}

type Orchestrator struct {
	deps Deps
	opts Options

	running atomic.Bool

	mu          sync.Mutex
	currentUUID string
	cancel      context.CancelFunc
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewsConcurrency <= 0 {
		opts.NewsConcurrency = 10
	}
	if opts.SocialConcurrency <= 0 {
		opts.SocialConcurrency = 4
	}
	if opts.ProcessingLimit <= 0 {
		opts.ProcessingLimit = 8
	}
	if opts.ScrapeDeadline <= 0 {
		opts.ScrapeDeadline = 4 * time.Minute
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// Running reports whether a cycle is currently executing.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Abort cancels the running cycle if its session UUID matches. The cycle
// lands in the failed state with a cancellation message.
func (o *Orchestrator) Abort(sessionUUID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil || o.currentUUID != sessionUUID {
		return false
	}
	o.cancel()
	return true
}

// RunCycle executes one full detection cycle and returns its session UUID.
// The UUID is returned even on failure so callers can inspect the session
// record.
func (o *Orchestrator) RunCycle(ctx context.Context) (string, error) {
	sessionUUID, done, err := o.start(ctx)
	if err != nil {
		return sessionUUID, err
	}
	return sessionUUID, <-done
}

// StartCycle launches a cycle and returns its session UUID as soon as the
// session row exists. Callers poll the session record for progress.
func (o *Orchestrator) StartCycle(ctx context.Context) (string, error) {
	sessionUUID, _, err := o.start(ctx)
	return sessionUUID, err
}

// start claims the single-cycle slot and persists the pending session
// synchronously, then executes the cycle in the background. The returned
// channel delivers the cycle's final error exactly once.
func (o *Orchestrator) start(ctx context.Context) (string, <-chan error, error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", nil, ErrCycleInProgress
	}

	cycleCtx, cancel := context.WithCancel(ctx)

	sessionUUID := uuid.NewString()
	o.mu.Lock()
	o.currentUUID = sessionUUID
	o.cancel = cancel
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		o.currentUUID = ""
		o.cancel = nil
		o.mu.Unlock()
		cancel()
		o.running.Store(false)
	}

	sess, err := newSession(cycleCtx, sessionUUID, o.deps.Sessions, o.deps.Log, o.deps.Now)
	if err != nil {
		release()
		return "", nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer release()
		if err := o.run(cycleCtx, sess); err != nil {
			sess.fail(err)
			done <- err
			return
		}
		done <- sess.complete(cycleCtx)
	}()
	return sessionUUID, done, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session) error {
	if err := sess.advance(ctx, PhaseInitializing); err != nil {
		return err
	}
	snap, err := o.deps.LoadRegistry(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	newsSources := snap.SourcesOfKind(registry.KindNews)
	socialSources := snap.SourcesOfKind(registry.KindSocial)
	sess.updateMetrics(func(m *Metrics) {
		m.NewsSources = len(newsSources)
		m.SocialSources = len(socialSources)
	})

	guards := make(map[int64]*fetch.Guard, len(snap.Sources))
	sourcesByLabel := make(map[string]registry.Source, len(snap.Sources))
	for _, src := range snap.Sources {
		breaker := fetch.Restore(o.opts.BreakerThreshold, o.opts.BreakerCooldown, fetch.BreakerState{
			State:               src.CircuitState,
			ConsecutiveFailures: src.ConsecutiveFailures,
			OpenedAt:            src.OpenedAt,
			LastSuccessAt:       src.LastSuccessAt,
		})
		guards[src.ID] = fetch.NewGuard(breaker, o.opts.Retry, o.deps.Now)
		sourcesByLabel[src.Label] = src
	}

	matcher := match.New(o.deps.MatcherConfig, snap)
	perm := &permanentFailures{}
	var pending []alert.Alert

	if err := sess.advance(ctx, PhaseScrapingNews); err != nil {
		return err
	}
	newsItems := o.scrape(ctx, sess, newsSources, o.deps.News, guards, perm, o.opts.NewsConcurrency, false)
	sess.updateMetrics(func(m *Metrics) { m.NewsItems = len(newsItems) })

	if err := sess.advance(ctx, PhaseProcessingNews); err != nil {
		return err
	}
	accepted, err := o.process(ctx, sess, matcher, newsItems, sourcesByLabel)
	if err != nil {
		return err
	}
	pending = append(pending, accepted...)

	if err := sess.advance(ctx, PhaseScrapingSocial); err != nil {
		return err
	}
	socialItems := o.scrape(ctx, sess, socialSources, o.deps.Social, guards, perm, o.opts.SocialConcurrency, true)
	sess.updateMetrics(func(m *Metrics) { m.SocialItems = len(socialItems) })

	if err := sess.advance(ctx, PhaseProcessingSocial); err != nil {
		return err
	}
	accepted, err = o.process(ctx, sess, matcher, socialItems, sourcesByLabel)
	if err != nil {
		return err
	}
	pending = append(pending, accepted...)

	if err := sess.advance(ctx, PhaseUpdatingSourceHealth); err != nil {
		return err
	}
	for _, src := range snap.Sources {
		health := guards[src.ID].Health()
		err := o.deps.Health.UpdateSourceHealth(ctx, db.SourceHealth{
			SourceID:            src.ID,
			ConsecutiveFailures: health.ConsecutiveFailures,
			CircuitState:        health.State,
			OpenedAt:            health.OpenedAt,
			LastSuccessAt:       health.LastSuccessAt,
		}, o.deps.Now())
		if err != nil {
			return fmt.Errorf("update health for source %s: %w", src.Label, err)
		}

		if reason, permanent := perm.get(src.ID); permanent {
			if err := o.deps.Health.DeactivateSource(ctx, src.ID, reason, o.deps.Now()); err != nil {
				return fmt.Errorf("deactivate source %s: %w", src.Label, err)
			}
			sess.updateMetrics(func(m *Metrics) { m.SourcesDeactivated++ })
			o.deps.Log.Warn().
				Str("source", src.Label).
				Str("reason", reason).
				Msg("source deactivated pending manual reconfiguration")
		}
	}

	if err := sess.advance(ctx, PhasePersistingAlerts); err != nil {
		return err
	}
	for i := range pending {
		pending[i].SessionUUID = sess.uuid
		if err := o.deps.Sink.Emit(ctx, pending[i]); err != nil {
			return fmt.Errorf("emit alert for %s: %w", pending[i].URL, err)
		}
		sess.updateMetrics(func(m *Metrics) { m.AlertsEmitted++ })
	}

	return ctx.Err()
}

// scrape fans out over one source kind with a bounded worker pool. Failures
// never abort the cycle: they are recorded per source and the breaker
// bookkeeping decides what happens next cycle. Permanent failures are also
// collected so the source is deactivated during the health write-back. On
// social sources, provider quota exhaustion flips a flag that skips the
// sources not yet dispatched.
func (o *Orchestrator) scrape(ctx context.Context, sess *session, sources []registry.Source, client fetch.Fetcher, guards map[int64]*fetch.Guard, perm *permanentFailures, limit int, quotaAware bool) []fetch.Item {
	scrapeCtx, cancel := context.WithTimeout(ctx, o.opts.ScrapeDeadline)
	defer cancel()

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var items []fetch.Item
	var quotaExhausted atomic.Bool

	for _, src := range sources {
		if quotaAware && quotaExhausted.Load() {
			sess.updateMetrics(func(m *Metrics) { m.SkippedRateLimited++ })
			continue
		}
		if scrapeCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(src registry.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			fetched, err := guards[src.ID].Fetch(scrapeCtx, client, src)
			mu.Lock()
			items = append(items, fetched...)
			mu.Unlock()

			switch {
			case err == nil:
			case fetch.IsRateLimited(err):
				if quotaAware {
					quotaExhausted.Store(true)
				}
				sess.updateMetrics(func(m *Metrics) { m.SkippedRateLimited++ })
				o.deps.Log.Warn().Str("source", src.Label).Msg("source rate limited")
			case errors.Is(err, fetch.ErrCircuitOpen):
				sess.updateMetrics(func(m *Metrics) { m.SkippedCircuitOpen++ })
				o.deps.Log.Debug().Str("source", src.Label).Msg("circuit open, source skipped")
			default:
				if fetch.IsPermanent(err) {
					perm.record(src.ID, err.Error())
				}
				sess.updateMetrics(func(m *Metrics) {
					m.SourceErrors = append(m.SourceErrors, SourceError{Source: src.Label, Error: err.Error()})
				})
				o.deps.Log.Warn().Err(err).Str("source", src.Label).Msg("source fetch failed")
			}
		}(src)
	}

	wg.Wait()
	return items
}

// process scores fetched items and records first sightings. Only the
// fingerprint write happens here; delivery is deferred to the alert
// persistence phase, after source health is written back. A dedup store
// failure is fatal: without dedup guarantees the cycle would re-notify.
func (o *Orchestrator) process(ctx context.Context, sess *session, matcher *match.Matcher, items []fetch.Item, sourcesByLabel map[string]registry.Source) ([]alert.Alert, error) {
	var mu sync.Mutex
	var accepted []alert.Alert

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.ProcessingLimit)

	for _, item := range items {
		item := item
		group.Go(func() error {
			a, err := o.processItem(groupCtx, sess, matcher, item, sourcesByLabel[item.SourceLabel])
			if err != nil {
				return err
			}
			if a != nil {
				mu.Lock()
				accepted = append(accepted, *a)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return accepted, nil
}

func (o *Orchestrator) processItem(ctx context.Context, sess *session, matcher *match.Matcher, item fetch.Item, source registry.Source) (*alert.Alert, error) {
	text := strings.TrimSpace(item.Title + " " + item.Body)
	if text == "" {
		return nil, nil
	}

	if o.deps.DetectLanguage != nil && len(o.opts.Languages) > 0 {
		if lang, ok := o.deps.DetectLanguage(text); ok && !o.languageAllowed(lang) {
			sess.updateMetrics(func(m *Metrics) { m.SkippedLanguage++ })
			return nil, nil
		}
	}

	// Social identity is who said it and what was said; a re-post under a
	// fresh status URL is the same sighting. News identity is the canonical
	// URL.
	var fingerprint []byte
	if source.Kind == registry.KindSocial {
		fingerprint = dedupe.SocialFingerprint(source.Account, text)
	} else {
		fingerprint = dedupe.Fingerprint(item.URL, item.Title, item.Body)
	}
	seen, err := o.deps.Dedup.Seen(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if seen {
		sess.updateMetrics(func(m *Metrics) { m.DuplicatesSkipped++ })
		return nil, nil
	}

	result := o.score(sess, matcher, item, source)
	if result == nil {
		return nil, nil
	}
	sess.updateMetrics(func(m *Metrics) { m.MatchesFound++ })

	if !alertWorthy(result) {
		return nil, nil
	}

	inserted, err := o.deps.Dedup.Record(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !inserted {
		sess.updateMetrics(func(m *Metrics) { m.DuplicatesSkipped++ })
		return nil, nil
	}

	return &alert.Alert{
		SourceID:          source.ID,
		SourceLabel:       item.SourceLabel,
		CompanyName:       result.CompanyName,
		Score:             result.Score,
		Band:              string(result.Band),
		MatchedKeywords:   result.MatchedKeywords,
		MatchedExclusions: result.MatchedExclusions,
		URL:               item.URL,
		Title:             item.Title,
		PublishedAt:       item.PublishedAt,
		Fingerprint:       fingerprint,
	}, nil
}

// score isolates matcher panics: one poisoned item must not take down the
// cycle.
func (o *Orchestrator) score(sess *session, matcher *match.Matcher, item fetch.Item, source registry.Source) (result *match.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			sess.updateMetrics(func(m *Metrics) { m.MatcherPanics++ })
			o.deps.Log.Error().Interface("panic", r).Str("url", item.URL).Msg("matcher panic recovered")
		}
	}()

	hint := ""
	if source.Kind == registry.KindSocial {
		hint = source.Account
	}
	return matcher.Score(match.Input{
		Title:       item.Title,
		Body:        item.Body,
		PublishedAt: item.PublishedAt,
		SourceTier:  source.PriorityTier,
		CompanyHint: hint,
	}, o.deps.Now())
}

func (o *Orchestrator) languageAllowed(lang string) bool {
	for _, allowed := range o.opts.Languages {
		if strings.EqualFold(allowed, lang) {
			return true
		}
	}
	return false
}

// alertWorthy applies the emission threshold: medium band or higher with a
// resolved company. A match nobody can be attributed to is not actionable,
// whatever its score.
func alertWorthy(result *match.Result) bool {
	if result.CompanyName == "" {
		return false
	}
	return result.Band == match.BandHigh || result.Band == match.BandMedium
}

// permanentFailures collects sources whose fetch failed in a way retrying
// cannot fix, for deactivation during the health write-back.
type permanentFailures struct {
	mu      sync.Mutex
	reasons map[int64]string
}

func (p *permanentFailures) record(sourceID int64, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reasons == nil {
		p.reasons = make(map[int64]string)
	}
	if _, exists := p.reasons[sourceID]; !exists {
		p.reasons[sourceID] = reason
	}
}

func (p *permanentFailures) get(sourceID int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reason, ok := p.reasons[sourceID]
	return reason, ok
}
