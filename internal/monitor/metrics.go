package monitor

import "encoding/json"

// SourceError is one failed source in a cycle, kept for the session record.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Metrics is the performance_metrics payload of a session. It is treated as
// an immutable value: every mutation goes through Session.updateMetrics,
// which clones, applies, and swaps, so the full document is re-marshaled on
// every persist and no nested mutation can go missing.
type Metrics struct {
	NewsSources        int              `json:"news_sources"`
	SocialSources      int              `json:"social_sources"`
	NewsItems          int              `json:"news_items"`
	SocialItems        int              `json:"social_items"`
	MatchesFound       int              `json:"matches_found"`
	AlertsEmitted      int              `json:"alerts_emitted"`
	DuplicatesSkipped  int              `json:"duplicates_skipped"`
	SkippedRateLimited int              `json:"skipped_rate_limited"`
	SkippedLanguage    int              `json:"skipped_language"`
	SkippedCircuitOpen int              `json:"skipped_circuit_open"`
	MatcherPanics      int              `json:"matcher_panics"`
	SourcesDeactivated int              `json:"sources_deactivated"`
	SourceErrors       []SourceError    `json:"source_errors"`
	PhaseDurationsMS   map[string]int64 `json:"phase_durations_ms"`
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceErrors:     []SourceError{},
		PhaseDurationsMS: map[string]int64{},
	}
}

// Clone deep-copies the metrics value, including the nested collections.
func (m *Metrics) Clone() *Metrics {
	out := *m
	out.SourceErrors = make([]SourceError, len(m.SourceErrors))
	copy(out.SourceErrors, m.SourceErrors)
	out.PhaseDurationsMS = make(map[string]int64, len(m.PhaseDurationsMS))
	for phase, ms := range m.PhaseDurationsMS {
		out.PhaseDurationsMS[phase] = ms
	}
	return &out
}

// JSON marshals the whole document. Marshaling a flat struct of scalars and
// small collections cannot fail; a zero-value fallback keeps the persistence
// path total.
func (m *Metrics) JSON() json.RawMessage {
	raw, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
