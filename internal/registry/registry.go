// Package registry holds the monitored-universe configuration: companies,
// keyword tiers, exclusion patterns, and source endpoints. A Snapshot is an
// immutable value taken at cycle start and handed to every worker, so a
// concurrent configuration reload can never race a running cycle.
package registry

import (
	"strings"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ParsePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

type SourceKind string

const (
	KindNews   SourceKind = "news"
	KindSocial SourceKind = "social"
)

type Company struct {
	ID       int64
	Name     string
	Aliases  []string
	Tokens   []string
	Priority Priority
}

// Keywords carries the three confidence tiers plus exclusion patterns.
type Keywords struct {
	High       []string
	Medium     []string
	Low        []string
	Exclusions []string
}

type Source struct {
	ID                  int64
	Kind                SourceKind
	Label               string
	Endpoint            string
	Account             string
	PriorityTier        int
	ConsecutiveFailures int
	CircuitState        string
	OpenedAt            *time.Time
	LastSuccessAt       *time.Time
}

// Snapshot is the per-cycle view of the registry. The prescan automaton is
// compiled once here so the matcher can reject keyword-free text in a single
// pass before doing any offset work.
type Snapshot struct {
	Companies []Company
	Keywords  Keywords
	Sources   []Source
	LoadedAt  time.Time

	prescan *ahocorasick.Matcher
}

func NewSnapshot(companies []Company, keywords Keywords, sources []Source, loadedAt time.Time) *Snapshot {
	snap := &Snapshot{
		Companies: companies,
		Keywords:  keywords,
		Sources:   sources,
		LoadedAt:  loadedAt,
	}

	phrases := make([]string, 0, len(keywords.High)+len(keywords.Medium)+len(keywords.Low))
	for _, tier := range [][]string{keywords.High, keywords.Medium, keywords.Low} {
		for _, phrase := range tier {
			normalized := strings.ToLower(strings.TrimSpace(phrase))
			if normalized == "" {
				continue
			}
			phrases = append(phrases, normalized)
		}
	}
	if len(phrases) > 0 {
		snap.prescan = ahocorasick.NewStringMatcher(phrases)
	}

	return snap
}

// HasKeywordHit reports whether the lowercased text contains any keyword
// from any tier. Exclusion patterns alone never produce a hit.
func (s *Snapshot) HasKeywordHit(normalizedText string) bool {
	if s == nil || s.prescan == nil || normalizedText == "" {
		return false
	}
	return len(s.prescan.Match([]byte(normalizedText))) > 0
}

func (s *Snapshot) SourcesOfKind(kind SourceKind) []Source {
	if s == nil {
		return nil
	}
	matched := make([]Source, 0, len(s.Sources))
	for _, src := range s.Sources {
		if src.Kind == kind {
			matched = append(matched, src)
		}
	}
	return matched
}
