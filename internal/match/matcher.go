// Package match implements the confidence matcher: a pure scoring function
// that turns normalized text plus a registry snapshot into zero or one scored
// candidate. It performs no I/O and mutates nothing, so cycle workers can run
// it concurrently over a shared snapshot.
package match

import (
	"sort"
	"strings"
	"time"

	"horse.fit/tgewatch/internal/registry"
)

type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

const maxScore = 100

// Config carries every scoring knob. The numbers are deployment defaults;
// nothing in the algorithm depends on these exact values.
type Config struct {
	ProximityWindow       int
	HighWeight            float64
	MediumWeight          float64
	LowWeight             float64
	SourceTierBonuses     []float64
	HighStandaloneFactor  float64
	OtherStandaloneFactor float64
	ExclusionPenalty      float64
	FreshnessWindow       time.Duration
	FreshnessBonus        float64
	TimeSensitiveBonus    float64
	TimeSensitivePhrases  []string
	HighBandCutoff        float64
	MediumBandCutoff      float64
}

func DefaultConfig() Config {
	return Config{
		ProximityWindow:       200,
		HighWeight:            40,
		MediumWeight:          25,
		LowWeight:             10,
		SourceTierBonuses:     []float64{8, 5, 3},
		HighStandaloneFactor:  0.8,
		OtherStandaloneFactor: 0.5,
		ExclusionPenalty:      25,
		FreshnessWindow:       24 * time.Hour,
		FreshnessBonus:        10,
		TimeSensitiveBonus:    5,
		TimeSensitivePhrases:  []string{"today", "live now", "now live", "just went live", "happening now"},
		HighBandCutoff:        70,
		MediumBandCutoff:      40,
	}
}

// tierBonus is the trust bonus per source priority tier (1 is most
// trusted); tiers beyond the configured list score 0.
func (c Config) tierBonus(tier int) float64 {
	if tier < 1 || tier > len(c.SourceTierBonuses) {
		return 0
	}
	return c.SourceTierBonuses[tier-1]
}

// Input is one fetched item as seen by the matcher.
type Input struct {
	Title       string
	Body        string
	PublishedAt *time.Time
	SourceTier  int

	// CompanyHint attributes content from a company-owned account when the
	// text itself never names the company.
	CompanyHint string
}

// Result is a scored candidate. CompanyName is empty when no company could
// be resolved.
type Result struct {
	CompanyName       string
	Score             float64
	Band              Band
	MatchedKeywords   []string
	MatchedExclusions []string
}

type Matcher struct {
	cfg  Config
	snap *registry.Snapshot
}

func New(cfg Config, snap *registry.Snapshot) *Matcher {
	if cfg.ProximityWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Matcher{cfg: cfg, snap: snap}
}

type keywordHit struct {
	phrase string
	weight float64
	isHigh bool
	start  int
	end    int
}

type exclusionHit struct {
	phrase string
	offset int
}

// Score evaluates one item. It returns nil when the text yields no usable
// match: zero keyword hits, all hits suppressed by exclusions, or a
// low-confidence result with no company attribution.
func (m *Matcher) Score(input Input, now time.Time) *Result {
	if m == nil || m.snap == nil {
		return nil
	}

	text := Normalize(input.Title + " " + input.Body)
	if text == "" || !m.snap.HasKeywordHit(text) {
		return nil
	}

	hits := m.collectKeywordHits(text)
	if len(hits) == 0 {
		return nil
	}

	companyName, mentions := m.resolveCompany(text, input.CompanyHint)
	exclusions := m.collectExclusionHits(text)

	score := 0.0
	bestPerPhrase := make(map[string]float64, len(hits))
	triggered := make(map[string]struct{})

	for _, hit := range hits {
		contribution := hit.weight

		if !nearAnyMention(hit.start, mentions, m.cfg.ProximityWindow) {
			if hit.isHigh {
				contribution *= m.cfg.HighStandaloneFactor
			} else {
				contribution *= m.cfg.OtherStandaloneFactor
			}
		}

		for _, excl := range exclusions {
			if abs(excl.offset-hit.start) <= m.cfg.ProximityWindow {
				contribution -= m.cfg.ExclusionPenalty
				triggered[excl.phrase] = struct{}{}
			}
		}

		if contribution <= 0 {
			continue
		}
		if prev, ok := bestPerPhrase[hit.phrase]; !ok || contribution > prev {
			bestPerPhrase[hit.phrase] = contribution
		}
	}

	if len(bestPerPhrase) == 0 {
		return nil
	}

	matchedKeywords := make([]string, 0, len(bestPerPhrase))
	for phrase, contribution := range bestPerPhrase {
		matchedKeywords = append(matchedKeywords, phrase)
		score += contribution
	}
	sort.Strings(matchedKeywords)

	score += m.cfg.tierBonus(input.SourceTier)
	score += m.freshnessBonus(text, input.PublishedAt, now)

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}

	band := m.classify(score)
	if band == BandLow && companyName == "" {
		return nil
	}

	matchedExclusions := make([]string, 0, len(triggered))
	for phrase := range triggered {
		matchedExclusions = append(matchedExclusions, phrase)
	}
	sort.Strings(matchedExclusions)

	return &Result{
		CompanyName:       companyName,
		Score:             score,
		Band:              band,
		MatchedKeywords:   matchedKeywords,
		MatchedExclusions: matchedExclusions,
	}
}

func (m *Matcher) classify(score float64) Band {
	switch {
	case score >= m.cfg.HighBandCutoff:
		return BandHigh
	case score >= m.cfg.MediumBandCutoff:
		return BandMedium
	default:
		return BandLow
	}
}

func (m *Matcher) freshnessBonus(text string, publishedAt *time.Time, now time.Time) float64 {
	bonus := 0.0
	if publishedAt != nil {
		age := now.Sub(*publishedAt)
		if age >= 0 && age <= m.cfg.FreshnessWindow {
			bonus += m.cfg.FreshnessBonus
		}
	}
	for _, phrase := range m.cfg.TimeSensitivePhrases {
		if len(findWholeWord(text, strings.ToLower(phrase))) > 0 {
			bonus += m.cfg.TimeSensitiveBonus
			break
		}
	}
	return bonus
}

// collectKeywordHits finds whole-word keyword occurrences across the three
// tiers. Overlapping phrases count once: the longest phrase wins at a given
// offset.
func (m *Matcher) collectKeywordHits(text string) []keywordHit {
	var candidates []keywordHit

	appendTier := func(phrases []string, weight float64, isHigh bool) {
		for _, phrase := range phrases {
			normalized := strings.ToLower(strings.TrimSpace(phrase))
			if normalized == "" {
				continue
			}
			for _, offset := range findWholeWord(text, normalized) {
				candidates = append(candidates, keywordHit{
					phrase: normalized,
					weight: weight,
					isHigh: isHigh,
					start:  offset,
					end:    offset + len(normalized),
				})
			}
		}
	}

	appendTier(m.snap.Keywords.High, m.cfg.HighWeight, true)
	appendTier(m.snap.Keywords.Medium, m.cfg.MediumWeight, false)
	appendTier(m.snap.Keywords.Low, m.cfg.LowWeight, false)

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		li := candidates[i].end - candidates[i].start
		lj := candidates[j].end - candidates[j].start
		if li != lj {
			return li > lj
		}
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].phrase < candidates[j].phrase
	})

	accepted := make([]keywordHit, 0, len(candidates))
	for _, candidate := range candidates {
		overlaps := false
		for _, kept := range accepted {
			if candidate.start < kept.end && kept.start < candidate.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, candidate)
		}
	}
	return accepted
}

func (m *Matcher) collectExclusionHits(text string) []exclusionHit {
	var hits []exclusionHit
	for _, phrase := range m.snap.Keywords.Exclusions {
		normalized := strings.ToLower(strings.TrimSpace(phrase))
		if normalized == "" {
			continue
		}
		for _, offset := range findWholeWord(text, normalized) {
			hits = append(hits, exclusionHit{phrase: normalized, offset: offset})
		}
	}
	return hits
}

// resolveCompany locates the best company mention: exact name, alias, or
// token occurrences first, then a fuzzy whole-token pass at edit
// distance <= 2.
// When the text names nobody, a matching CompanyHint resolves attribution
// without contributing proximity offsets.
func (m *Matcher) resolveCompany(text, hint string) (string, []int) {
	bestName := ""
	var bestOffsets []int

	for _, company := range m.snap.Companies {
		offsets := exactMentions(text, company)
		if len(offsets) > len(bestOffsets) {
			bestName = company.Name
			bestOffsets = offsets
		}
	}
	if bestName != "" {
		return bestName, bestOffsets
	}

	tokens := tokenize(text)
	bestDistance := 3
	for _, company := range m.snap.Companies {
		for _, name := range companyNames(company) {
			if strings.ContainsRune(name, ' ') {
				continue
			}
			for _, tok := range tokens {
				if !fuzzyTokenMatch(tok.text, name, 2) {
					continue
				}
				distance := editDistance(tok.text, name, 2)
				if distance < bestDistance {
					bestDistance = distance
					bestName = company.Name
					bestOffsets = []int{tok.offset}
				}
			}
		}
	}
	if bestName != "" {
		return bestName, bestOffsets
	}

	if hinted := m.resolveHint(hint); hinted != "" {
		return hinted, nil
	}
	return "", nil
}

func (m *Matcher) resolveHint(hint string) string {
	needle := strings.ToLower(strings.TrimSpace(hint))
	if needle == "" {
		return ""
	}
	for _, company := range m.snap.Companies {
		if strings.ToLower(company.Name) == needle {
			return company.Name
		}
		for _, alias := range company.Aliases {
			if strings.ToLower(strings.TrimSpace(alias)) == needle {
				return company.Name
			}
		}
	}
	return ""
}

// companyNames lists the lowercase searchable names of a company: its
// canonical name plus every alias. Aliases never replace the name.
func companyNames(company registry.Company) []string {
	names := make([]string, 0, len(company.Aliases)+1)
	seen := make(map[string]struct{}, len(company.Aliases)+1)
	for _, raw := range append([]string{company.Name}, company.Aliases...) {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func exactMentions(text string, company registry.Company) []int {
	var offsets []int

	for _, name := range companyNames(company) {
		offsets = append(offsets, findWholeWord(text, name)...)
	}

	for _, symbol := range company.Tokens {
		symbolLower := strings.ToLower(strings.TrimSpace(symbol))
		if symbolLower == "" {
			continue
		}
		// "$cal" always counts; a bare symbol only when long enough to be
		// unambiguous.
		offsets = append(offsets, findWholeWord(text, "$"+symbolLower)...)
		if len(symbolLower) >= minFuzzyTokenLen {
			offsets = append(offsets, findWholeWord(text, symbolLower)...)
		}
	}

	sort.Ints(offsets)
	return offsets
}

func nearAnyMention(offset int, mentions []int, window int) bool {
	for _, mention := range mentions {
		if abs(offset-mention) <= window {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
