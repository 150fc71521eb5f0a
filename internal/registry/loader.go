package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/globaltime"
)

// Load reads the registry tables and returns an immutable snapshot.
func Load(ctx context.Context, pool *db.Pool) (*Snapshot, error) {
	dbCompanies, err := pool.ListEnabledCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	companies := make([]Company, 0, len(dbCompanies))
	for _, row := range dbCompanies {
		company, err := companyFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("company %q: %w", row.Name, err)
		}
		companies = append(companies, company)
	}

	rules, err := pool.ListEnabledKeywordRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keyword rules: %w", err)
	}

	var keywords Keywords
	for _, rule := range rules {
		phrase := strings.TrimSpace(rule.Phrase)
		if phrase == "" {
			continue
		}
		switch strings.ToLower(rule.Tier) {
		case "high":
			keywords.High = append(keywords.High, phrase)
		case "medium":
			keywords.Medium = append(keywords.Medium, phrase)
		case "low":
			keywords.Low = append(keywords.Low, phrase)
		case "exclusion":
			keywords.Exclusions = append(keywords.Exclusions, phrase)
		default:
			return nil, fmt.Errorf("keyword rule %d has unknown tier %q", rule.RuleID, rule.Tier)
		}
	}

	dbSources, err := pool.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sources := make([]Source, 0, len(dbSources))
	for _, row := range dbSources {
		source, err := sourceFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", row.Label, err)
		}
		sources = append(sources, source)
	}

	return NewSnapshot(companies, keywords, sources, globaltime.UTC()), nil
}

func companyFromRow(row db.Company) (Company, error) {
	aliases, err := decodeStringList(row.Aliases)
	if err != nil {
		return Company{}, fmt.Errorf("decode aliases: %w", err)
	}
	tokens, err := decodeStringList(row.Tokens)
	if err != nil {
		return Company{}, fmt.Errorf("decode tokens: %w", err)
	}

	return Company{
		ID:       row.CompanyID,
		Name:     strings.TrimSpace(row.Name),
		Aliases:  aliases,
		Tokens:   tokens,
		Priority: ParsePriority(row.Priority),
	}, nil
}

func sourceFromRow(row db.Source) (Source, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(row.Kind)))
	switch kind {
	case KindNews, KindSocial:
	default:
		return Source{}, fmt.Errorf("unknown source kind %q", row.Kind)
	}

	account := ""
	if row.Account != nil {
		account = strings.TrimSpace(*row.Account)
	}

	return Source{
		ID:                  row.SourceID,
		Kind:                kind,
		Label:               row.Label,
		Endpoint:            row.Endpoint,
		Account:             account,
		PriorityTier:        int(row.PriorityTier),
		ConsecutiveFailures: row.ConsecutiveFailures,
		CircuitState:        row.CircuitState,
		OpenedAt:            row.OpenedAt,
		LastSuccessAt:       row.LastSuccessAt,
	}, nil
}

func decodeStringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned, nil
}
