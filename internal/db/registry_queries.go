package db

import (
	"context"
	"encoding/json"
	"time"
)

func (p *Pool) ListEnabledCompanies(ctx context.Context) ([]Company, error) {
	const q = `
SELECT company_id, name, aliases, tokens, priority, enabled, created_at, updated_at
FROM tge.companies
WHERE enabled
ORDER BY name ASC
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]Company, 0, 32)
	for rows.Next() {
		var c Company
		var aliases, tokens []byte
		if err := rows.Scan(&c.CompanyID, &c.Name, &aliases, &tokens, &c.Priority, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Aliases = json.RawMessage(aliases)
		c.Tokens = json.RawMessage(tokens)
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func (p *Pool) UpsertCompany(ctx context.Context, name string, aliases, tokens json.RawMessage, priority string, now time.Time) error {
	const q = `
INSERT INTO tge.companies (name, aliases, tokens, priority, enabled, created_at, updated_at)
VALUES ($1, $2::jsonb, $3::jsonb, $4, true, $5, $5)
ON CONFLICT (name) DO UPDATE
SET aliases = EXCLUDED.aliases,
	tokens = EXCLUDED.tokens,
	priority = EXCLUDED.priority,
	enabled = true,
	updated_at = EXCLUDED.updated_at
`
	_, err := p.Exec(ctx, q, name, string(aliases), string(tokens), priority, now)
	return err
}

func (p *Pool) ListEnabledKeywordRules(ctx context.Context) ([]KeywordRule, error) {
	const q = `
SELECT rule_id, tier, phrase, enabled, created_at
FROM tge.keyword_rules
WHERE enabled
ORDER BY tier ASC, phrase ASC
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]KeywordRule, 0, 64)
	for rows.Next() {
		var r KeywordRule
		if err := rows.Scan(&r.RuleID, &r.Tier, &r.Phrase, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (p *Pool) UpsertKeywordRule(ctx context.Context, tier, phrase string, now time.Time) error {
	const q = `
INSERT INTO tge.keyword_rules (tier, phrase, enabled, created_at)
VALUES ($1, $2, true, $3)
ON CONFLICT (tier, phrase) DO UPDATE
SET enabled = true
`
	_, err := p.Exec(ctx, q, tier, phrase, now)
	return err
}
