package db

import (
	"encoding/json"
	"time"
)

// MonitoringSession maps tge.monitoring_sessions. One row per orchestrator
// cycle; performance_metrics is replaced wholesale on every update so the
// persistence layer always sees the aggregate change.
type MonitoringSession struct {
	SessionID          int64           `gorm:"column:session_id;primaryKey;autoIncrement"`
	SessionUUID        string          `gorm:"column:session_uuid;type:uuid;not null;unique"`
	Status             string          `gorm:"column:status;type:text;not null;default:pending"`
	CurrentPhase       string          `gorm:"column:current_phase;type:text;not null;default:pending"`
	ProgressPercentage int             `gorm:"column:progress_percentage;type:integer;not null;default:0"`
	PerformanceMetrics json.RawMessage `gorm:"column:performance_metrics;type:jsonb;not null"`
	ErrorMessage       *string         `gorm:"column:error_message;type:text"`
	StartedAt          time.Time       `gorm:"column:started_at;type:timestamptz;not null"`
	EndedAt            *time.Time      `gorm:"column:ended_at;type:timestamptz"`
	CreatedAt          time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (MonitoringSession) TableName() string { return "tge.monitoring_sessions" }

// Source maps tge.sources. Sources are never deleted, only deactivated;
// circuit breaker state persists here across cycles.
type Source struct {
	SourceID            int64      `gorm:"column:source_id;primaryKey;autoIncrement"`
	SourceUUID          string     `gorm:"column:source_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Kind                string     `gorm:"column:kind;type:text;not null"`
	Label               string     `gorm:"column:label;type:text;not null;unique"`
	Endpoint            string     `gorm:"column:endpoint;type:text;not null"`
	Account             *string    `gorm:"column:account;type:text"`
	PriorityTier        int16      `gorm:"column:priority_tier;type:smallint;not null;default:3"`
	Active              bool       `gorm:"column:active;type:boolean;not null;default:true"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;type:integer;not null;default:0"`
	CircuitState        string     `gorm:"column:circuit_state;type:text;not null;default:closed"`
	OpenedAt            *time.Time `gorm:"column:opened_at;type:timestamptz"`
	LastSuccessAt       *time.Time `gorm:"column:last_success_at;type:timestamptz"`
	DeactivatedReason   *string    `gorm:"column:deactivated_reason;type:text"`
	CreatedAt           time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "tge.sources" }

// Company maps tge.companies. Aliases and tokens are jsonb string arrays.
type Company struct {
	CompanyID int64           `gorm:"column:company_id;primaryKey;autoIncrement"`
	Name      string          `gorm:"column:name;type:text;not null;unique"`
	Aliases   json.RawMessage `gorm:"column:aliases;type:jsonb;not null;default:'[]'"`
	Tokens    json.RawMessage `gorm:"column:tokens;type:jsonb;not null;default:'[]'"`
	Priority  string          `gorm:"column:priority;type:text;not null;default:medium"`
	Enabled   bool            `gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Company) TableName() string { return "tge.companies" }

// KeywordRule maps tge.keyword_rules. Tier is high, medium, low, or
// exclusion.
type KeywordRule struct {
	RuleID    int64     `gorm:"column:rule_id;primaryKey;autoIncrement"`
	Tier      string    `gorm:"column:tier;type:text;not null"`
	Phrase    string    `gorm:"column:phrase;type:text;not null"`
	Enabled   bool      `gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (KeywordRule) TableName() string { return "tge.keyword_rules" }

// Fingerprint maps tge.fingerprints. Written exactly once per accepted
// match, before the alert sink is notified.
type Fingerprint struct {
	Fingerprint []byte    `gorm:"column:fingerprint;type:bytea;primaryKey"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;type:timestamptz;not null"`
}

func (Fingerprint) TableName() string { return "tge.fingerprints" }

// Alert maps tge.alerts.
type Alert struct {
	AlertID           int64           `gorm:"column:alert_id;primaryKey;autoIncrement"`
	AlertUUID         string          `gorm:"column:alert_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SessionUUID       string          `gorm:"column:session_uuid;type:uuid;not null"`
	SourceID          int64           `gorm:"column:source_id;type:bigint;not null"`
	CompanyName       *string         `gorm:"column:company_name;type:text"`
	Score             float64         `gorm:"column:score;type:double precision;not null"`
	ConfidenceBand    string          `gorm:"column:confidence_band;type:text;not null"`
	MatchedKeywords   json.RawMessage `gorm:"column:matched_keywords;type:jsonb;not null;default:'[]'"`
	MatchedExclusions json.RawMessage `gorm:"column:matched_exclusions;type:jsonb;not null;default:'[]'"`
	URL               *string         `gorm:"column:url;type:text"`
	Title             string          `gorm:"column:title;type:text;not null"`
	PublishedAt       *time.Time      `gorm:"column:published_at;type:timestamptz"`
	Fingerprint       []byte          `gorm:"column:fingerprint;type:bytea;not null;unique"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Alert) TableName() string { return "tge.alerts" }

func autoMigrateModels() []any {
	return []any{
		&MonitoringSession{},
		&Source{},
		&Company{},
		&KeywordRule{},
		&Fingerprint{},
		&Alert{},
	}
}
