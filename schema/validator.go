// Package registryschema validates registry import payloads: the JSON
// documents operators feed into `tgewatch registry import`.
package registryschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed registry_import.schema.json
var registryImportSchemaJSON string

type ImportCompany struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Tokens   []string `json:"tokens,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

type ImportKeyword struct {
	Tier    string `json:"tier"`
	Phrase  string `json:"phrase"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type ImportSource struct {
	Kind         string  `json:"kind"`
	Label        string  `json:"label"`
	Endpoint     string  `json:"endpoint"`
	Account      *string `json:"account,omitempty"`
	PriorityTier *int    `json:"priority_tier,omitempty"`
}

type ImportDocument struct {
	PayloadVersion string          `json:"payload_version"`
	Companies      []ImportCompany `json:"companies,omitempty"`
	Keywords       []ImportKeyword `json:"keywords,omitempty"`
	Sources        []ImportSource  `json:"sources,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateImportPayload validates a registry import document against the v1
// schema and semantic rules, returning the decoded document.
func ValidateImportPayload(payload json.RawMessage) (*ImportDocument, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var doc ImportDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("registry_import.schema.json", strings.NewReader(registryImportSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("registry_import.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(doc *ImportDocument) error {
	if doc == nil {
		return fmt.Errorf("payload is nil")
	}
	if strings.TrimSpace(doc.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if len(doc.Companies) == 0 && len(doc.Keywords) == 0 && len(doc.Sources) == 0 {
		return fmt.Errorf("payload contains nothing to import")
	}

	seenCompanies := make(map[string]struct{}, len(doc.Companies))
	for i, company := range doc.Companies {
		name := strings.ToLower(strings.TrimSpace(company.Name))
		if name == "" {
			return fmt.Errorf("companies[%d].name must not be empty", i)
		}
		if _, dup := seenCompanies[name]; dup {
			return fmt.Errorf("companies[%d] duplicates name %q", i, company.Name)
		}
		seenCompanies[name] = struct{}{}
	}

	for i, keyword := range doc.Keywords {
		if strings.TrimSpace(keyword.Phrase) == "" {
			return fmt.Errorf("keywords[%d].phrase must not be empty", i)
		}
	}

	seenLabels := make(map[string]struct{}, len(doc.Sources))
	for i, source := range doc.Sources {
		label := strings.ToLower(strings.TrimSpace(source.Label))
		if label == "" {
			return fmt.Errorf("sources[%d].label must not be empty", i)
		}
		if _, dup := seenLabels[label]; dup {
			return fmt.Errorf("sources[%d] duplicates label %q", i, source.Label)
		}
		seenLabels[label] = struct{}{}

		if err := validateURI(fmt.Sprintf("sources[%d].endpoint", i), source.Endpoint); err != nil {
			return err
		}
		if source.Kind == "social" && (source.Account == nil || strings.TrimSpace(*source.Account) == "") {
			return fmt.Errorf("sources[%d] is social and must name an account", i)
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
