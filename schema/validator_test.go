package registryschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateImportPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"companies":[
			{"name":"Caldera","aliases":["Caldera Labs"],"tokens":["CAL"],"priority":"high"}
		],
		"keywords":[
			{"tier":"high","phrase":"token generation event"},
			{"tier":"exclusion","phrase":"rumor"}
		],
		"sources":[
			{"kind":"news","label":"feed-a","endpoint":"https://a.example/feed.xml","priority_tier":1},
			{"kind":"social","label":"acct-b","endpoint":"https://social.example/api","account":"caldera","priority_tier":2}
		]
	}`)

	doc, err := ValidateImportPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if len(doc.Companies) != 1 || doc.Companies[0].Name != "Caldera" {
		t.Fatalf("unexpected companies: %+v", doc.Companies)
	}
	if len(doc.Keywords) != 2 || doc.Keywords[1].Tier != "exclusion" {
		t.Fatalf("unexpected keywords: %+v", doc.Keywords)
	}
	if len(doc.Sources) != 2 {
		t.Fatalf("unexpected sources: %+v", doc.Sources)
	}
}

func TestValidateImportPayload_WrongVersion(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v2","keywords":[{"tier":"high","phrase":"TGE"}]}`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown payload version")
	}
}

func TestValidateImportPayload_UnknownTier(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","keywords":[{"tier":"critical","phrase":"TGE"}]}`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown keyword tier")
	}
}

func TestValidateImportPayload_SocialSourceNeedsAccount(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"sources":[{"kind":"social","label":"acct-b","endpoint":"https://social.example/api"}]
	}`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for social source without account")
	}
	if !strings.Contains(err.Error(), "must name an account") {
		t.Fatalf("expected account semantic error, got: %v", err)
	}
}

func TestValidateImportPayload_DuplicateLabels(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"sources":[
			{"kind":"news","label":"feed-a","endpoint":"https://a.example/feed.xml"},
			{"kind":"news","label":"Feed-A","endpoint":"https://b.example/feed.xml"}
		]
	}`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for duplicate labels")
	}
}

func TestValidateImportPayload_EmptyDocument(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1"}`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for an empty import")
	}
}

func TestValidateImportPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","keywords":[{"tier":"high","phrase":"TGE"}]} extra`)

	_, err := ValidateImportPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
}
