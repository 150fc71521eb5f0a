package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"horse.fit/tgewatch/internal/registry"
)

const sampleTimeline = `{"posts":[
  {"id":"101","text":"$CAL TGE is live now, claim now","author":"caldera","created_at":"2026-08-20T09:00:00Z"},
  {"id":"102","text":"  ","author":"caldera"},
  {"id":"103","text":"airdrop details tomorrow","url":"https://social.example/p/103","author":"caldera","created_at":"2026-08-20T08:00:00Z"}
]}`

func socialSource(endpoint string) registry.Source {
	return registry.Source{ID: 2, Kind: registry.KindSocial, Label: "acct-b", Endpoint: endpoint, Account: "caldera", PriorityTier: 2}
}

func TestSocialClient_FetchParsesTimeline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("account"); got != "caldera" {
			t.Errorf("expected account query param, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Remaining", "40")
		_, _ = w.Write([]byte(sampleTimeline))
	}))
	defer srv.Close()

	client := NewSocialClient(SocialOptions{HTTPClient: srv.Client(), BearerToken: "sekrit", RatePerSecond: 100})
	items, err := client.Fetch(context.Background(), socialSource(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected the blank post to be skipped, got %d items", len(items))
	}
	if items[0].Title != "$CAL TGE is live now, claim now" {
		t.Fatalf("unexpected text: %q", items[0].Title)
	}
	if items[0].PublishedAt == nil {
		t.Fatalf("expected parsed created_at")
	}
	if items[1].URL != "https://social.example/p/103" {
		t.Fatalf("expected explicit post url, got %q", items[1].URL)
	}
}

func TestSocialClient_ExhaustedQuotaReturnsItemsAndRateLimit(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		_, _ = w.Write([]byte(sampleTimeline))
	}))
	defer srv.Close()

	client := NewSocialClient(SocialOptions{HTTPClient: srv.Client(), RatePerSecond: 100})
	items, err := client.Fetch(context.Background(), socialSource(srv.URL))
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected items delivered alongside the rate limit, got %d", len(items))
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.ResetAt.Unix() != reset {
		t.Fatalf("expected reset time %d, got %v", reset, err)
	}
}

func TestSocialClient_BareArrayTimeline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","text":"token launch confirmed"}]`))
	}))
	defer srv.Close()

	client := NewSocialClient(SocialOptions{HTTPClient: srv.Client(), RatePerSecond: 100})
	items, err := client.Fetch(context.Background(), socialSource(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "token launch confirmed" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestSocialClient_MalformedJSONIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"posts": "nope"`))
	}))
	defer srv.Close()

	client := NewSocialClient(SocialOptions{HTTPClient: srv.Client(), RatePerSecond: 100})
	_, err := client.Fetch(context.Background(), socialSource(srv.URL))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
