package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"horse.fit/tgewatch/internal/registry"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Wire</title>
    <item>
      <title>Caldera Labs confirms TGE</title>
      <link>https://wire.example/caldera-tge</link>
      <description>The token generation event is live today. Claim now before the window closes, full details inside the announcement post.</description>
      <pubDate>Thu, 20 Aug 2026 09:00:00 +0000</pubDate>
    </item>
    <item>
      <title></title>
      <link>https://wire.example/untitled</link>
    </item>
  </channel>
</rss>`

func newsSource(endpoint string) registry.Source {
	return registry.Source{ID: 1, Kind: registry.KindNews, Label: "feed-a", Endpoint: endpoint, PriorityTier: 1}
}

func TestNewsClient_FetchParsesFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Errorf("expected a User-Agent header")
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	client := NewNewsClient(NewsOptions{HTTPClient: srv.Client()})
	items, err := client.Fetch(context.Background(), newsSource(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the untitled entry to be skipped, got %d items", len(items))
	}

	item := items[0]
	if item.URL != "https://wire.example/caldera-tge" {
		t.Fatalf("unexpected url: %q", item.URL)
	}
	if item.Title != "Caldera Labs confirms TGE" {
		t.Fatalf("unexpected title: %q", item.Title)
	}
	if item.PublishedAt == nil {
		t.Fatalf("expected a parsed publish time")
	}
	if item.SourceLabel != "feed-a" {
		t.Fatalf("unexpected source label: %q", item.SourceLabel)
	}
}

func TestNewsClient_429IsRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewNewsClient(NewsOptions{HTTPClient: srv.Client()})
	_, err := client.Fetch(context.Background(), newsSource(srv.URL))
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.ResetAt.IsZero() {
		t.Fatalf("expected a reset time from Retry-After, got %v", err)
	}
}

func TestNewsClient_404IsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewNewsClient(NewsOptions{HTTPClient: srv.Client()})
	_, err := client.Fetch(context.Background(), newsSource(srv.URL))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestNewsClient_500IsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewNewsClient(NewsOptions{HTTPClient: srv.Client()})
	_, err := client.Fetch(context.Background(), newsSource(srv.URL))
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewsClient_MalformedFeedIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	client := NewNewsClient(NewsOptions{HTTPClient: srv.Client()})
	_, err := client.Fetch(context.Background(), newsSource(srv.URL))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error for unparseable feed, got %v", err)
	}
}
