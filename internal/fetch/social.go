package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"horse.fit/tgewatch/internal/registry"
)

// SocialOptions controls the timeline client. RatePerSecond paces requests
// across all social sources sharing the client, on top of whatever quota the
// provider enforces.
type SocialOptions struct {
	Timeout       time.Duration
	UserAgent     string
	BearerToken   string
	RatePerSecond float64
	HTTPClient    *http.Client
}

// SocialClient fetches account timelines from a JSON API. Provider quota
// headers are honored: an exhausted window surfaces as RateLimitedError so
// the cycle can skip the remaining social sources instead of burning the
// breaker.
type SocialClient struct {
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
	bearerToken string
}

func NewSocialClient(opts SocialOptions) *SocialClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	return &SocialClient{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		userAgent:   userAgent,
		bearerToken: strings.TrimSpace(opts.BearerToken),
	}
}

type socialPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	URL       string `json:"url"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

type socialTimeline struct {
	Posts []socialPost `json:"posts"`
}

// Fetch retrieves one account timeline.
func (c *SocialClient) Fetch(ctx context.Context, source registry.Source) ([]Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint, err := timelineURL(source)
	if err != nil {
		return nil, &PermanentError{Msg: fmt.Sprintf("source %s: %v", source.Label, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &PermanentError{Msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline %s: %w", source.Label, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultBodyByteLimit))
	if err != nil {
		return nil, fmt.Errorf("read timeline body: %w", err)
	}

	posts, err := decodeTimeline(body)
	if err != nil {
		return nil, &PermanentError{Msg: fmt.Sprintf("decode timeline %s: %v", source.Label, err)}
	}

	items := make([]Item, 0, len(posts))
	for _, post := range posts {
		text := cleanText(post.Text)
		if text == "" {
			continue
		}
		items = append(items, Item{
			SourceLabel: source.Label,
			URL:         postURL(endpoint, post),
			Title:       text,
			Author:      strings.TrimSpace(post.Author),
			PublishedAt: parsePostTime(post.CreatedAt),
		})
	}

	// A successful response can still report an exhausted window. The items
	// are returned alongside the error so nothing already paid for is lost;
	// the cycle skips the remaining social sources until ResetAt.
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return items, &RateLimitedError{ResetAt: rateLimitReset(resp)}
	}
	return items, nil
}

func timelineURL(source registry.Source) (string, error) {
	parsed, err := url.Parse(source.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if source.Account != "" {
		query := parsed.Query()
		query.Set("account", source.Account)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// decodeTimeline accepts both the wrapped {"posts": [...]} shape and a bare
// JSON array.
func decodeTimeline(body []byte) ([]socialPost, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var posts []socialPost
		if err := json.Unmarshal(body, &posts); err != nil {
			return nil, err
		}
		return posts, nil
	}

	var timeline socialTimeline
	if err := json.Unmarshal(body, &timeline); err != nil {
		return nil, err
	}
	return timeline.Posts, nil
}

func postURL(endpoint string, post socialPost) string {
	if strings.TrimSpace(post.URL) != "" {
		return strings.TrimSpace(post.URL)
	}
	return endpoint + "#" + post.ID
}

func parsePostTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.RFC1123Z} {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
