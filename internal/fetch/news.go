package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/mmcdole/gofeed"

	"horse.fit/tgewatch/internal/registry"
)

const (
	defaultFetchTimeout  = 15 * time.Second
	defaultBodyByteLimit = 2 * 1024 * 1024
	defaultUserAgent     = "tgewatch/1.0 (+https://horse.fit/tgewatch)"

	// Feed entries shorter than this get a full-article extraction pass when
	// article extraction is enabled.
	minInlineBodyChars = 280
)

// NewsOptions controls HTTP behavior for the RSS/Atom client.
type NewsOptions struct {
	Timeout         time.Duration
	UserAgent       string
	BodyByteLimit   int64
	ExtractArticles bool
	HTTPClient      *http.Client
}

// NewsClient fetches RSS/Atom feeds and maps entries to items. It never
// retries or tracks health itself; the retry policy and breaker wrap it.
type NewsClient struct {
	client          *http.Client
	parser          *gofeed.Parser
	userAgent       string
	bodyByteLimit   int64
	extractArticles bool
}

func NewNewsClient(opts NewsOptions) *NewsClient {
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
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyByteLimit
	}

	return &NewsClient{
		client:          client,
		parser:          gofeed.NewParser(),
		userAgent:       userAgent,
		bodyByteLimit:   bodyLimit,
		extractArticles: opts.ExtractArticles,
	}
}

// Fetch retrieves one feed and returns its entries newest-first as the feed
// lists them.
func (c *NewsClient) Fetch(ctx context.Context, source registry.Source) ([]Item, error) {
	body, err := c.get(ctx, source.Endpoint, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, &PermanentError{Msg: fmt.Sprintf("parse feed %s: %v", source.Label, err)}
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		title := cleanText(entry.Title)
		if link == "" || title == "" {
			continue
		}

		item := Item{
			SourceLabel: source.Label,
			URL:         link,
			Title:       title,
			Body:        entryBody(entry),
			PublishedAt: entryPublished(entry),
		}
		if entry.Author != nil {
			item.Author = strings.TrimSpace(entry.Author.Name)
		}

		if c.extractArticles && len(item.Body) < minInlineBodyChars {
			if text, extractErr := c.extractArticle(ctx, link); extractErr == nil && text != "" {
				item.Body = text
			}
		}

		items = append(items, item)
	}
	return items, nil
}

func entryBody(entry *gofeed.Item) string {
	body := strings.TrimSpace(entry.Content)
	if body == "" {
		body = strings.TrimSpace(entry.Description)
	}
	return cleanText(body)
}

func entryPublished(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed
	}
	return entry.UpdatedParsed
}

// extractArticle pulls the readable text of a linked article. Extraction
// failures are soft: the caller keeps the inline entry body.
func (c *NewsClient) extractArticle(ctx context.Context, articleURL string) (string, error) {
	body, err := c.get(ctx, articleURL, "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("parse article url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := cleanText(rendered.String())
	if text == "" {
		text = cleanText(article.Excerpt())
	}
	return text, nil
}

func (c *NewsClient) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &PermanentError{Msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.bodyByteLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// classifyStatus maps HTTP status codes onto the failure taxonomy: 429 is
// throttling, other 4xx are permanent, 5xx are transient.
func classifyStatus(resp *http.Response) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{ResetAt: rateLimitReset(resp)}
	case status >= 400 && status < 500:
		return &PermanentError{Status: status, Msg: resp.Request.URL.String()}
	default:
		return fmt.Errorf("fetch status %d from %s", status, resp.Request.URL)
	}
}

// rateLimitReset derives the throttle expiry from Retry-After (seconds) or
// X-RateLimit-Reset (unix epoch), whichever is present.
func rateLimitReset(resp *http.Response) time.Time {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			return time.Now().UTC().Add(time.Duration(seconds) * time.Second)
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil && epoch > 0 {
			return time.Unix(epoch, 0).UTC()
		}
	}
	return time.Time{}
}
