// Package dedupe provides content fingerprinting and the exactly-once
// sighting store that gates alert emission.
package dedupe

import (
	"crypto/sha256"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint derives a stable 32-byte identity for an item: the canonical
// URL when one exists, otherwise the normalized title and body. Two fetches
// of the same story produce the same fingerprint even when tracking params
// or whitespace differ.
func Fingerprint(rawURL, title, body string) []byte {
	basis := CanonicalURL(rawURL)
	if basis == "" {
		basis = normalizeContent(title + " " + body)
	}
	sum := sha256.Sum256([]byte(basis))
	return sum[:]
}

// SocialFingerprint derives identity for a social post from its author and
// normalized text. Post URLs are deliberately left out: the same announcement
// re-posted under a fresh status URL is still one sighting.
func SocialFingerprint(account, text string) []byte {
	basis := "social\x00" + strings.ToLower(strings.TrimSpace(account)) + "\x00" + normalizeContent(text)
	sum := sha256.Sum256([]byte(basis))
	return sum[:]
}

func normalizeContent(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// CanonicalURL normalizes a URL for identity: lowercased scheme and host,
// no fragment, no tracking query params, no trailing slash. Returns "" for
// anything unparseable.
func CanonicalURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}
	parsed.RawQuery = encodeSorted(query)

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	switch lower {
	case "fbclid", "gclid", "ref", "source":
		return true
	}
	return false
}

func encodeSorted(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, value := range query[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}
