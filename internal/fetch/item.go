package fetch

import (
	"strings"
	"time"
)

// Item is one fetched unit of content, either a news entry or a social post,
// in the shape the matcher and dedup store consume.
type Item struct {
	SourceLabel string
	URL         string
	Title       string
	Body        string
	Author      string
	PublishedAt *time.Time
}

// cleanText normalizes line endings and collapses in-line whitespace while
// preserving paragraph breaks.
func cleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
