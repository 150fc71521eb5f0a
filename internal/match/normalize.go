package match

import (
	"html"
	"strings"
	"unicode"
)

// Normalize case-folds, strips leftover markup, and collapses whitespace.
// All offset math in the matcher runs over this normalized form.
func Normalize(raw string) string {
	text := stripMarkup(raw)
	text = html.UnescapeString(text)
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}

// stripMarkup removes HTML/XML tags, replacing each with a single space so
// adjacent words do not fuse together.
func stripMarkup(raw string) string {
	if !strings.ContainsRune(raw, '<') {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	inTag := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordBoundary reports whether text[start:end] sits on whole-word
// boundaries.
func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		before, _ := lastRune(text[:start])
		if isWordRune(before) {
			return false
		}
	}
	if end < len(text) {
		after, _ := firstRune(text[end:])
		if isWordRune(after) {
			return false
		}
	}
	return true
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

func lastRune(s string) (rune, bool) {
	var out rune
	found := false
	for _, r := range s {
		out = r
		found = true
	}
	return out, found
}

// findWholeWord returns the byte offsets of every whole-word occurrence of
// needle inside text. Both arguments are expected to be normalized already.
func findWholeWord(text, needle string) []int {
	if needle == "" {
		return nil
	}

	var offsets []int
	from := 0
	for {
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			return offsets
		}
		start := from + idx
		end := start + len(needle)
		if wordBoundary(text, start, end) {
			offsets = append(offsets, start)
		}
		from = start + 1
	}
}

// tokenize splits normalized text into word tokens with their byte offsets.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{text: text[start:i], offset: start})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: text[start:], offset: start})
	}
	return tokens
}

type token struct {
	text   string
	offset int
}
