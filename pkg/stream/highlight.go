package stream

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Highlighter finds configured keywords in log lines, case-insensitively.
type Highlighter struct {
	words   []string
	matcher *ahocorasick.Matcher
}

// NewHighlighter returns nil when there are no keywords; a nil Highlighter
// matches nothing.
func NewHighlighter(words []string) *Highlighter {
	var clean []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			clean = append(clean, w)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return &Highlighter{words: clean, matcher: ahocorasick.NewStringMatcher(clean)}
}

// Match returns the keywords present in line.
func (h *Highlighter) Match(line string) []string {
	if h == nil {
		return nil
	}
	hits := h.matcher.Match([]byte(strings.ToLower(line)))
	out := make([]string, 0, len(hits))
	for _, i := range hits {
		out = append(out, h.words[i])
	}
	return out
}

func (h *Highlighter) Contains(line string) bool {
	if h == nil {
		return false
	}
	return h.matcher.Contains([]byte(strings.ToLower(line)))
}
