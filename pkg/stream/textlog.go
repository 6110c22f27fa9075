package stream

import "strings"

const escapedNewline = `\n`

// UnescapeLog normalizes a service-log chunk whose origin mixes escaped and raw
// newlines: raw double newlines collapse to one escaped marker, the remaining
// raw newlines are dropped, and every marker becomes a real newline.
func UnescapeLog(s string) string {
	s = strings.ReplaceAll(s, "\n\n", escapedNewline)
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, escapedNewline, "\n")
}

// SplitLogLines unescapes a chunk and splits it into non-empty lines.
func SplitLogLines(chunk string) []string {
	parts := strings.Split(UnescapeLog(chunk), "\n")
	lines := parts[:0]
	for _, p := range parts {
		p = strings.TrimRight(p, "\r")
		if p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}
