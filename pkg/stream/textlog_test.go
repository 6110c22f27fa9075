package stream

import (
	"reflect"
	"testing"
)

func TestUnescapeLog(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\nb`, "a\nb"},
		{`a\n\nb`, "a\n\nb"},
		{"a\nb", "ab"},
		{"a\n\nb", "a\nb"},
		{"line one\n\nline two", "line one\nline two"},
		{"a\n\n\nb", "a\nb"},
		{"a\n\\nb\n", "a\nb"},
		{`plain`, "plain"},
		{``, ""},
	}
	for _, tt := range tests {
		if got := UnescapeLog(tt.in); got != tt.want {
			t.Errorf("UnescapeLog(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitLogLines(t *testing.T) {
	got := SplitLogLines("first\\n\\nsecond\r\\nthird\\n")
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLogLines = %q; want %q", got, want)
	}
}

func TestHighlighter(t *testing.T) {
	h := NewHighlighter([]string{"Error", " panic ", ""})
	if !h.Contains("FATAL ERROR in tick") {
		t.Errorf("Contains(error line) = false; want true")
	}
	if h.Contains("all good") {
		t.Errorf("Contains(clean line) = true; want false")
	}
	got := h.Match("panic: error")
	if len(got) != 2 {
		t.Errorf("Match = %v; want 2 keywords", got)
	}

	var none *Highlighter = NewHighlighter(nil)
	if none != nil || none.Contains("error") || none.Match("error") != nil {
		t.Errorf("empty highlighter should match nothing")
	}
}
