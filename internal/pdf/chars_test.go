package pdf

import (
	"regexp"
	"testing"

	"note-auditor/internal/mupdf"
)

// charsOf lays s out on one line with 5pt wide characters starting at x.
func charsOf(line int, x, y float64, s string) []mupdf.Char {
	var out []mupdf.Char
	for _, r := range s {
		out = append(out, mupdf.Char{Rune: r, Line: line, Box: mupdf.Rect{X0: x, Y0: y, X1: x + 5, Y1: y + 10}})
		x += 5
	}
	return out
}

func TestCharLinesAnchorsMatchesByOffset(t *testing.T) {
	chars := charsOf(0, 50, 100, "CODE 90834")
	chars = append(chars, charsOf(1, 50, 120, "code 90837")...)

	lines := charLines(chars)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].text != "CODE 90834" || lines[1].text != "code 90837" {
		t.Fatalf("Unexpected lines %q, %q", lines[0].text, lines[1].text)
	}

	// A case-sensitive match must come from the second line even though a
	// case-insensitive search also hits the first.
	var hits []Rect
	for _, l := range lines {
		hits = append(hits, l.find(Regexp(regexp.MustCompile(`code \d{5}`)))...)
	}
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(hits))
	}
	want := Rect{X0: 50, Y0: 120, X1: 100, Y1: 130}
	if hits[0] != want {
		t.Errorf("Expected %+v, got %+v", want, hits[0])
	}

	codes := lines[0].find(CPTPattern)
	if len(codes) != 1 || codes[0] != (Rect{X0: 75, Y0: 100, X1: 100, Y1: 110}) {
		t.Errorf("Expected code box sliced from its own characters, got %+v", codes)
	}
}

func TestCharLinesEmpty(t *testing.T) {
	if lines := charLines(nil); len(lines) != 0 {
		t.Errorf("Expected no lines, got %d", len(lines))
	}
}
