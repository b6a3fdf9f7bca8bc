package pdf

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Pattern is what the locator searches for: a literal string or a regular
// expression. Both are matched against NFKC-normalised page text.
type Pattern struct {
	literal string
	re      *regexp.Regexp
}

// Literal matches s exactly, after normalisation.
func Literal(s string) Pattern {
	return Pattern{literal: Normalize(s)}
}

// Regexp matches re.
func Regexp(re *regexp.Regexp) Pattern {
	return Pattern{re: re}
}

var (
	// DatePattern matches a timestamp such as "03/14/2024 2:05 pm".
	DatePattern = Regexp(regexp.MustCompile(`(?i)\d{2}/\d{2}/\d{4}\s+\d{1,2}:\d{2}\s+[ap]m`))
	// CPTPattern matches a bare five-digit code.
	CPTPattern = Regexp(regexp.MustCompile(`\b\d{5}\b`))
)

// IsLiteral reports whether the pattern is a literal string.
func (p Pattern) IsLiteral() bool { return p.re == nil }

// String returns the literal or the expression source.
func (p Pattern) String() string {
	if p.re != nil {
		return p.re.String()
	}
	return p.literal
}

// FindAll returns the byte ranges of every non-overlapping match in text,
// left to right. text must already be normalised.
func (p Pattern) FindAll(text string) [][2]int {
	var out [][2]int
	if p.re != nil {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			out = append(out, [2]int{m[0], m[1]})
		}
		return out
	}
	if p.literal == "" {
		return nil
	}
	for i := 0; ; {
		j := strings.Index(text[i:], p.literal)
		if j < 0 {
			return out
		}
		start := i + j
		out = append(out, [2]int{start, start + len(p.literal)})
		i = start + len(p.literal)
	}
}

// Normalize applies NFKC so ligatures and compatibility forms compare equal
// to their plain spellings.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}
