package compliance

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultTherapyCredentials are the behavioural-health licences recognised
// when no credential list is configured.
var DefaultTherapyCredentials = []string{"LCSW", "LPCC", "LPCA", "LPC", "LCADC", "LCADCA", "LMFT", "LMHC"}

// Credentials is an injected set of licence abbreviations.
type Credentials struct {
	list     []string
	artifact *regexp.Regexp
}

// NewCredentials normalises list (trimmed, upper-cased, de-duplicated) and
// precompiles the artifact matcher.
func NewCredentials(list []string) *Credentials {
	seen := make(map[string]bool)
	var norm []string
	for _, c := range list {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		norm = append(norm, c)
	}

	// longest first so LCADCA wins over LCADC in the alternation
	byLen := append([]string(nil), norm...)
	sort.SliceStable(byLen, func(i, j int) bool { return len(byLen[i]) > len(byLen[j]) })
	quoted := make([]string, len(byLen))
	for i, c := range byLen {
		quoted[i] = regexp.QuoteMeta(c)
	}

	cr := &Credentials{list: norm}
	if len(quoted) > 0 {
		cr.artifact = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)[a-z]`)
	}
	return cr
}

// List returns the normalised credentials.
func (c *Credentials) List() []string {
	return append([]string(nil), c.list...)
}

// Len returns the number of credentials.
func (c *Credentials) Len() int { return len(c.list) }

// FindIn returns the first credential appearing in text as a whole word.
func (c *Credentials) FindIn(text string) (string, bool) {
	for _, cred := range c.list {
		if containsWord(text, cred) {
			return cred, true
		}
	}
	return "", false
}

// Artifacts returns credential strings immediately followed by a stray
// lower-case letter, such as "LCSWa" left behind by an overlapping rewrite.
func (c *Credentials) Artifacts(text string) []string {
	if c.artifact == nil {
		return nil
	}
	return c.artifact.FindAllString(text, -1)
}

func containsWord(text, word string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
