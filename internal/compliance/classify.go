package compliance

import (
	"strings"
)

// therapyIndicators are phrases that only appear in psychotherapy templates.
var therapyIndicators = []string{
	"therapy type:",
	"tx modality:",
	"goal #",
	"psychotherapy",
	"mental status exam",
	"treatment goals",
}

// MinIndicators is how many indicator phrases mark a note as therapy when
// the signature block gives no answer.
const MinIndicators = 3

// Classification is the classifier's verdict and the evidence behind it.
type Classification struct {
	Type       NoteType `json:"type"`
	Credential string   `json:"credential,omitempty"`
	Indicators int      `json:"indicators"`
}

// Classifier separates therapy notes from medical notes.
type Classifier struct {
	creds *Credentials
	codes []string
}

// NewClassifier builds a classifier for the given credentials and CPT codes.
// A nil code list means TherapyCPTCodes.
func NewClassifier(creds *Credentials, codes []string) *Classifier {
	if codes == nil {
		codes = TherapyCPTCodes
	}
	return &Classifier{creds: creds, codes: codes}
}

// Classify inspects the text of a note's leading pages. A signature block
// with a therapy credential plus either a therapy CPT code or start and end
// times is decisive. Otherwise enough template indicators mark the note as
// therapy. Empty text is unknown.
func (c *Classifier) Classify(text string) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{Type: NoteUnknown}
	}

	if cred, ok := c.signerCredential(text); ok && c.hasSessionEvidence(text) {
		return Classification{Type: NoteTherapy, Credential: cred}
	}

	lower := strings.ToLower(text)
	n := 0
	for _, ind := range therapyIndicators {
		if strings.Contains(lower, ind) {
			n++
		}
	}
	if n >= MinIndicators {
		cred, ok := c.creds.FindIn(text)
		if !ok {
			cred = "Unknown"
		}
		return Classification{Type: NoteTherapy, Credential: cred, Indicators: n}
	}
	return Classification{Type: NoteMedical, Indicators: n}
}

// signerCredential looks for a credential on a "signed by" line or the two
// lines after it.
func (c *Classifier) signerCredential(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), "signed by") {
			continue
		}
		end := i + 3
		if end > len(lines) {
			end = len(lines)
		}
		if cred, ok := c.creds.FindIn(strings.Join(lines[i:end], " ")); ok {
			return cred, true
		}
	}
	return "", false
}

func (c *Classifier) hasSessionEvidence(text string) bool {
	for _, code := range c.codes {
		if containsWord(text, code) {
			return true
		}
	}
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "START TIME:") && strings.Contains(upper, "END TIME:")
}
