package compliance

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateTimeExpr matches a note timestamp such as "03/14/2024 2:05 pm".
const DateTimeExpr = `\d{2}/\d{2}/\d{4}\s+\d{1,2}:\d{2}\s+[ap]m`

var dateTimeRe = regexp.MustCompile(`(?i)` + DateTimeExpr)

// ExtractDateTime returns the first note timestamp in s.
func ExtractDateTime(s string) (string, bool) {
	m := dateTimeRe.FindString(s)
	return m, m != ""
}

// HasDateTime reports whether s contains a note timestamp.
func HasDateTime(s string) bool {
	return dateTimeRe.MatchString(s)
}

// SigningLayout is how corrected signing timestamps are rendered.
const SigningLayout = "01/02/2006 3:04 pm"

var noteDateLayouts = []string{
	"01/02/2006 3:04 pm",
	"01/02/2006 3:04pm",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

// ParseNoteDate parses a service or signing date as written in the notes
// (month first).
func ParseNoteDate(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for _, layout := range noteDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised note date %q", s)
}

// SigningWindow is the accepted lag, in whole days, between service and signing.
type SigningWindow struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

// DefaultSigningWindow is signing 4 to 6 days after service.
var DefaultSigningWindow = SigningWindow{MinDays: 4, MaxDays: 6}

// Compliant reports whether a lag of days is inside the window.
func (w SigningWindow) Compliant(days int) bool {
	return days >= w.MinDays && days <= w.MaxDays
}

// Validate checks that the window is well formed.
func (w SigningWindow) Validate() error {
	if w.MinDays < 0 || w.MaxDays < w.MinDays {
		return fmt.Errorf("invalid signing window %d-%d days", w.MinDays, w.MaxDays)
	}
	return nil
}

// DaysBetween counts calendar days from service to signing.
func DaysBetween(service, signing time.Time) int {
	s := time.Date(service.Year(), service.Month(), service.Day(), 0, 0, 0, 0, time.UTC)
	g := time.Date(signing.Year(), signing.Month(), signing.Day(), 0, 0, 0, 0, time.UTC)
	return int(g.Sub(s).Hours() / 24)
}

// CorrectSigning moves signing to the nearest day inside the window, keeping
// its clock time. A compliant signing is returned unchanged.
func (w SigningWindow) CorrectSigning(service, signing time.Time) time.Time {
	days := DaysBetween(service, signing)
	switch {
	case days < w.MinDays:
		days = w.MinDays
	case days > w.MaxDays:
		days = w.MaxDays
	default:
		return signing
	}
	d := service.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), signing.Hour(), signing.Minute(), 0, 0, signing.Location())
}

// FormatSigning renders a signing timestamp in the notes' format.
func FormatSigning(t time.Time) string {
	return t.Format(SigningLayout)
}
