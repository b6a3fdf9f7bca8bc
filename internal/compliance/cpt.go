package compliance

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Psychotherapy CPT codes.
const (
	CodeInitialEval = "90791"
	Code30Min       = "90832"
	Code45Min       = "90834"
	Code60Min       = "90837"
	CodeFamily      = "90847"
	CodeGroup       = "90853"
)

// TherapyCPTCodes are the codes that mark a note as psychotherapy.
var TherapyCPTCodes = []string{CodeInitialEval, Code30Min, Code45Min, Code60Min, CodeFamily, CodeGroup}

var cptCodeRe = regexp.MustCompile(`^\d{5}$`)

// IsCPTCode reports whether code is a bare five-digit code.
func IsCPTCode(code string) bool {
	return cptCodeRe.MatchString(code)
}

// Duration thresholds in minutes.
const (
	MinBillableMinutes = 16
	Min45Minutes       = 38
	Min60Minutes       = 53
)

// ExpectedCPT maps a session duration to its time-based psychotherapy code.
// Initial visits of 53 minutes or more are always 90791. Shorter initial
// visits fall back to the follow-up table. Sessions under 16 minutes have
// no billable code.
func ExpectedCPT(minutes int, initialVisit bool) (string, bool) {
	switch {
	case minutes < MinBillableMinutes:
		return "", false
	case initialVisit && minutes >= Min60Minutes:
		return CodeInitialEval, true
	case minutes < Min45Minutes:
		return Code30Min, true
	case minutes < Min60Minutes:
		return Code45Min, true
	default:
		return Code60Min, true
	}
}

var clockLayouts = []string{"3:04 pm", "3:04pm", "15:04"}

// ParseClock parses a wall-clock time such as "2:05 pm" or "14:05".
func ParseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, ".", "")
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised clock time %q", s)
}

// SessionMinutes returns the minutes from start to end. An end earlier than
// start is treated as crossing midnight.
func SessionMinutes(start, end string) (int, error) {
	st, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	et, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	d := et.Sub(st)
	if d < 0 {
		d += 24 * time.Hour
	}
	return int(d.Minutes()), nil
}
