package analysis

import (
	"fmt"
	"strings"

	"note-auditor/internal/compliance"
)

// Normalize enforces the rule-based invariants on a parsed analysis. It
// never extracts fields from the note; it only reconciles what the model
// returned with the duration table and the signing window.
func Normalize(a *compliance.Analysis, window compliance.SigningWindow) {
	normalizeDate(&a.Date, window)
	normalizeCPT(&a.CPT)
	normalizeGoals(&a.Goals)
	normalizeSupervision(&a.Supervision)
}

func normalizeDate(f *compliance.Finding, window compliance.SigningWindow) {
	service, serr := compliance.ParseNoteDate(dateOnly(f.ServiceDate))
	signing, gerr := compliance.ParseNoteDate(f.SigningDate)
	if serr == nil && gerr == nil {
		days := compliance.DaysBetween(service, signing)
		f.DaysDifference = &days
	}
	if f.DaysDifference == nil {
		return
	}

	f.Found = !window.Compliant(*f.DaysDifference)
	if !f.Found || serr != nil || gerr != nil {
		return
	}

	corrected := compliance.FormatSigning(window.CorrectSigning(service, signing))
	old, ok := compliance.ExtractDateTime(f.OriginalText)
	if !ok {
		old, ok = compliance.ExtractDateTime(f.SigningDate)
		if !ok {
			return
		}
		f.OriginalText = old
	}
	corrected = matchMeridiemCase(old, corrected)
	f.CorrectedDate = corrected
	f.ReplacementText = strings.Replace(f.OriginalText, old, corrected, 1)
	if f.Description == "" {
		f.Description = fmt.Sprintf("signed %d days after service; must be %d-%d", *f.DaysDifference, window.MinDays, window.MaxDays)
	}
}

// dateOnly drops a trailing clock time from a service date.
func dateOnly(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}

// matchMeridiemCase makes "am"/"pm" in s follow the case used in ref.
func matchMeridiemCase(ref, s string) string {
	if strings.HasSuffix(ref, "AM") || strings.HasSuffix(ref, "PM") {
		return strings.ToUpper(s[:len(s)-2]) + strings.ToUpper(s[len(s)-2:])
	}
	return s
}

func normalizeCPT(f *compliance.Finding) {
	if f.Duration <= 0 && f.StartTime != "" && f.EndTime != "" {
		if m, err := compliance.SessionMinutes(f.StartTime, f.EndTime); err == nil {
			f.Duration = m
		}
	}
	if f.Duration > 0 {
		code, ok := compliance.ExpectedCPT(f.Duration, f.InitialVisit)
		if ok {
			f.CorrectCode = code
		} else {
			f.CorrectCode = ""
		}
	}

	f.Found = compliance.IsCPTCode(f.CurrentCode) &&
		compliance.IsCPTCode(f.CorrectCode) &&
		f.CurrentCode != f.CorrectCode
	if f.Found {
		if f.OriginalText == "" {
			f.OriginalText = f.CurrentCode
		}
		if !strings.Contains(f.ReplacementText, f.CorrectCode) {
			f.ReplacementText = strings.Replace(f.OriginalText, f.CurrentCode, f.CorrectCode, 1)
		}
	}
}

func normalizeGoals(f *compliance.Finding) {
	if f.GoalsCount < 0 && len(f.GoalsFound) > 0 {
		f.GoalsCount = len(f.GoalsFound)
	}
	if f.GoalsCount >= 0 {
		f.Found = f.GoalsCount < 2
	}
}

func normalizeSupervision(f *compliance.Finding) {
	if !f.Found {
		return
	}
	// the replacement line cannot be written without both parts
	if strings.TrimSpace(f.SignerName) == "" || strings.TrimSpace(f.SignerCredentials) == "" {
		f.Found = false
		return
	}
	rb := strings.TrimSpace(f.RenderedBy)
	if strings.HasPrefix(strings.ToLower(rb), "rendered by:") {
		rb = rb[len("rendered by:"):]
	}
	want := f.SignerName + ", " + f.SignerCredentials
	if strings.EqualFold(strings.Join(strings.Fields(rb), " "), want) && len(f.SupervisedBy) <= 1 {
		f.Found = false
	}
}
