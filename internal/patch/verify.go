package patch

import (
	"fmt"
	"slices"
	"strings"

	"note-auditor/internal/compliance"
	"note-auditor/internal/logger"
)

// Verify re-reads a saved output and lists signs of damage. It never fails;
// anything it cannot check becomes an issue. replaced is text the patch
// removed, which must no longer appear on page 1.
func (p *Patcher) Verify(path string, wantPages int, applied []compliance.Kind, replaced []string) []string {
	var issues []string

	if n, err := p.pageCount(path); err != nil {
		issues = append(issues, fmt.Sprintf("cannot count pages: %v", err))
	} else if n != wantPages {
		issues = append(issues, fmt.Sprintf("page count changed from %d to %d", wantPages, n))
	}

	doc, err := p.open(path)
	if err != nil {
		return append(issues, fmt.Sprintf("cannot reopen output: %v", err))
	}
	defer doc.Close()
	if doc.PageCount() == 0 {
		return append(issues, "output has no pages")
	}
	text, err := doc.Text(0)
	if err != nil {
		return append(issues, fmt.Sprintf("cannot extract page 1: %v", err))
	}

	for _, a := range p.creds.Artifacts(text) {
		issues = append(issues, fmt.Sprintf("text artifact %q on page 1", a))
	}
	lower := strings.ToLower(text)
	for _, old := range replaced {
		if old != "" && strings.Contains(lower, strings.ToLower(old)) {
			issues = append(issues, fmt.Sprintf("replaced text %q still on page 1", old))
		}
	}
	if !compliance.HasDateTime(text) {
		issues = append(issues, "no date found on page 1")
	}

	want := p.cfg.Policies.ExpectedSupervisorLines
	if want > 0 && slices.Contains(applied, compliance.KindSupervision) {
		label := p.cfg.Policies.SupervisedByLabel
		if got := strings.Count(text, label); got != want {
			issues = append(issues, fmt.Sprintf("expected %d %q line(s), found %d", want, label, got))
		}
	}

	if len(issues) > 0 {
		logger.Debug("verification issues", logger.String("file", path), logger.Strings("issues", issues))
	}
	return issues
}
