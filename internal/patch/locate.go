package patch

import (
	"regexp"

	"note-auditor/internal/config"
	"note-auditor/internal/pdf"
)

// locator applies the configured hit policy on top of Page.Locate.
type locator struct {
	all bool
}

func newLocator(policy string) locator {
	return locator{all: policy == config.LocateAll}
}

// find returns the boxes to patch: the first hit, or every hit when the
// policy is "all".
func (l locator) find(page pdf.Page, p pdf.Pattern) ([]pdf.Rect, error) {
	hits, err := page.Locate(p)
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	if l.all {
		return hits, nil
	}
	return hits[:1], nil
}

// first returns only the first hit regardless of policy.
func first(page pdf.Page, p pdf.Pattern) (pdf.Rect, bool, error) {
	hits, err := page.Locate(p)
	if err != nil || len(hits) == 0 {
		return pdf.Rect{}, false, err
	}
	return hits[0], true, nil
}

// firstBelow returns the first hit whose top edge lies below y.
func firstBelow(page pdf.Page, p pdf.Pattern, y float64) (pdf.Rect, bool, error) {
	hits, err := page.Locate(p)
	if err != nil {
		return pdf.Rect{}, false, err
	}
	for _, h := range hits {
		if h.Y0 > y {
			return h, true, nil
		}
	}
	return pdf.Rect{}, false, nil
}

// findHeader tries each header variant in order; the first with a hit wins.
func findHeader(page pdf.Page, headers []string) (pdf.Rect, bool, error) {
	for _, h := range headers {
		r, ok, err := first(page, pdf.Literal(h))
		if err != nil {
			return pdf.Rect{}, false, err
		}
		if ok {
			return r, true, nil
		}
	}
	return pdf.Rect{}, false, nil
}

// codePattern matches code as a whole number, not inside a longer one.
func codePattern(code string) pdf.Pattern {
	return pdf.Regexp(regexp.MustCompile(`\b` + regexp.QuoteMeta(code) + `\b`))
}
