// Package patch applies compliance corrections to a note PDF: it locates
// each flagged field, redacts it and writes the corrected value in place,
// then re-reads the output to check for damage.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"note-auditor/internal/analysis"
	"note-auditor/internal/compliance"
	"note-auditor/internal/config"
	"note-auditor/internal/logger"
	"note-auditor/internal/pdf"
	"note-auditor/internal/types"
)

// Output name markers.
const (
	CorrectedSuffix   = "_CORRECTED"
	NeedsReviewSuffix = "_CORRECTED_NEEDS_REVIEW"
)

// IsCorrectedName reports whether name is an output of a previous run.
func IsCorrectedName(name string) bool {
	return strings.Contains(strings.ToUpper(filepath.Base(name)), CorrectedSuffix)
}

// CorrectedPath is the sibling path a batch run writes to.
func CorrectedPath(src string) string {
	return siblingPath(src, CorrectedSuffix)
}

// NeedsReviewPath is the sibling path for outputs that failed verification.
func NeedsReviewPath(src string) string {
	return siblingPath(src, NeedsReviewSuffix)
}

func siblingPath(src, suffix string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + suffix + ".pdf"
}

// GoalGenerator writes replacement treatment goals.
type GoalGenerator interface {
	GenerateGoals(ctx context.Context, text string, goals compliance.Finding) (analysis.GoalLines, error)
}

// Opener opens a PDF for patching.
type Opener func(path string) (pdf.Document, error)

// Result describes one patch session.
type Result struct {
	Fixed              bool                       `json:"fixed"`
	OutputPath         string                     `json:"output_path,omitempty"`
	VerificationPassed bool                       `json:"verification_passed"`
	Applied            []compliance.Kind          `json:"applied,omitempty"`
	Skipped            map[compliance.Kind]string `json:"skipped,omitempty"`
	Issues             []string                   `json:"issues,omitempty"`
}

// Patcher runs patch sessions.
type Patcher struct {
	cfg       *config.Config
	goals     GoalGenerator
	creds     *compliance.Credentials
	loc       locator
	open      Opener
	pageCount func(path string) (int, error)
}

// NewPatcher creates a patcher. goals may be nil, in which case goals
// findings are skipped.
func NewPatcher(cfg *config.Config, goals GoalGenerator) *Patcher {
	return &Patcher{
		cfg:   cfg,
		goals: goals,
		creds: cfg.CredentialSet(),
		loc:   newLocator(cfg.Policies.Locator),
		open: func(path string) (pdf.Document, error) {
			return pdf.Open(path, cfg.Backend)
		},
		pageCount: pdf.PageCount,
	}
}

// SetOpener replaces how documents are opened.
func (p *Patcher) SetOpener(open Opener) {
	p.open = open
}

// SetPageCounter replaces how saved outputs are counted.
func (p *Patcher) SetPageCounter(count func(path string) (int, error)) {
	p.pageCount = count
}

// PatchCopy fixes src and writes <stem>_CORRECTED.pdf next to it, renamed
// to <stem>_CORRECTED_NEEDS_REVIEW.pdf when verification finds issues.
func (p *Patcher) PatchCopy(ctx context.Context, src string, a compliance.Analysis) (Result, error) {
	return p.run(ctx, src, a, false)
}

// PatchInPlace fixes src and atomically replaces it.
func (p *Patcher) PatchInPlace(ctx context.Context, src string, a compliance.Analysis) (Result, error) {
	return p.run(ctx, src, a, true)
}

func (p *Patcher) run(ctx context.Context, src string, a compliance.Analysis, inPlace bool) (Result, error) {
	log := logger.With(logger.String("file", filepath.Base(src)))
	s := newSession(ctx, p, a, log)
	if len(s.pending) == 0 {
		return Result{Skipped: s.skipped}, nil
	}

	doc, err := p.open(src)
	if err != nil {
		return Result{}, types.NewAppErrorWithDetails(types.ErrPatch, "cannot open document", filepath.Base(src), err)
	}
	closed := false
	closeDoc := func() error {
		if closed {
			return nil
		}
		closed = true
		return doc.Close()
	}
	defer closeDoc()

	pages := doc.PageCount()
	if s.pending[compliance.KindGoals] {
		if s.text, err = pdf.FullText(doc); err != nil {
			return Result{}, types.NewAppError(types.ErrPatch, "cannot read document text", err)
		}
	}

	for i := 0; i < pages && len(s.pending) > 0; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page, err := doc.Page(i)
		if err != nil {
			return Result{}, types.NewAppErrorWithDetails(types.ErrPatch, "cannot load page", fmt.Sprintf("page %d", i+1), err)
		}
		if err := s.patchPage(page); err != nil {
			return Result{}, err
		}
	}
	for _, k := range compliance.Kinds {
		if s.pending[k] && !s.hit[k] {
			s.skip(k, "anchor not found")
		}
	}

	res := Result{Applied: s.applied, Skipped: s.skipped}
	if len(s.applied) == 0 {
		log.Info("no corrections applied", logger.Int("skipped", len(s.skipped)))
		return res, nil
	}

	out := CorrectedPath(src)
	if inPlace {
		out = src
		err = saveAtomic(src, doc.Save, closeDoc)
	} else {
		err = doc.Save(out)
		_ = closeDoc()
	}
	if err != nil {
		return Result{}, types.NewAppErrorWithDetails(types.ErrPatch, "failed to save corrected document", filepath.Base(out), err)
	}
	res.Fixed = true
	res.OutputPath = out

	res.Issues = p.Verify(out, pages, s.applied, s.replaced())
	res.VerificationPassed = len(res.Issues) == 0
	if !res.VerificationPassed {
		log.Warn("verification found issues", logger.Strings("issues", res.Issues))
		if !inPlace {
			review := NeedsReviewPath(src)
			if err := os.Rename(out, review); err != nil {
				return res, types.NewAppError(types.ErrPatch, "cannot mark output for review", err)
			}
			res.OutputPath = review
		}
	}

	log.Info("document corrected",
		logger.Strings("applied", kindNames(res.Applied)),
		logger.String("output", filepath.Base(res.OutputPath)),
		logger.Bool("verified", res.VerificationPassed))
	return res, nil
}

// session is the state of one patch run over one document.
type session struct {
	ctx context.Context
	p   *Patcher
	a   compliance.Analysis
	log logger.Logger

	text    string
	oldDate string
	newDate string

	pending map[compliance.Kind]bool
	hit     map[compliance.Kind]bool
	applied []compliance.Kind
	skipped map[compliance.Kind]string
	planned map[int][]plannedBox
}

type plannedBox struct {
	kind compliance.Kind
	box  pdf.Rect
}

// newSession decides which findings can be attempted at all.
func newSession(ctx context.Context, p *Patcher, a compliance.Analysis, log logger.Logger) *session {
	s := &session{
		ctx:     ctx,
		p:       p,
		a:       a,
		log:     log,
		pending: make(map[compliance.Kind]bool),
		hit:     make(map[compliance.Kind]bool),
		skipped: make(map[compliance.Kind]string),
		planned: make(map[int][]plannedBox),
	}

	if d := a.Date; d.Found {
		oldDate, okOld := compliance.ExtractDateTime(d.OriginalText)
		newDate, okNew := compliance.ExtractDateTime(d.ReplacementText)
		switch {
		case !okOld || !okNew:
			s.skipped[compliance.KindDate] = "date text missing"
		case strings.EqualFold(oldDate, newDate):
			s.skipped[compliance.KindDate] = "date unchanged"
		default:
			s.oldDate, s.newDate = oldDate, newDate
			s.pending[compliance.KindDate] = true
		}
	}

	if c := a.CPT; c.Found {
		switch {
		case !compliance.IsCPTCode(c.CurrentCode) || !compliance.IsCPTCode(c.CorrectCode):
			s.skipped[compliance.KindCPT] = "invalid CPT code"
		case c.CurrentCode == c.CorrectCode:
			s.skipped[compliance.KindCPT] = "code already correct"
		default:
			s.pending[compliance.KindCPT] = true
		}
	}

	if g := a.Goals; g.Found {
		switch {
		case g.GoalsCount >= 2:
			s.skipped[compliance.KindGoals] = "goals already present"
		case p.goals == nil:
			s.skipped[compliance.KindGoals] = "no goal generator"
		default:
			s.pending[compliance.KindGoals] = true
		}
	}

	if sv := a.Supervision; sv.Found {
		if sv.SignerName == "" || sv.SignerCredentials == "" {
			s.skipped[compliance.KindSupervision] = "signer unknown"
		} else {
			s.pending[compliance.KindSupervision] = true
		}
	}
	return s
}

// replaced lists the old values of the applied date and code fixes.
func (s *session) replaced() []string {
	var out []string
	if s.hit[compliance.KindDate] {
		out = append(out, s.oldDate)
	}
	if s.hit[compliance.KindCPT] {
		out = append(out, s.a.CPT.CurrentCode)
	}
	return out
}

func (s *session) skip(k compliance.Kind, reason string) {
	delete(s.pending, k)
	s.skipped[k] = reason
	s.log.Debug("finding skipped", logger.String("kind", string(k)), logger.String("reason", reason))
}

// everyPage reports whether a finding is corrected wherever it occurs. The
// date and the CPT code repeat in headers and billing blocks; goals and the
// supervision line exist once per note.
func everyPage(k compliance.Kind) bool {
	return k == compliance.KindDate || k == compliance.KindCPT
}

func (s *session) done(k compliance.Kind) {
	if !s.hit[k] {
		s.hit[k] = true
		s.applied = append(s.applied, k)
	}
	if !everyPage(k) {
		delete(s.pending, k)
	}
}

// reserve records a box about to be redacted and warns when it overlaps
// another finding's box on the same page.
func (s *session) reserve(page int, k compliance.Kind, box pdf.Rect) {
	for _, pb := range s.planned[page] {
		if pb.kind != k && pb.box.Intersects(box) {
			s.log.Warn("redaction boxes overlap",
				logger.Int("page", page+1),
				logger.String("kind", string(k)),
				logger.String("other", string(pb.kind)))
		}
	}
	s.planned[page] = append(s.planned[page], plannedBox{kind: k, box: box})
}

func (s *session) patchPage(page pdf.Page) error {
	steps := []struct {
		kind compliance.Kind
		fn   func(pdf.Page) (bool, error)
	}{
		{compliance.KindDate, s.patchDate},
		{compliance.KindCPT, s.patchCPT},
		{compliance.KindGoals, s.patchGoals},
		{compliance.KindSupervision, s.patchSupervision},
	}
	for _, step := range steps {
		if !s.pending[step.kind] {
			continue
		}
		ok, err := step.fn(page)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) || errors.Is(err, context.Canceled) {
				return err
			}
			return types.NewAppErrorWithDetails(types.ErrPatch,
				"failed to patch "+step.kind.Label(),
				fmt.Sprintf("page %d", page.Index()+1), err)
		}
		if ok {
			s.done(step.kind)
		}
	}
	return nil
}

func (s *session) patchDate(page pdf.Page) (bool, error) {
	hits, err := s.p.loc.find(page, pdf.Literal(s.oldDate))
	if err != nil || len(hits) == 0 {
		return false, err
	}
	for _, h := range hits {
		box := dateBox(h)
		s.reserve(page.Index(), compliance.KindDate, box)
		if err := page.Redact(box); err != nil {
			return false, err
		}
		if err := page.WriteText(baseline(h), s.newDate, dateFont); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *session) patchCPT(page pdf.Page) (bool, error) {
	c := s.a.CPT
	hits, err := s.p.loc.find(page, codePattern(c.CurrentCode))
	if err != nil || len(hits) == 0 {
		return false, err
	}
	for _, h := range hits {
		box := cptBox(h)
		s.reserve(page.Index(), compliance.KindCPT, box)
		if err := page.Redact(box); err != nil {
			return false, err
		}
		if err := page.WriteText(baseline(h), c.CorrectCode, cptFont); err != nil {
			return false, err
		}
	}
	return true, nil
}

// patchGoals replaces the band between the first goal header and the
// prognosis anchor with generated goals, and re-inserts everything from the
// anchor down as an image below them.
func (s *session) patchGoals(page pdf.Page) (bool, error) {
	cfg := s.p.cfg
	goal, ok, err := findHeader(page, cfg.GoalHeaders)
	if err != nil || !ok {
		return false, err
	}
	prog, ok, err := firstBelow(page, pdf.Literal(cfg.PrognosisAnchor), goal.Y0)
	if err != nil || !ok {
		return false, err
	}

	w, h := page.Size()
	img, err := page.Rasterize(pdf.Rect{X0: 0, Y0: prog.Y0, X1: w, Y1: h}, cfg.RasterDPI)
	if err != nil {
		var pdfErr *pdf.PDFError
		if errors.As(err, &pdfErr) && pdfErr.Code == pdf.ErrUnsupported {
			s.skip(compliance.KindGoals, "rasterize unsupported: "+pdfErr.Message)
			return false, nil
		}
		return false, err
	}

	lines, err := s.p.goals.GenerateGoals(s.ctx, s.text, s.a.Goals)
	if err != nil {
		return false, err
	}

	band := goalsBand(goal, prog, w)
	s.reserve(page.Index(), compliance.KindGoals, band)
	if err := page.Redact(band); err != nil {
		return false, err
	}
	y := goal.Y0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := page.WriteText(pdf.Point{X: goalLineX, Y: y}, line, goalFont); err != nil {
			return false, err
		}
		y += goalLeading
	}
	top := y + goalImageGap
	if err := page.InsertImage(pdf.Rect{X0: 0, Y0: top, X1: w, Y1: top + (h - prog.Y0)}, img); err != nil {
		return false, err
	}
	return true, nil
}

func (s *session) patchSupervision(page pdf.Page) (bool, error) {
	label := s.p.cfg.Policies.RenderedByLabel
	hit, ok, err := first(page, pdf.Literal(label))
	if err != nil || !ok {
		return false, err
	}
	box := supervisionBox(hit)
	s.reserve(page.Index(), compliance.KindSupervision, box)
	if err := page.Redact(box); err != nil {
		return false, err
	}
	line := s.a.Supervision.RenderedByLine(label)
	if err := page.WriteText(baseline(hit), line, supervisionFont); err != nil {
		return false, err
	}
	return true, nil
}

func kindNames(kinds []compliance.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
