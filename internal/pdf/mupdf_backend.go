//go:build mupdf && cgo

package pdf

import (
	"sort"
	"strings"
	"sync"

	"note-auditor/internal/mupdf"
)

// MuPDFAvailable reports whether the MuPDF backend is compiled in.
func MuPDFAvailable() bool { return mupdf.IsAvailable() }

type mupdfDocument struct {
	mu  sync.Mutex
	ctx *mupdf.Context
	doc *mupdf.PDFDocument
}

func openMuPDF(path string) (Document, error) {
	ctx, err := mupdf.NewContext()
	if err != nil {
		return nil, NewPDFError(ErrUnsupported, "cannot create MuPDF context", err)
	}
	doc, err := ctx.OpenPDFDocument(path)
	if err != nil {
		ctx.Close()
		return nil, NewPDFError(ErrPDFInvalid, "cannot open PDF file", err)
	}
	return &mupdfDocument{ctx: ctx, doc: doc}, nil
}

func (d *mupdfDocument) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.PageCount()
}

func (d *mupdfDocument) Page(i int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkPage(i, d.doc.PageCount()); err != nil {
		return nil, err
	}
	b, err := d.doc.PageBounds(i)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrPDFInvalid, "cannot read page bounds", i, err)
	}
	return &mupdfPage{doc: d, index: i, width: b.X1 - b.X0, height: b.Y1 - b.Y0}, nil
}

func (d *mupdfDocument) Text(i int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := d.doc.ExtractText(i)
	if err != nil {
		return "", NewPDFErrorWithPage(ErrExtractFailed, "failed to extract page text", i, err)
	}
	return Normalize(text), nil
}

func (d *mupdfDocument) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.doc.Save(path); err != nil {
		return NewPDFError(ErrSaveFailed, "cannot write PDF", err)
	}
	return nil
}

func (d *mupdfDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc != nil {
		d.doc.Close()
		d.doc = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return nil
}

type mupdfPage struct {
	doc           *mupdfDocument
	index         int
	width, height float64
}

func (p *mupdfPage) Index() int { return p.index }

func (p *mupdfPage) Size() (float64, float64) { return p.width, p.height }

func toRect(r mupdf.Rect) Rect   { return Rect{X0: r.X0, Y0: r.Y0, X1: r.X1, Y1: r.Y1} }
func fromRect(r Rect) mupdf.Rect { return mupdf.Rect{X0: r.X0, Y0: r.Y0, X1: r.X1, Y1: r.Y1} }

// Locate searches literals directly. Expressions run over the structured
// text of each line and take their boxes from the matched characters.
func (p *mupdfPage) Locate(pat Pattern) ([]Rect, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	if pat.IsLiteral() {
		hits, err := p.doc.doc.Search(p.index, pat.String())
		if err != nil {
			return nil, NewPDFErrorWithPage(ErrLocateFailed, "search failed", p.index, err)
		}
		return readingOrder(convert(hits)), nil
	}

	chars, err := p.doc.doc.Chars(p.index)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrExtractFailed, "failed to extract page text", p.index, err)
	}
	var out []Rect
	for _, l := range charLines(chars) {
		out = append(out, l.find(pat)...)
	}
	return readingOrder(out), nil
}

func convert(in []mupdf.Rect) []Rect {
	out := make([]Rect, len(in))
	for i, r := range in {
		out[i] = toRect(r)
	}
	return out
}

// readingOrder sorts boxes top to bottom, then left to right within a line.
func readingOrder(rs []Rect) []Rect {
	sort.SliceStable(rs, func(i, j int) bool {
		if d := rs[i].Y0 - rs[j].Y0; d < -2 || d > 2 {
			return d < 0
		}
		return rs[i].X0 < rs[j].X0
	})
	return rs
}

func (p *mupdfPage) Redact(r Rect) error {
	r = r.Clip(Rect{X1: p.width, Y1: p.height})
	if r.Empty() {
		return NewPDFErrorWithPage(ErrRedactFailed, "redaction box outside page", p.index, nil)
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if err := p.doc.doc.Redact(p.index, fromRect(r)); err != nil {
		return NewPDFErrorWithPage(ErrRedactFailed, "redaction failed", p.index, err)
	}
	return nil
}

func (p *mupdfPage) WriteText(at Point, text string, f Font) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if strings.Contains(text, "\n") {
		return NewPDFErrorWithDetails(ErrWriteFailed, "text must be a single line", text, nil)
	}
	encoded, err := winAnsiLiteral(text)
	if err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "cannot encode text", p.index, err)
	}
	size := f.pointSize()
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	rgb := [3]float64{f.Color.R, f.Color.G, f.Color.B}
	if err := p.doc.doc.InsertText(p.index, encoded, at.X, at.Y, size, f.Base14(), rgb); err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "failed to write text", p.index, err)
	}
	return nil
}

// winAnsiLiteral encodes text for a base-14 font and escapes it for use
// inside a PDF string literal.
func winAnsiLiteral(text string) (string, error) {
	raw, err := winAnsi(text)
	if err != nil {
		return "", err
	}
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(string(raw)), nil
}

func (p *mupdfPage) Rasterize(r Rect, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = 150
	}
	r = r.Clip(Rect{X1: p.width, Y1: p.height})
	if r.Empty() {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "raster box outside page", p.index, nil)
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	data, err := p.doc.doc.RenderPNG(p.index, fromRect(r), dpi)
	if err != nil {
		return nil, NewPDFErrorWithPage(ErrRenderFailed, "failed to render page", p.index, err)
	}
	return data, nil
}

func (p *mupdfPage) InsertImage(r Rect, data []byte) error {
	if r.Empty() {
		return NewPDFErrorWithPage(ErrWriteFailed, "image box is empty", p.index, nil)
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if err := p.doc.doc.InsertImage(p.index, data, fromRect(r)); err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "failed to insert image", p.index, err)
	}
	return nil
}
