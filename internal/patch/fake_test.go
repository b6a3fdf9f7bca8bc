package patch

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"testing"

	"note-auditor/internal/analysis"
	"note-auditor/internal/compliance"
	"note-auditor/internal/pdf"
)

// An in-memory document persisted as JSON so a saved output can be
// re-opened by Verify.

type fakeSpan struct {
	Text string   `json:"text"`
	Rect pdf.Rect `json:"rect"`
	Font string   `json:"font,omitempty"`
	Size float64  `json:"size,omitempty"`
}

type fakeImage struct {
	Rect pdf.Rect `json:"rect"`
	Data string   `json:"data"`
}

type fakePageData struct {
	W      float64     `json:"w"`
	H      float64     `json:"h"`
	Spans  []fakeSpan  `json:"spans"`
	Images []fakeImage `json:"images,omitempty"`
}

type fakeFile struct {
	Pages []*fakePageData `json:"pages"`
}

// fakeBackend injects failures into documents it opens.
type fakeBackend struct {
	rasterErr error
	redactErr error
	opened    int
	closed    int
}

func (b *fakeBackend) open(path string) (pdf.Document, error) {
	f, err := readFakeFile(path)
	if err != nil {
		return nil, pdf.NewPDFError(pdf.ErrPDFInvalid, "cannot open PDF file", err)
	}
	b.opened++
	return &fakeDoc{backend: b, file: f}, nil
}

func (b *fakeBackend) pageCount(path string) (int, error) {
	f, err := readFakeFile(path)
	if err != nil {
		return 0, err
	}
	return len(f.Pages), nil
}

func readFakeFile(path string) (*fakeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fakeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func writeFakeFile(t *testing.T, path string, pages ...*fakePageData) {
	t.Helper()
	data, err := json.Marshal(fakeFile{Pages: pages})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

type fakeDoc struct {
	backend *fakeBackend
	file    *fakeFile
	closed  bool
}

func (d *fakeDoc) PageCount() int { return len(d.file.Pages) }

func (d *fakeDoc) Page(i int) (pdf.Page, error) {
	if i < 0 || i >= len(d.file.Pages) {
		return nil, pdf.NewPDFErrorWithPage(pdf.ErrInvalidPageNum, "page out of range", i, nil)
	}
	return &fakePage{doc: d, index: i, data: d.file.Pages[i]}, nil
}

func (d *fakeDoc) Text(i int) (string, error) {
	if i < 0 || i >= len(d.file.Pages) {
		return "", pdf.NewPDFErrorWithPage(pdf.ErrInvalidPageNum, "page out of range", i, nil)
	}
	return pageText(d.file.Pages[i]), nil
}

func (d *fakeDoc) Save(path string) error {
	data, err := json.Marshal(d.file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *fakeDoc) Close() error {
	if !d.closed {
		d.closed = true
		d.backend.closed++
	}
	return nil
}

func sortedSpans(p *fakePageData) []fakeSpan {
	spans := append([]fakeSpan(nil), p.Spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Rect.Y0 != spans[j].Rect.Y0 {
			return spans[i].Rect.Y0 < spans[j].Rect.Y0
		}
		return spans[i].Rect.X0 < spans[j].Rect.X0
	})
	return spans
}

func pageText(p *fakePageData) string {
	var lines []string
	for _, s := range sortedSpans(p) {
		lines = append(lines, s.Text)
	}
	return strings.Join(lines, "\n")
}

type fakePage struct {
	doc   *fakeDoc
	index int
	data  *fakePageData
}

func (p *fakePage) Index() int { return p.index }

func (p *fakePage) Size() (float64, float64) { return p.data.W, p.data.H }

// Locate splits each span's box evenly across its bytes.
func (p *fakePage) Locate(pat pdf.Pattern) ([]pdf.Rect, error) {
	var out []pdf.Rect
	for _, s := range sortedSpans(p.data) {
		text := pdf.Normalize(s.Text)
		if text == "" {
			continue
		}
		cw := s.Rect.Width() / float64(len(text))
		for _, m := range pat.FindAll(text) {
			out = append(out, pdf.Rect{
				X0: s.Rect.X0 + float64(m[0])*cw, Y0: s.Rect.Y0,
				X1: s.Rect.X0 + float64(m[1])*cw, Y1: s.Rect.Y1,
			})
		}
	}
	return out, nil
}

func (p *fakePage) Redact(r pdf.Rect) error {
	if p.doc.backend.redactErr != nil {
		return p.doc.backend.redactErr
	}
	kept := p.data.Spans[:0]
	for _, s := range p.data.Spans {
		if !s.Rect.Intersects(r) {
			kept = append(kept, s)
		}
	}
	p.data.Spans = kept
	return nil
}

func (p *fakePage) WriteText(at pdf.Point, text string, f pdf.Font) error {
	p.data.Spans = append(p.data.Spans, fakeSpan{
		Text: text,
		Rect: pdf.Rect{
			X0: at.X, Y0: at.Y - f.Size*0.8,
			X1: at.X + float64(len(text))*f.Size*0.5, Y1: at.Y + f.Size*0.2,
		},
		Font: f.Name,
		Size: f.Size,
	})
	return nil
}

func (p *fakePage) Rasterize(r pdf.Rect, dpi int) ([]byte, error) {
	if p.doc.backend.rasterErr != nil {
		return nil, p.doc.backend.rasterErr
	}
	var texts []string
	for _, s := range sortedSpans(p.data) {
		if s.Rect.Intersects(r) {
			texts = append(texts, s.Text)
		}
	}
	return []byte(strings.Join(texts, "|")), nil
}

func (p *fakePage) InsertImage(r pdf.Rect, data []byte) error {
	p.data.Images = append(p.data.Images, fakeImage{Rect: r, Data: string(data)})
	return nil
}

// fakeGoals returns fixed goal lines.
type fakeGoals struct {
	lines analysis.GoalLines
	err   error
	calls int
	text  string
}

func (g *fakeGoals) GenerateGoals(ctx context.Context, text string, goals compliance.Finding) (analysis.GoalLines, error) {
	g.calls++
	g.text = text
	if g.err != nil {
		return nil, g.err
	}
	return g.lines, nil
}

func span(text string, x, y float64) fakeSpan {
	return fakeSpan{Text: text, Rect: pdf.Rect{X0: x, Y0: y, X1: x + float64(len(text))*5, Y1: y + 10}}
}
