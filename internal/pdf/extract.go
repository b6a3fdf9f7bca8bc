package pdf

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// Letter size, used when a page carries no readable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// glyph ascent and descent as a fraction of font size.
const (
	ascentRatio  = 0.8
	descentRatio = 0.2
)

// textLine is one visual line of a page: its normalised text plus, for every
// byte of that text, the box of the glyph that produced it.
type textLine struct {
	text  string
	boxes []Rect
}

// find returns the boxes of every match of p on this line, left to right.
// A match covers only the glyphs of its own byte range.
func (l textLine) find(p Pattern) []Rect {
	var out []Rect
	for _, m := range p.FindAll(l.text) {
		if m[1] <= m[0] {
			continue
		}
		var r Rect
		for i := m[0]; i < m[1]; i++ {
			r = r.Union(l.boxes[i])
		}
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// pageLayout is the extracted text geometry of one page, together with the
// parsed content stream it came from.
type pageLayout struct {
	width, height float64
	lines         []textLine

	content []byte
	ops     []operation
	glyphs  []glyph
	fonts   map[string]*fontMetrics
}

func (p pageLayout) text() string {
	parts := make([]string, len(p.lines))
	for i, l := range p.lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

func (p pageLayout) locate(pat Pattern) []Rect {
	var out []Rect
	for _, l := range p.lines {
		out = append(out, l.find(pat)...)
	}
	return out
}

// lineBuilder accumulates glyph text and keeps one box per byte.
type lineBuilder struct {
	b     strings.Builder
	boxes []Rect
}

func (lb *lineBuilder) add(s string, box Rect) {
	s = Normalize(s)
	lb.b.WriteString(s)
	for range len(s) {
		lb.boxes = append(lb.boxes, box)
	}
}

func (lb *lineBuilder) line() textLine {
	return textLine{text: lb.b.String(), boxes: lb.boxes}
}

// buildLine joins glyphs already sorted left to right into a textLine,
// inserting a space where the horizontal gap suggests one.
func buildLine(glyphs []glyph) textLine {
	var lb lineBuilder
	prevX1 := 0.0
	for _, g := range glyphs {
		if g.text == "" {
			continue
		}
		size := g.size
		if size <= 0 {
			size = 10
		}
		box := g.box()
		if box.Width() <= 0 {
			box.X1 = box.X0 + size*0.5*float64(len([]rune(g.text)))
		}
		if box.Height() <= 0 {
			box.Y0, box.Y1 = g.y-size*ascentRatio, g.y+size*descentRatio
		}

		text := lb.b.String()
		if text != "" && box.X0-prevX1 > size*0.25 && !strings.HasSuffix(text, " ") && !strings.HasPrefix(g.text, " ") {
			lb.add(" ", Rect{X0: prevX1, Y0: box.Y0, X1: box.X0, Y1: box.Y1})
		}
		lb.add(g.text, box)
		prevX1 = box.X1
	}
	return lb.line()
}

// groupLines clusters glyphs by baseline, top to bottom, and sorts each
// line left to right.
func groupLines(glyphs []glyph) [][]glyph {
	sorted := append([]glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].y != sorted[j].y {
			return sorted[i].y < sorted[j].y
		}
		return sorted[i].x < sorted[j].x
	})

	var lines [][]glyph
	var cur []glyph
	baseline := 0.0
	for _, g := range sorted {
		tol := math.Max(1, g.size*0.3)
		if len(cur) > 0 && math.Abs(g.y-baseline) > tol {
			lines = append(lines, cur)
			cur = nil
		}
		if len(cur) == 0 {
			baseline = g.y
		}
		cur = append(cur, g)
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	for _, l := range lines {
		sort.SliceStable(l, func(i, j int) bool { return l[i].x < l[j].x })
	}
	return lines
}

// pageContent concatenates the decoded content streams of a page.
func pageContent(page lpdf.Page) ([]byte, error) {
	c := page.V.Key("Contents")
	var streams []lpdf.Value
	switch c.Kind() {
	case lpdf.Stream:
		streams = append(streams, c)
	case lpdf.Array:
		for i := 0; i < c.Len(); i++ {
			streams = append(streams, c.Index(i))
		}
	}
	var buf bytes.Buffer
	for _, s := range streams {
		rc := s.Reader()
		_, err := io.Copy(&buf, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// readLayout extracts the text geometry of a 1-based page. The underlying
// reader panics on some malformed objects; that is reported as
// ErrExtractFailed.
func readLayout(r *lpdf.Reader, pageNum int) (layout pageLayout, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewPDFErrorWithPage(ErrExtractFailed, "failed to parse page content", pageNum-1, fmt.Errorf("%v", rec))
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return pageLayout{}, NewPDFErrorWithPage(ErrInvalidPageNum, "page does not exist", pageNum-1, nil)
	}
	layout.width, layout.height = mediaBox(page)
	layout.fonts = make(map[string]*fontMetrics)

	layout.content, err = pageContent(page)
	if err != nil {
		return layout, NewPDFErrorWithPage(ErrExtractFailed, "failed to read page content", pageNum-1, err)
	}
	layout.ops, err = parseContent(layout.content)
	if err != nil {
		return layout, NewPDFErrorWithPage(ErrExtractFailed, "failed to parse page content", pageNum-1, err)
	}

	fonts := func(name string) *fontMetrics {
		if m, ok := layout.fonts[name]; ok {
			return m
		}
		f := lpdf.Font{}
		if name != "" {
			f = page.Font(name)
		}
		m := newFontMetrics(f)
		layout.fonts[name] = m
		return m
	}
	layout.glyphs = walkText(layout.ops, layout.height, fonts)

	for _, row := range groupLines(layout.glyphs) {
		line := buildLine(row)
		if strings.TrimSpace(line.text) == "" {
			continue
		}
		layout.lines = append(layout.lines, line)
	}
	return layout, nil
}

// mediaBox walks up the page tree for an inherited MediaBox.
func mediaBox(page lpdf.Page) (float64, float64) {
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		mb := v.Key("MediaBox")
		if mb.Kind() == lpdf.Array && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
	}
	return defaultPageWidth, defaultPageHeight
}

// ExtractText returns the text of the first maxPages pages (all pages when
// maxPages <= 0), one string per page.
func ExtractText(path string, maxPages int) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, NewPDFError(ErrPDFNotFound, "file not found", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "cannot access file", err)
	}
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "cannot open PDF file", err)
	}
	defer f.Close()

	n := r.NumPage()
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		layout, err := readLayout(r, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, layout.text())
	}
	return pages, nil
}

// JoinPages joins page texts with blank lines between pages. A result with
// no visible text is ErrPDFNoText.
func JoinPages(pages []string) (string, error) {
	text := strings.Join(pages, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", NewPDFError(ErrPDFNoText, "PDF contains no extractable text", nil)
	}
	return text, nil
}
