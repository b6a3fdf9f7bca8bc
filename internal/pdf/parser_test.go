package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestOpen_NonExistentFile(t *testing.T) {
	_, err := Open("/non/existent/file.pdf", BackendOverlay)
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	var pdfErr *PDFError
	if !errors.As(err, &pdfErr) {
		t.Fatalf("Expected PDFError, got %T", err)
	}
	if pdfErr.Code != ErrPDFNotFound {
		t.Errorf("Expected error code %s, got %s", ErrPDFNotFound, pdfErr.Code)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, "ghostscript")
	var pdfErr *PDFError
	if !errors.As(err, &pdfErr) || pdfErr.Code != ErrUnsupported {
		t.Errorf("Expected %s, got %v", ErrUnsupported, err)
	}
}

func TestOpen_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, BackendOverlay)
	var pdfErr *PDFError
	if !errors.As(err, &pdfErr) {
		t.Fatalf("Expected PDFError, got %v", err)
	}
	if pdfErr.Code != ErrPDFInvalid {
		t.Errorf("Expected error code %s, got %s", ErrPDFInvalid, pdfErr.Code)
	}
}

func TestExtractText_NonExistentFile(t *testing.T) {
	_, err := ExtractText("/non/existent/file.pdf", 0)
	var pdfErr *PDFError
	if !errors.As(err, &pdfErr) || pdfErr.Code != ErrPDFNotFound {
		t.Errorf("Expected %s, got %v", ErrPDFNotFound, err)
	}
}

func TestRect(t *testing.T) {
	r := Rect{X0: 10, Y0: 20, X1: 50, Y1: 30}
	if r.Width() != 40 || r.Height() != 10 {
		t.Errorf("Expected 40x10, got %vx%v", r.Width(), r.Height())
	}

	padded := r.Pad(5, 2, 10, 2)
	want := Rect{X0: 5, Y0: 18, X1: 60, Y1: 32}
	if padded != want {
		t.Errorf("Expected %+v, got %+v", want, padded)
	}

	if !r.Intersects(Rect{X0: 45, Y0: 25, X1: 70, Y1: 40}) {
		t.Error("Expected overlapping boxes to intersect")
	}
	if r.Intersects(Rect{X0: 50, Y0: 20, X1: 60, Y1: 30}) {
		t.Error("Expected touching boxes not to intersect")
	}

	u := Rect{}.Union(r)
	if u != r {
		t.Errorf("Expected union with empty to be %+v, got %+v", r, u)
	}

	clipped := Rect{X0: -10, Y0: -5, X1: 700, Y1: 20}.Clip(Rect{X1: 612, Y1: 792})
	if clipped != (Rect{X0: 0, Y0: 0, X1: 612, Y1: 20}) {
		t.Errorf("Unexpected clip result %+v", clipped)
	}
}

func TestColorHex(t *testing.T) {
	tests := []struct {
		c    Color
		want string
	}{
		{Black, "#000000"},
		{Color{R: 1, G: 1, B: 1}, "#ffffff"},
		{Color{R: 1, G: 0.5, B: 0}, "#ff8000"},
		{Color{R: 2, G: -1, B: 0}, "#ff0000"},
	}
	for _, tt := range tests {
		if got := tt.c.Hex(); got != tt.want {
			t.Errorf("Hex(%+v): expected %s, got %s", tt.c, tt.want, got)
		}
	}
}

func TestFontBase14(t *testing.T) {
	if got := (Font{Name: FontHeBo}).Base14(); got != "Helvetica-BoldOblique" {
		t.Errorf("Expected Helvetica-BoldOblique, got %s", got)
	}
	if got := (Font{Name: FontHelv}).Base14(); got != "Helvetica" {
		t.Errorf("Expected Helvetica, got %s", got)
	}
	if got := (Font{}).Base14(); got != "Helvetica" {
		t.Errorf("Expected Helvetica default, got %s", got)
	}
}

func TestPatternFindAll(t *testing.T) {
	text := "Date: 03/14/2024 2:05 pm  Signed: 03/19/2024 10:30 PM"
	got := DatePattern.FindAll(text)
	if len(got) != 2 {
		t.Fatalf("Expected 2 date matches, got %d", len(got))
	}
	if s := text[got[1][0]:got[1][1]]; s != "03/19/2024 10:30 PM" {
		t.Errorf("Expected second match 03/19/2024 10:30 PM, got %q", s)
	}

	codes := CPTPattern.FindAll("CPT 90837 / 908370 / 90834")
	if len(codes) != 2 {
		t.Errorf("Expected 2 CPT matches, got %d", len(codes))
	}

	lit := Literal("Supervised by")
	if !lit.IsLiteral() {
		t.Error("Expected literal pattern")
	}
	hits := lit.FindAll("Supervised by: A; Supervised by: B")
	if len(hits) != 2 {
		t.Errorf("Expected 2 literal matches, got %d", len(hits))
	}
	if Literal("").FindAll("anything") != nil {
		t.Error("Expected empty literal to match nothing")
	}
}

func TestPatternNormalizesLigatures(t *testing.T) {
	// U+FB01 is the "fi" ligature.
	text := Normalize("Treatment ﬁndings")
	if hits := Literal("findings").FindAll(text); len(hits) != 1 {
		t.Errorf("Expected ligature to match plain spelling, got %d hits", len(hits))
	}
	if p := Regexp(regexp.MustCompile(`x`)); p.IsLiteral() {
		t.Error("Expected regexp pattern not to be literal")
	}
}

// glyphs lays word out on a baseline y from the top of the page.
func glyphs(y, size float64, x float64, word string) []glyph {
	var out []glyph
	for _, r := range word {
		out = append(out, glyph{text: string(r), x: x, y: y, w: size * 0.5, size: size, arg: -1})
		x += size * 0.5
	}
	return out
}

func TestBuildLineAndFind(t *testing.T) {
	row := glyphs(92, 10, 100, "CPT")
	row = append(row, glyphs(92, 10, 130, "90837")...)

	line := buildLine(row)
	if line.text != "CPT 90837" {
		t.Fatalf("Expected %q, got %q", "CPT 90837", line.text)
	}
	if len(line.boxes) != len(line.text) {
		t.Fatalf("Expected one box per byte, got %d boxes for %d bytes", len(line.boxes), len(line.text))
	}

	hits := line.find(CPTPattern)
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.X0 != 130 || h.X1 != 155 {
		t.Errorf("Expected x range 130..155, got %v..%v", h.X0, h.X1)
	}
	// Baseline at 92 from the top; box spans ascent above and descent below.
	if h.Y0 != 84 || h.Y1 != 94 {
		t.Errorf("Expected y range 84..94, got %v..%v", h.Y0, h.Y1)
	}
}

func TestPageLayoutLocateOrder(t *testing.T) {
	layout := pageLayout{
		width: 612, height: 792,
		lines: []textLine{
			buildLine(glyphs(92, 10, 100, "Supervised")),
			buildLine(glyphs(112, 10, 100, "Supervised")),
		},
	}
	hits := layout.locate(Literal("Supervised"))
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Y0 >= hits[1].Y0 {
		t.Errorf("Expected top line first, got %v then %v", hits[0].Y0, hits[1].Y0)
	}
	if got := layout.text(); got != "Supervised\nSupervised" {
		t.Errorf("Unexpected text %q", got)
	}
}
