package pdf

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestPDF writes a one-page letter PDF that draws content with
// Helvetica bound to /F1.
func writeTestPDF(t *testing.T, content string) string {
	t.Helper()
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	path := filepath.Join(t.TempDir(), "note.pdf")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var noteContents = []struct {
	name    string
	content string
}{
	{
		name: "text matrix per line",
		content: "BT /F1 10 Tf 1 0 0 1 72 700 Tm (CPT Code: 90834) Tj ET\n" +
			"BT /F1 10 Tf 1 0 0 1 72 680 Tm (Date: 03/15/2024 02:00 pm) Tj ET\n" +
			"BT /F1 10 Tf 1 0 0 1 72 660 Tm (Signed: John Smith) Tj ET",
	},
	{
		name: "relative moves and arrays",
		content: "BT /F1 10 Tf 72 700 Td [(CPT Code: ) (90834)] TJ\n" +
			"0 -20 Td (Date: 03/15/2024 02:00 pm) Tj\n" +
			"0 -20 Td [(Signed: ) (John Smith)] TJ ET",
	},
}

func nearRect(a, b Rect) bool {
	return math.Abs(a.X0-b.X0) < 0.01 && math.Abs(a.Y0-b.Y0) < 0.01 &&
		math.Abs(a.X1-b.X1) < 0.01 && math.Abs(a.Y1-b.Y1) < 0.01
}

func TestOverlayLocateSubstring(t *testing.T) {
	for _, tc := range noteContents {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Open(writeTestPDF(t, tc.content), BackendOverlay)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer doc.Close()
			page, err := doc.Page(0)
			if err != nil {
				t.Fatal(err)
			}

			hits, err := page.Locate(Literal("90834"))
			if err != nil {
				t.Fatal(err)
			}
			if len(hits) != 1 {
				t.Fatalf("Expected 1 hit, got %d", len(hits))
			}
			// "CPT Code: " is 52.24pt of 10pt Helvetica; the baseline is 92pt
			// from the top.
			want := Rect{X0: 124.24, Y0: 84, X1: 152.04, Y1: 94}
			if !nearRect(hits[0], want) {
				t.Errorf("Expected %+v, got %+v", want, hits[0])
			}

			text, err := doc.Text(0)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(text, "CPT Code: 90834\nDate: 03/15/2024 02:00 pm\nSigned: John Smith") {
				t.Errorf("Unexpected page text %q", text)
			}
		})
	}
}

func TestOverlaySaveRemovesRedactedText(t *testing.T) {
	for _, tc := range noteContents {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Open(writeTestPDF(t, tc.content), BackendOverlay)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer doc.Close()
			page, err := doc.Page(0)
			if err != nil {
				t.Fatal(err)
			}
			font := Font{Name: FontHelv, Size: 10}

			for _, edit := range []struct{ old, new string }{
				{"90834", "90837"},
				{"03/15/2024 02:00 pm", "03/07/2024 02:00 pm"},
			} {
				hits, err := page.Locate(Literal(edit.old))
				if err != nil || len(hits) != 1 {
					t.Fatalf("Locate(%q): %d hits, err %v", edit.old, len(hits), err)
				}
				h := hits[0]
				if err := page.Redact(h.Pad(1, 1, 1, 1)); err != nil {
					t.Fatalf("Redact failed: %v", err)
				}
				if err := page.WriteText(Point{X: h.X0, Y: h.Y1 - 10*descentRatio}, edit.new, font); err != nil {
					t.Fatalf("WriteText failed: %v", err)
				}
			}

			out := filepath.Join(t.TempDir(), "out.pdf")
			if err := doc.Save(out); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			pages, err := ExtractText(out, 0)
			if err != nil {
				t.Fatalf("ExtractText failed: %v", err)
			}
			if len(pages) != 1 {
				t.Fatalf("Expected 1 page, got %d", len(pages))
			}
			text := pages[0]
			for _, gone := range []string{"90834", "03/15/2024"} {
				if strings.Contains(text, gone) {
					t.Errorf("Expected %q to be removed, got %q", gone, text)
				}
			}
			for _, kept := range []string{"CPT Code: 90837", "Date: 03/07/2024 02:00 pm", "Signed: John Smith"} {
				if !strings.Contains(text, kept) {
					t.Errorf("Expected %q in %q", kept, text)
				}
			}
			if n, err := PageCount(out); err != nil || n != 1 {
				t.Errorf("Expected 1 page in output, got %d (%v)", n, err)
			}
		})
	}
}

func TestOverlayRedactCancelsEarlierText(t *testing.T) {
	doc, err := Open(writeTestPDF(t, noteContents[0].content), BackendOverlay)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer doc.Close()
	page, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.WriteText(Point{X: 300, Y: 400}, "Provisional", Font{Name: FontHelv, Size: 10}); err != nil {
		t.Fatal(err)
	}
	if err := page.Redact(Rect{X0: 290, Y0: 380, X1: 400, Y1: 410}); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.pdf")
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	pages, err := ExtractText(out, 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(pages[0], "Provisional") {
		t.Errorf("Expected cancelled text to be absent, got %q", pages[0])
	}
	if !strings.Contains(pages[0], "Signed: John Smith") {
		t.Errorf("Expected untouched text to survive, got %q", pages[0])
	}
}

func TestOverlayLocateSkipsRedacted(t *testing.T) {
	doc, err := Open(writeTestPDF(t, noteContents[1].content), BackendOverlay)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer doc.Close()
	page, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := page.Locate(Literal("90834"))
	if err != nil || len(hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d (%v)", len(hits), err)
	}
	if err := page.Redact(hits[0].Pad(1, 1, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if again, _ := page.Locate(Literal("90834")); len(again) != 0 {
		t.Errorf("Expected redacted match to be skipped, got %v", again)
	}
}

func TestOverlaySaveWithoutEditsCopiesSource(t *testing.T) {
	src := writeTestPDF(t, noteContents[0].content)
	doc, err := Open(src, BackendOverlay)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	out := filepath.Join(t.TempDir(), "out.pdf")
	if err := doc.Save(out); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(src)
	b, _ := os.ReadFile(out)
	if !bytes.Equal(a, b) {
		t.Error("Expected an unedited save to copy the source")
	}
}

func TestJoinPages(t *testing.T) {
	got, err := JoinPages([]string{"one", "two"})
	if err != nil || got != "one\n\ntwo" {
		t.Errorf("Expected joined pages, got %q (%v)", got, err)
	}
	if _, err := JoinPages([]string{" ", "\n"}); err == nil {
		t.Error("Expected ErrPDFNoText for blank pages")
	}
}
