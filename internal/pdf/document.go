package pdf

import (
	"os"
	"strings"
)

// Backend names.
const (
	BackendOverlay = "overlay"
	BackendMuPDF   = "mupdf"
)

// Document is an open PDF being inspected or patched. Pages are 0-based.
// Edits are held until Save; Close releases the file without writing.
type Document interface {
	PageCount() int
	Page(i int) (Page, error)
	Text(i int) (string, error)
	Save(path string) error
	Close() error
}

// Page is the editing surface of one page. Coordinates are top-left origin
// in points.
type Page interface {
	Index() int
	Size() (width, height float64)
	// Locate returns the boxes of every match of p in rendering order.
	Locate(p Pattern) ([]Rect, error)
	// Redact removes whatever is drawn inside r.
	Redact(r Rect) error
	// WriteText draws text with its baseline at at.Y.
	WriteText(at Point, text string, f Font) error
	// Rasterize renders r at dpi and returns PNG bytes.
	Rasterize(r Rect, dpi int) ([]byte, error)
	// InsertImage draws PNG bytes scaled to fill r.
	InsertImage(r Rect, png []byte) error
}

// Open opens path with the named backend. An empty backend selects MuPDF
// when it is compiled in and the overlay otherwise.
func Open(path, backend string) (Document, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, NewPDFError(ErrPDFNotFound, "file not found", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "cannot access file", err)
	}
	switch strings.ToLower(backend) {
	case "":
		if MuPDFAvailable() {
			return openMuPDF(path)
		}
		return openOverlay(path)
	case BackendMuPDF:
		return openMuPDF(path)
	case BackendOverlay:
		return openOverlay(path)
	default:
		return nil, NewPDFErrorWithDetails(ErrUnsupported, "unknown PDF backend", backend, nil)
	}
}

// FullText joins the text of every page of an open document.
func FullText(doc Document) (string, error) {
	var b strings.Builder
	for i := 0; i < doc.PageCount(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func checkPage(i, count int) error {
	if i < 0 || i >= count {
		return NewPDFErrorWithPage(ErrInvalidPageNum, "page out of range", i, nil)
	}
	return nil
}
