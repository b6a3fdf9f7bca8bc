package mupdf

import "errors"

var (
	ErrNotAvailable  = errors.New("mupdf: not available (build with -tags mupdf)")
	ErrOpenDocument  = errors.New("failed to open document")
	ErrInvalidPage   = errors.New("invalid page number")
	ErrExtractText   = errors.New("failed to extract text")
	ErrSearch        = errors.New("failed to search page")
	ErrRedact        = errors.New("failed to apply redaction")
	ErrSaveDocument  = errors.New("failed to save document")
	ErrAddText       = errors.New("failed to add text")
	ErrAddImage      = errors.New("failed to add image")
	ErrRender        = errors.New("failed to render page")
	ErrContextCreate = errors.New("failed to create context")
)

// Rect is an axis-aligned box in MuPDF page space: origin top-left, y down,
// units of 1/72 inch.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Char is one character of a page's structured text. Line numbers the text
// lines of the page in reading order.
type Char struct {
	Rune rune
	Line int
	Box  Rect
}

// Base-14 font names understood by InsertText.
const (
	FontHelvetica            = "Helvetica"
	FontHelveticaBoldOblique = "Helvetica-BoldOblique"
)
