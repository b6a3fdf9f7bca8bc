//go:build !mupdf || !cgo

// Package mupdf provides Go bindings for the MuPDF library.
// This is a stub file for when MuPDF is not available.
// Build with -tags mupdf to enable full functionality.
package mupdf

// Context wraps MuPDF fz_context (stub)
type Context struct{}

// NewContext creates a new MuPDF context (stub - returns error)
func NewContext() (*Context, error) {
	return nil, ErrNotAvailable
}

// Close releases the context (stub)
func (c *Context) Close() {}

// PDFDocument wraps MuPDF pdf_document (stub)
type PDFDocument struct{}

// OpenPDFDocument opens a PDF document (stub)
func (c *Context) OpenPDFDocument(filename string) (*PDFDocument, error) {
	return nil, ErrNotAvailable
}

// Close releases the PDF document (stub)
func (d *PDFDocument) Close() {}

// PageCount returns 0 (stub)
func (d *PDFDocument) PageCount() int { return 0 }

// PageBounds returns error (stub)
func (d *PDFDocument) PageBounds(pageNum int) (Rect, error) {
	return Rect{}, ErrNotAvailable
}

// ExtractText returns error (stub)
func (d *PDFDocument) ExtractText(pageNum int) (string, error) {
	return "", ErrNotAvailable
}

// Chars returns error (stub)
func (d *PDFDocument) Chars(pageNum int) ([]Char, error) {
	return nil, ErrNotAvailable
}

// Search returns error (stub)
func (d *PDFDocument) Search(pageNum int, needle string) ([]Rect, error) {
	return nil, ErrNotAvailable
}

// Redact returns error (stub)
func (d *PDFDocument) Redact(pageNum int, r Rect) error {
	return ErrNotAvailable
}

// InsertText returns error (stub)
func (d *PDFDocument) InsertText(pageNum int, text string, x, y, fontSize float64, base14 string, rgb [3]float64) error {
	return ErrNotAvailable
}

// InsertImage returns error (stub)
func (d *PDFDocument) InsertImage(pageNum int, data []byte, r Rect) error {
	return ErrNotAvailable
}

// RenderPNG returns error (stub)
func (d *PDFDocument) RenderPNG(pageNum int, r Rect, dpi int) ([]byte, error) {
	return nil, ErrNotAvailable
}

// Save returns error (stub)
func (d *PDFDocument) Save(filename string) error {
	return ErrNotAvailable
}

// IsAvailable returns false when MuPDF is not compiled in
func IsAvailable() bool {
	return false
}
