// Package pdf opens clinical-note PDFs for reading and in-place patching.
// Pages expose a small editing surface (locate, redact, write, rasterize,
// insert image) implemented by two backends: MuPDF through cgo and a pure Go
// overlay built on ledongthuc/pdf, pdfcpu and go-fitz.
package pdf

import "math"

// Rect is an axis-aligned box in page space: origin top-left, y grows
// downward, units are points.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether the box has no area.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Pad grows the box by the given amounts on each side. Negative values
// shrink it.
func (r Rect) Pad(left, top, right, bottom float64) Rect {
	return Rect{X0: r.X0 - left, Y0: r.Y0 - top, X1: r.X1 + right, Y1: r.Y1 + bottom}
}

// Intersects reports whether two boxes overlap with positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Union returns the smallest box containing both.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0), Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1), Y1: math.Max(r.Y1, o.Y1),
	}
}

// Clip restricts the box to bounds.
func (r Rect) Clip(bounds Rect) Rect {
	return Rect{
		X0: math.Max(r.X0, bounds.X0), Y0: math.Max(r.Y0, bounds.Y0),
		X1: math.Min(r.X1, bounds.X1), Y1: math.Min(r.Y1, bounds.Y1),
	}
}

// Point is a location in page space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Color is an RGB colour with components in [0,1].
type Color struct {
	R, G, B float64
}

// Black is the default text colour.
var Black = Color{}

// Hex renders the colour as #rrggbb.
func (c Color) Hex() string {
	const digits = "0123456789abcdef"
	b := []byte("#000000")
	for i, v := range []float64{c.R, c.G, c.B} {
		n := int(math.Round(math.Max(0, math.Min(1, v)) * 255))
		b[1+i*2] = digits[n>>4]
		b[2+i*2] = digits[n&0x0f]
	}
	return string(b)
}

// Font names for the base-14 faces the writer uses.
const (
	FontHelv = "helv" // Helvetica
	FontHeBo = "hebo" // Helvetica-BoldOblique
)

// Font selects face, size and colour for written text.
type Font struct {
	Name  string
	Size  float64
	Color Color
}

// Base14 maps a short font name to its PostScript base-14 name.
func (f Font) Base14() string {
	switch f.Name {
	case FontHeBo:
		return "Helvetica-BoldOblique"
	default:
		return "Helvetica"
	}
}

// PDFErrorCode classifies PDF failures.
type PDFErrorCode string

const (
	ErrPDFNotFound    PDFErrorCode = "PDF_NOT_FOUND"
	ErrPDFInvalid     PDFErrorCode = "PDF_INVALID"
	ErrPDFEncrypted   PDFErrorCode = "PDF_ENCRYPTED"
	ErrPDFCorrupted   PDFErrorCode = "PDF_CORRUPTED"
	ErrPDFNoText      PDFErrorCode = "PDF_NO_TEXT"
	ErrExtractFailed  PDFErrorCode = "EXTRACT_FAILED"
	ErrLocateFailed   PDFErrorCode = "LOCATE_FAILED"
	ErrRedactFailed   PDFErrorCode = "REDACT_FAILED"
	ErrWriteFailed    PDFErrorCode = "WRITE_FAILED"
	ErrRenderFailed   PDFErrorCode = "RENDER_FAILED"
	ErrSaveFailed     PDFErrorCode = "SAVE_FAILED"
	ErrUnsupported    PDFErrorCode = "UNSUPPORTED"
	ErrInvalidPageNum PDFErrorCode = "INVALID_PAGE"
)

// PDFError is a PDF processing error.
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError for a specific page
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}
