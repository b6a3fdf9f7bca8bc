//go:build !mupdf || !cgo

package pdf

import "errors"

// MuPDFAvailable returns false when MuPDF is not compiled in
func MuPDFAvailable() bool { return false }

func openMuPDF(path string) (Document, error) {
	return nil, NewPDFError(ErrUnsupported, "MuPDF backend unavailable", errors.New("MuPDF not available: build with -tags mupdf"))
}
