package pdf

import (
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"note-auditor/internal/logger"
)

// PageCount reads the page count with pdfcpu, independent of the backend
// that wrote the file.
func PageCount(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, NewPDFError(ErrPDFInvalid, "failed to read PDF", err)
	}
	return ctx.PageCount, nil
}

// Validate checks that path is a structurally sound PDF.
func Validate(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		logger.Warn("PDF failed validation",
			logger.String("file", filepath.Base(path)),
			logger.Err(err))
		return NewPDFError(ErrPDFCorrupted, "PDF failed validation", err)
	}
	return nil
}
