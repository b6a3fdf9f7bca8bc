package report

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"note-auditor/internal/compliance"
	"note-auditor/internal/logger"
	"note-auditor/internal/results"
	"note-auditor/internal/types"
)

const sheetName = "Documents"

var xlsxHeaders = []string{
	"File",
	"Note Type",
	"Provider",
	"Status",
	"Date Issue",
	"CPT Issue",
	"Goals Issue",
	"Supervision Issue",
	"Corrections Made",
	"Applied",
	"Verification Issues",
	"Output",
	"Error",
}

// WriteXLSX writes one row per document to path.
func WriteXLSX(path string, list []*results.DocumentResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to name worksheet", err)
	}

	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for i, r := range list {
		row := i + 2
		write := func(col int, v interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, r.Filename)
		write(2, string(r.NoteType))
		write(3, r.Credential)
		write(4, string(r.Status))
		for j, k := range compliance.Kinds {
			write(5+j, issueCell(r, k))
		}
		write(9, r.CorrectionsMade)
		applied := make([]string, 0, len(r.Applied))
		for _, k := range r.Applied {
			applied = append(applied, string(k))
		}
		write(10, strings.Join(applied, ", "))
		write(11, strings.Join(r.VerificationIssues, "; "))
		write(12, r.OutputPath)
		write(13, r.Error)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 36)
	_ = f.SetColWidth(sheetName, "B", "D", 14)
	_ = f.SetColWidth(sheetName, "E", "H", 24)
	_ = f.SetColWidth(sheetName, "I", "J", 18)
	_ = f.SetColWidth(sheetName, "K", "M", 48)

	if err := f.SaveAs(path); err != nil {
		logger.Error("failed to write workbook", err, logger.String("path", path))
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write workbook", path, err)
	}
	logger.Debug("xlsx report written", logger.String("path", path), logger.Int("rows", len(list)))
	return nil
}

// issueCell summarises one finding: empty when not flagged.
func issueCell(r *results.DocumentResult, k compliance.Kind) string {
	if r.Analysis == nil {
		return ""
	}
	f := r.Analysis.Finding(k)
	if f == nil || !f.Found {
		return ""
	}
	var detail string
	switch k {
	case compliance.KindDate:
		detail = f.SigningDate + " -> " + f.CorrectedDate
	case compliance.KindCPT:
		detail = f.CurrentCode + " -> " + f.CorrectCode
	case compliance.KindGoals:
		detail = "fewer than 2 goals"
	case compliance.KindSupervision:
		detail = f.SignerName + ", " + f.SignerCredentials
	}
	for _, a := range r.Applied {
		if a == k {
			return "corrected: " + detail
		}
	}
	if reason, ok := r.Skipped[k]; ok {
		return "found: " + detail + " (" + reason + ")"
	}
	return "found: " + detail
}
