// Package report renders the outcome of an audit run as a self-contained
// HTML page and an XLSX workbook.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"note-auditor/internal/compliance"
	errmgr "note-auditor/internal/errors"
	"note-auditor/internal/logger"
	"note-auditor/internal/results"
	"note-auditor/internal/types"
)

// NamePrefix starts every report file name.
const NamePrefix = "therapy_compliance_"

//go:embed report.html.tmpl
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"kinds":       func() []compliance.Kind { return compliance.Kinds },
	"kindLabel":   func(k compliance.Kind) string { return k.Label() },
	"issueBadge":  issueBadge,
	"statusBadge": statusBadge,
	"stageLabel":  errmgr.GetStageDisplayName,
	"fileURL":     fileURL,
}).Parse(htmlSource))

// Data is everything one report shows.
type Data struct {
	RunID       string
	GeneratedAt time.Time
	DryRun      bool
	Summary     results.Summary
	Therapy     []*results.DocumentResult
	Medical     []*results.DocumentResult
	Errors      []*errmgr.ErrorRecord
}

// NewData splits results by note type. Unclassified documents are listed
// with the therapy notes so failures stay visible.
func NewData(runID string, now time.Time, list []*results.DocumentResult, errs []*errmgr.ErrorRecord) *Data {
	d := &Data{
		RunID:       runID,
		GeneratedAt: now,
		Summary:     results.Summarize(list),
		Errors:      errs,
	}
	for _, r := range list {
		if r.NoteType == compliance.NoteMedical {
			d.Medical = append(d.Medical, r)
		} else {
			d.Therapy = append(d.Therapy, r)
		}
	}
	return d
}

// ReportName is the base file name, without extension, for a report
// generated at now.
func ReportName(now time.Time) string {
	return NamePrefix + now.Format("20060102_150405")
}

// WriteHTML renders d to path.
func WriteHTML(path string, d *Data) error {
	var b strings.Builder
	if err := htmlTemplate.Execute(&b, d); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to render HTML report", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		logger.Error("failed to write HTML report", err, logger.String("path", path))
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write HTML report", path, err)
	}
	logger.Debug("html report written", logger.String("path", path))
	return nil
}

// Paths lists the files written by Write.
type Paths struct {
	HTML string
	JSON string
	XLSX string
}

// Write saves the HTML page, the JSON results array and the workbook into
// dir under base.
func Write(dir, base string, d *Data, rm *results.ResultManager) (Paths, error) {
	var p Paths
	if err := os.MkdirAll(dir, 0755); err != nil {
		return p, types.NewAppError(types.ErrInternal, "failed to create report directory", err)
	}

	p.HTML = filepath.Join(dir, base+".html")
	if err := WriteHTML(p.HTML, d); err != nil {
		return p, err
	}

	jsonPath, err := rm.SaveJSON(base + ".json")
	if err != nil {
		return p, types.NewAppError(types.ErrInternal, "failed to write JSON results", err)
	}
	p.JSON = jsonPath

	p.XLSX = filepath.Join(dir, base+".xlsx")
	if err := WriteXLSX(p.XLSX, append(append([]*results.DocumentResult(nil), d.Therapy...), d.Medical...)); err != nil {
		return p, err
	}

	logger.Info("report written",
		logger.String("html", p.HTML),
		logger.String("json", p.JSON),
		logger.String("xlsx", p.XLSX))
	return p, nil
}

func issueBadge(r *results.DocumentResult, k compliance.Kind) template.HTML {
	if r.Analysis == nil {
		return ""
	}
	f := r.Analysis.Finding(k)
	if f == nil || !f.Found {
		return ""
	}
	class := "badge-warning"
	state := "found"
	for _, applied := range r.Applied {
		if applied == k {
			class, state = "badge-success", "corrected"
			break
		}
	}
	return template.HTML(fmt.Sprintf(`<span class="badge %s">%s: %s</span>`,
		class, template.HTMLEscapeString(k.Label()), state))
}

func statusBadge(s results.Status) template.HTML {
	class := "badge-info"
	switch s {
	case results.StatusNoIssues, results.StatusCorrected:
		class = "badge-success"
	case results.StatusNeedsReview, results.StatusNotFixed, results.StatusAnalyzed:
		class = "badge-warning"
	case results.StatusError:
		class = "badge-danger"
	}
	label := strings.ReplaceAll(string(s), "_", " ")
	return template.HTML(fmt.Sprintf(`<span class="badge %s">%s</span>`, class, template.HTMLEscapeString(label)))
}

// fileURL links a local file. The path is made absolute so the report
// works when opened from its own folder.
func fileURL(path string) template.URL {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return template.URL(u.String())
}
