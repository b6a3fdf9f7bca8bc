// Package results collects per-document outcomes of an audit run and
// persists them as a JSON array.
package results

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"note-auditor/internal/analysis"
	"note-auditor/internal/compliance"
)

// Status is the final state of one document.
type Status string

const (
	// StatusNoIssues indicates analysis found nothing to correct
	StatusNoIssues Status = "no_issues"
	// StatusAnalyzed indicates issues were found but patching was not attempted (dry run or medical note)
	StatusAnalyzed Status = "analyzed"
	// StatusNotFixed indicates issues were found but no correction could be applied
	StatusNotFixed Status = "not_fixed"
	// StatusCorrected indicates a corrected copy was written and verified
	StatusCorrected Status = "corrected"
	// StatusNeedsReview indicates a corrected copy was written but failed verification
	StatusNeedsReview Status = "needs_review"
	// StatusError indicates processing failed
	StatusError Status = "error"
)

// DocumentResult is the outcome for one document.
type DocumentResult struct {
	Filename    string              `json:"filename"`
	Path        string              `json:"path"`
	SourceMD5   string              `json:"source_md5,omitempty"`
	NoteType    compliance.NoteType `json:"note_type"`
	Credential  string              `json:"credential,omitempty"`
	Status      Status              `json:"status"`
	ProcessedAt time.Time           `json:"processed_at"`

	Analysis *compliance.Analysis `json:"analysis,omitempty"`
	MDM      *analysis.MDMResult  `json:"mdm,omitempty"`

	CorrectionsMade    bool                       `json:"corrections_made"`
	OutputPath         string                     `json:"output_path,omitempty"`
	Applied            []compliance.Kind          `json:"applied,omitempty"`
	Skipped            map[compliance.Kind]string `json:"skipped,omitempty"`
	VerificationIssues []string                   `json:"verification_issues,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorStage string `json:"error_stage,omitempty"`
}

// HasIssues reports whether analysis flagged at least one kind.
func (r *DocumentResult) HasIssues() bool {
	return r.Analysis != nil && r.Analysis.AnyFound()
}

// Summary counts documents for the report header.
type Summary struct {
	Total       int `json:"total"`
	Therapy     int `json:"therapy"`
	Medical     int `json:"medical"`
	WithIssues  int `json:"with_issues"`
	Corrected   int `json:"corrected"`
	NeedsReview int `json:"needs_review"`
	Errors      int `json:"errors"`
}

// ResultManager accumulates results for one run. It is safe for concurrent
// use.
type ResultManager struct {
	baseDir string
	mu      sync.Mutex
	results []*DocumentResult
}

// NewResultManager creates a manager writing into baseDir, which is created
// if missing.
func NewResultManager(baseDir string) (*ResultManager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &ResultManager{baseDir: baseDir}, nil
}

// Add records a result.
func (m *ResultManager) Add(r *DocumentResult) {
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now()
	}
	m.mu.Lock()
	m.results = append(m.results, r)
	m.mu.Unlock()
}

// Results returns the recorded results ordered by filename.
func (m *ResultManager) Results() []*DocumentResult {
	m.mu.Lock()
	out := append([]*DocumentResult(nil), m.results...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// Summary counts the recorded results.
func (m *ResultManager) Summary() Summary {
	return Summarize(m.Results())
}

// Summarize counts results for the report header.
func Summarize(results []*DocumentResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.NoteType {
		case compliance.NoteTherapy:
			s.Therapy++
		case compliance.NoteMedical:
			s.Medical++
		}
		if r.HasIssues() {
			s.WithIssues++
		}
		switch r.Status {
		case StatusCorrected:
			s.Corrected++
		case StatusNeedsReview:
			s.NeedsReview++
		case StatusError:
			s.Errors++
		}
	}
	return s
}

// SaveJSON writes the results array to name inside the base directory and
// returns the full path.
func (m *ResultManager) SaveJSON(name string) (string, error) {
	data, err := json.MarshalIndent(m.Results(), "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.baseDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CalculateFileMD5 calculates the MD5 hash of a file
func CalculateFileMD5(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
