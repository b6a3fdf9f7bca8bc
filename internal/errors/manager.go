// Package errors keeps the failure ledger of audit runs: one record per
// document that could not be processed, persisted as errors.json.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"note-auditor/internal/types"
)

// LedgerFileName is the ledger's file name inside its directory.
const LedgerFileName = "errors.json"

// ErrorStage names the pipeline step a failure happened in.
type ErrorStage string

const (
	StageExtract  ErrorStage = "extract"  // text extraction
	StageAnalysis ErrorStage = "analysis" // analysis request
	StageParse    ErrorStage = "parse"    // analysis response unusable
	StagePatch    ErrorStage = "patch"    // locate, redact, write or save
	StageVerify   ErrorStage = "verify"   // output failed verification
	StageSort     ErrorStage = "sort"     // moving files into folders
)

// ErrorRecord is one failed document.
type ErrorRecord struct {
	ID         string          `json:"id"`       // file name
	Path       string          `json:"path"`     // source path
	RunID      string          `json:"run_id"`   // run that recorded the failure
	Stage      ErrorStage      `json:"stage"`    // where it failed
	Code       types.ErrorCode `json:"code"`     // application error code
	ErrorMsg   string          `json:"error_msg"`
	Timestamp  time.Time       `json:"timestamp"`
	CanRetry   bool            `json:"can_retry"`
	RetryCount int             `json:"retry_count"`
	LastRetry  time.Time       `json:"last_retry"`
}

// ErrorManager owns the ledger file. It is safe for concurrent use.
type ErrorManager struct {
	baseDir string
	mu      sync.RWMutex
	errors  map[string]*ErrorRecord // key: ID
}

// NewErrorManager opens the ledger in baseDir, loading existing records.
func NewErrorManager(baseDir string) (*ErrorManager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("errors directory is required")
	}

	// Ensure the directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create errors directory: %w", err)
	}

	em := &ErrorManager{
		baseDir: baseDir,
		errors:  make(map[string]*ErrorRecord),
	}

	// Load existing records
	if err := em.load(); err != nil {
		return nil, err
	}

	return em, nil
}

// Path returns the ledger file path.
func (em *ErrorManager) Path() string {
	return filepath.Join(em.baseDir, LedgerFileName)
}

// RecordError records a failure for id, keeping the retry history of an
// earlier record for the same document.
func (em *ErrorManager) RecordError(id, path, runID string, stage ErrorStage, err error, canRetry bool) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	record := &ErrorRecord{
		ID:        id,
		Path:      path,
		RunID:     runID,
		Stage:     stage,
		Code:      types.CodeOf(err),
		ErrorMsg:  err.Error(),
		Timestamp: time.Now(),
		CanRetry:  canRetry,
	}

	// Keep the retry count of an existing record
	if existing, ok := em.errors[id]; ok {
		record.RetryCount = existing.RetryCount
		record.LastRetry = existing.LastRetry
	}

	em.errors[id] = record

	return em.save()
}

// IncrementRetry bumps the retry counter of id.
func (em *ErrorManager) IncrementRetry(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if record, ok := em.errors[id]; ok {
		record.RetryCount++
		record.LastRetry = time.Now()
		return em.save()
	}

	return fmt.Errorf("error record not found: %s", id)
}

// RemoveError drops the record after the document succeeds.
func (em *ErrorManager) RemoveError(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if _, ok := em.errors[id]; !ok {
		return nil
	}
	delete(em.errors, id)
	return em.save()
}

// ListErrors returns copies of all records, oldest first.
func (em *ErrorManager) ListErrors() []*ErrorRecord {
	em.mu.RLock()
	defer em.mu.RUnlock()

	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		// Copy to avoid concurrent modification
		recordCopy := *record
		records = append(records, &recordCopy)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].ID < records[j].ID
	})

	return records
}

// GetError returns a copy of the record for id.
func (em *ErrorManager) GetError(id string) (*ErrorRecord, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	record, ok := em.errors[id]
	if !ok {
		return nil, false
	}

	// Return a copy
	recordCopy := *record
	return &recordCopy, true
}

// load reads the ledger file
func (em *ErrorManager) load() error {
	data, err := os.ReadFile(em.Path())
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file is normal
			return nil
		}
		return fmt.Errorf("failed to read errors file: %w", err)
	}

	var records []*ErrorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal errors: %w", err)
	}

	for _, record := range records {
		em.errors[record.ID] = record
	}

	return nil
}

// save writes the ledger file sorted by ID
func (em *ErrorManager) save() error {
	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	if err := os.WriteFile(em.Path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}

	return nil
}

// GetStageDisplayName returns the stage label used in reports.
func GetStageDisplayName(stage ErrorStage) string {
	switch stage {
	case StageExtract:
		return "Text extraction"
	case StageAnalysis:
		return "Analysis"
	case StageParse:
		return "Response parsing"
	case StagePatch:
		return "Patching"
	case StageVerify:
		return "Verification"
	case StageSort:
		return "Sorting"
	default:
		return string(stage)
	}
}
