package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"note-auditor/internal/compliance"
)

func TestNewResultManager(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "reports")

	manager, err := NewResultManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create ResultManager: %v", err)
	}
	if _, err := os.Stat(tempDir); err != nil {
		t.Errorf("Expected base dir to be created: %v", err)
	}
	path, err := manager.SaveJSON("run.json")
	if err != nil {
		t.Fatalf("Failed to save results: %v", err)
	}
	if filepath.Dir(path) != tempDir {
		t.Errorf("Expected results in %s, got %s", tempDir, path)
	}

	if _, err := NewResultManager(""); err == nil {
		t.Error("Expected error for empty base dir")
	}
}

func sampleResults() []*DocumentResult {
	flagged := compliance.NewAnalysis("b.pdf")
	flagged.CPT.Found = true
	clean := compliance.NewAnalysis("a.pdf")

	return []*DocumentResult{
		{Filename: "b.pdf", NoteType: compliance.NoteTherapy, Status: StatusCorrected, Analysis: &flagged, CorrectionsMade: true},
		{Filename: "a.pdf", NoteType: compliance.NoteTherapy, Status: StatusNoIssues, Analysis: &clean},
		{Filename: "d.pdf", NoteType: compliance.NoteTherapy, Status: StatusNeedsReview, Analysis: &flagged, CorrectionsMade: true},
		{Filename: "c.pdf", NoteType: compliance.NoteMedical, Status: StatusAnalyzed},
		{Filename: "e.pdf", NoteType: compliance.NoteUnknown, Status: StatusError, Error: "cannot open PDF file"},
	}
}

func TestSummary(t *testing.T) {
	manager, err := NewResultManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range sampleResults() {
		manager.Add(r)
	}

	got := manager.Summary()
	want := Summary{Total: 5, Therapy: 3, Medical: 1, WithIssues: 2, Corrected: 1, NeedsReview: 1, Errors: 1}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestResultsSortedAndStamped(t *testing.T) {
	manager, err := NewResultManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range sampleResults() {
		manager.Add(r)
	}

	list := manager.Results()
	for i := 1; i < len(list); i++ {
		if list[i-1].Filename > list[i].Filename {
			t.Fatalf("Expected results sorted by filename, got %s before %s", list[i-1].Filename, list[i].Filename)
		}
	}
	for _, r := range list {
		if r.ProcessedAt.IsZero() {
			t.Errorf("Expected %s to have a processed timestamp", r.Filename)
		}
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	manager, err := NewResultManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range sampleResults() {
		manager.Add(r)
	}

	path, err := manager.SaveJSON("run.json")
	if err != nil {
		t.Fatalf("Failed to save results: %v", err)
	}

	// The file is a plain array carrying corrections_made on every entry.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Expected a JSON array: %v", err)
	}
	if len(raw) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(raw))
	}
	for _, entry := range raw {
		if _, ok := entry["corrections_made"]; !ok {
			t.Errorf("Expected corrections_made in %v", entry["filename"])
		}
	}

	var loaded []*DocumentResult
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to load results: %v", err)
	}
	if loaded[1].Filename != "b.pdf" || !loaded[1].CorrectionsMade {
		t.Errorf("Unexpected second entry %+v", loaded[1])
	}
	if !loaded[1].Analysis.CPT.Found {
		t.Error("Expected analysis to round-trip")
	}
}

func TestCalculateFileMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.pdf")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sum, err := CalculateFileMD5(path)
	if err != nil {
		t.Fatalf("CalculateFileMD5 failed: %v", err)
	}
	if sum != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("Expected md5 of hello, got %s", sum)
	}

	if _, err := CalculateFileMD5(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("Expected error for missing file")
	}
}
