package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"note-auditor/internal/compliance"
)

func TestComputeHashConsistency(t *testing.T) {
	cache := NewCache("")

	testCases := []struct {
		name string
		text string
	}{
		{"empty string", ""},
		{"simple text", "Session start: 2:00 pm"},
		{"unicode", "Signed by: José Núñez, LCSW"},
		{"whitespace", "   \t\n\r   "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h1 := cache.ComputeHash("gpt-4o", tc.text)
			h2 := cache.ComputeHash("gpt-4o", tc.text)
			if h1 != h2 {
				t.Errorf("ComputeHash not consistent for %q: got %s, %s", tc.text, h1, h2)
			}
			if len(h1) != 64 {
				t.Errorf("Expected hash length 64, got %d", len(h1))
			}
		})
	}
}

func TestComputeHashSeparatesModels(t *testing.T) {
	cache := NewCache("")
	assert.NotEqual(t, cache.ComputeHash("gpt-4o", "text"), cache.ComputeHash("gpt-4o-mini", "text"))
	assert.NotEqual(t, cache.ComputeHash("ab", "c"), cache.ComputeHash("a", "bc"))
}

func TestCacheSetGet(t *testing.T) {
	cache := NewCache("")
	a := compliance.NewAnalysis("note.pdf")
	a.CPT.Found = true
	a.CPT.CorrectCode = "90837"

	_, ok := cache.Get("m", "text")
	assert.False(t, ok)

	cache.Set("m", "text", "note.pdf", a)
	got, ok := cache.Get("m", "text")
	require.True(t, ok)
	assert.Equal(t, "90837", got.CPT.CorrectCode)
	assert.Equal(t, 1, cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestCacheSkipsFailedParses(t *testing.T) {
	cache := NewCache("")
	a := compliance.NewAnalysis("bad.pdf")
	a.ParseStatus = compliance.ParseFailed

	cache.Set("m", "text", "bad.pdf", a)
	assert.Equal(t, 0, cache.Size())
}

func TestCacheSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis_cache.json")
	cache := NewCache(path)
	a := compliance.NewAnalysis("note.pdf")
	a.Goals.Found = true
	a.Goals.GoalsCount = 1
	cache.Set("m", "text", "note.pdf", a)
	require.NoError(t, cache.Save())

	loaded := NewCache(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 1, loaded.Size())
	got, ok := loaded.Get("m", "text")
	require.True(t, ok)
	assert.True(t, got.Goals.Found)
	assert.Equal(t, 1, got.Goals.GoalsCount)
}

func TestCacheLoadMissingFile(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, cache.Load())
	assert.Equal(t, 0, cache.Size())
}

func TestCacheLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	err := NewCache(path).Load()
	assert.Error(t, err)
}

func TestCacheLoadOtherVersionStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"0","entries":[{"hash":"x"}]}`), 0644))

	cache := NewCache(path)
	require.NoError(t, cache.Load())
	assert.Equal(t, 0, cache.Size())
}

func TestAnalyzerUsesCache(t *testing.T) {
	fake := &fakeChatModel{replies: []string{validResponse}}
	a := NewAnalyzer(testConfig(), fake)
	a.SetCache(NewCache(""))

	first, err := a.Analyze(context.Background(), "note text", "note.pdf")
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), "note text", "copy.pdf")
	require.NoError(t, err)

	assert.Len(t, fake.calls, 1, "second analysis should be served from cache")
	assert.Equal(t, first.CPT.CorrectCode, second.CPT.CorrectCode)
	assert.Equal(t, "copy.pdf", second.Filename)
}
