package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"note-auditor/internal/compliance"
	"note-auditor/internal/types"
)

const cacheVersion = "1"

// CacheEntry is one cached analysis.
type CacheEntry struct {
	Hash      string              `json:"hash"`
	Filename  string              `json:"filename"`
	Model     string              `json:"model"`
	Analysis  compliance.Analysis `json:"analysis"`
	CreatedAt time.Time           `json:"created_at"`
}

type cacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// Cache keeps analyses of notes that were already reviewed, so a re-run over
// the same folder does not ask the model again. Entries are keyed by the
// model name and the extracted note text.
type Cache struct {
	path    string
	entries map[string]CacheEntry
	mu      sync.RWMutex
}

// NewCache creates an empty cache backed by path.
func NewCache(path string) *Cache {
	return &Cache{path: path, entries: make(map[string]CacheEntry)}
}

// ComputeHash returns the key for text analysed by model.
func (c *Cache) ComputeHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached analysis of text, if any.
func (c *Cache) Get(model, text string) (compliance.Analysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[c.ComputeHash(model, text)]
	if !ok {
		return compliance.Analysis{}, false
	}
	return e.Analysis, true
}

// Set stores an analysis. Failed parses are never cached.
func (c *Cache) Set(model, text, filename string, a compliance.Analysis) {
	if a.ParseStatus == compliance.ParseFailed {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := c.ComputeHash(model, text)
	c.entries[hash] = CacheEntry{
		Hash:      hash,
		Filename:  filename,
		Model:     model,
		Analysis:  a,
		CreatedAt: time.Now(),
	}
}

// Load reads the cache file. A missing file leaves the cache empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to read analysis cache", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return types.NewAppError(types.ErrParse, "failed to parse analysis cache", err)
	}
	c.entries = make(map[string]CacheEntry, len(f.Entries))
	if f.Version != cacheVersion {
		return nil
	}
	for _, e := range f.Entries {
		c.entries[e.Hash] = e
	}
	return nil
}

// Save writes the cache file.
func (c *Cache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		return nil
	}

	f := cacheFile{Version: cacheVersion, Entries: make([]CacheEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		f.Entries = append(f.Entries, e)
	}
	sort.Slice(f.Entries, func(i, j int) bool { return f.Entries[i].Hash < f.Entries[j].Hash })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal analysis cache", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write analysis cache", err)
	}
	return nil
}

// Size returns the number of cached analyses.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}
