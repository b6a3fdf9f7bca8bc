package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"note-auditor/internal/logger"
)

func TestRealMain_ClosesLoggerOnError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{not json"), 0644))
	logPath := filepath.Join(dir, "fix.log")

	code := realMain([]string{"-config", cfgPath, "-log", logPath, filepath.Join(dir, "note.pdf")})

	assert.Equal(t, 1, code)
	assert.FileExists(t, logPath)
	assert.Equal(t, logger.Nop(), logger.GetLogger(), "logger should be closed before exit")
}

func TestRealMain_Usage(t *testing.T) {
	assert.Equal(t, 2, realMain(nil))
	assert.Equal(t, 2, realMain([]string{"a.pdf", "b.pdf"}))
}
