package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"note-auditor/internal/logger"
)

func TestRealMain_InvalidConfigClosesLogger(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{not json"), 0644))
	logPath := filepath.Join(dir, "batch.log")

	code := realMain([]string{"-config", cfgPath, "-log", logPath, dir})

	assert.Equal(t, 1, code)
	assert.FileExists(t, logPath)
	assert.Equal(t, logger.Nop(), logger.GetLogger(), "logger should be closed before exit")
}

func TestRealMain_MissingFolderIsUsageError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Chdir(dir)

	code := realMain([]string{
		"-config", filepath.Join(dir, "none.json"),
		"-log", filepath.Join(dir, "batch.log"),
		filepath.Join(dir, "missing"),
	})

	assert.Equal(t, 2, code)
	assert.Equal(t, logger.Nop(), logger.GetLogger())
}

func TestRealMain_BadFlag(t *testing.T) {
	assert.Equal(t, 2, realMain([]string{"-no-such-flag"}))
}
