package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModuleLogger_AddsModuleFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json", "docchat-test")

	NewModuleLogger("ingest", "service").Debug("chunks stored", "count", 3)

	out := buf.String()
	assert.Contains(t, out, `"module":"ingest"`)
	assert.Contains(t, out, `"component":"service"`)
	assert.Contains(t, out, `"service":"docchat-test"`)
	assert.Contains(t, out, `"count":3`)
}

func TestInit_LevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "text", "docchat-test")

	GetLogger().Info("hidden")
	GetLogger().Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestEventLog_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.log")

	ev, err := OpenEventLog(path)
	require.NoError(t, err)
	ev.Record("alice", "upload_pdf", "filename=report.pdf, is_public=0")
	require.NoError(t, ev.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "user=alice")
	assert.Contains(t, string(raw), "event=upload_pdf")
	assert.Contains(t, string(raw), "report.pdf")
}

func TestEventLog_NilIsNoop(t *testing.T) {
	var ev *EventLog
	assert.NotPanics(t, func() { ev.Record("u", "e", "d") })
	assert.NoError(t, ev.Close())
}
