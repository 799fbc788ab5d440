package dialoglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSection_WritesFormattedEntry(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "chat-1", 0)

	require.NoError(t, l.LogSection("EXTRACTOR REQUEST", map[string]any{"model": "flash"}))

	data, err := os.ReadFile(filepath.Join(dir, "llm_dialog_chat-1.log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "=== EXTRACTOR REQUEST ===")
	assert.Contains(t, content, `"model": "flash"`)
}

func TestLogLine_AppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "chat-2", 0)

	require.NoError(t, l.LogLine("first"))
	require.NoError(t, l.LogLine("second"))

	data, err := os.ReadFile(filepath.Join(dir, "llm_dialog_chat-2.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
}

func TestTruncate_LongStringGetsTruncatedMarker(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "chat-3", 10)

	require.NoError(t, l.LogSection("TITLE", "this string is definitely longer than ten characters"))

	data, err := os.ReadFile(filepath.Join(dir, "llm_dialog_chat-3.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<truncated")
}

func TestMissingCropAndInvalidBlockID_SectionNames(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "chat-4", 0)

	require.NoError(t, l.MissingCrop("AAAA-BBBB-001", "not found in blocks index"))
	require.NoError(t, l.NonPDFCrop("AAAA-BBBB-002"))
	require.NoError(t, l.InvalidBlockID("bad-id"))

	data, err := os.ReadFile(filepath.Join(dir, "llm_dialog_chat-4.log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "=== MISSING_CROP ===")
	assert.Contains(t, content, "=== NON_PDF_CROP ===")
	assert.Contains(t, content, "=== INVALID_BLOCK_ID ===")
}
