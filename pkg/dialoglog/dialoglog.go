// Package dialoglog implements the append-only per-chat dialog trace used
// to audit every LLM exchange a pipeline run makes.
package dialoglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTruncateChars bounds a dialog-log entry body.
const DefaultTruncateChars = 4000

// Logger appends entries to {logDir}/llm_dialog_{chatID}.log. The file is
// opened, written, and closed per entry, which keeps it append-only and
// safe for multiple concurrent writers on the same chat; ordering across
// writers is best-effort.
type Logger struct {
	path          string
	truncateChars int
}

// New constructs a Logger for chatID under logDir.
func New(logDir, chatID string, truncateChars int) *Logger {
	if truncateChars <= 0 {
		truncateChars = DefaultTruncateChars
	}
	return &Logger{
		path:          filepath.Join(logDir, fmt.Sprintf("llm_dialog_%s.log", chatID)),
		truncateChars: truncateChars,
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05.000")
}

// LogSection appends a titled section with a JSON-pretty (for maps/slices)
// or truncated-string payload.
func (l *Logger) LogSection(title string, content any) error {
	formatted := l.format(content)
	return l.appendRaw(fmt.Sprintf("[%s] === %s ===\n%s\n", timestamp(), title, formatted))
}

// LogLine appends a single bare line, timestamped.
func (l *Logger) LogLine(text string) error {
	return l.appendRaw(fmt.Sprintf("[%s] %s\n", timestamp(), text))
}

// LogRequest records an outgoing LLM call under a "<PHASE> REQUEST"
// section title.
func (l *Logger) LogRequest(phase, model, systemPrompt, userPrompt string, files []string) error {
	payload := map[string]any{
		"model":         model,
		"system_prompt": systemPrompt,
		"user_prompt":   userPrompt,
		"files":         files,
	}
	return l.LogSection(fmt.Sprintf("%s REQUEST", phase), payload)
}

// LogResponse records an LLM response under a "<PHASE> RESPONSE" section
// title.
func (l *Logger) LogResponse(phase, responseText string) error {
	return l.LogSection(fmt.Sprintf("%s RESPONSE", phase), responseText)
}

// MissingCrop logs an artifact_missing event for a crop that could not be
// located.
func (l *Logger) MissingCrop(blockID, reason string) error {
	return l.LogSection("MISSING_CROP", map[string]any{"block_id": blockID, "reason": reason})
}

// NonPDFCrop logs an artifact_missing event for a crop whose bytes did not
// start with the %PDF magic.
func (l *Logger) NonPDFCrop(blockID string) error {
	return l.LogSection("NON_PDF_CROP", map[string]any{"block_id": blockID})
}

// InvalidBlockID logs a dropped hallucinated block ID.
func (l *Logger) InvalidBlockID(rawID string) error {
	return l.LogSection("INVALID_BLOCK_ID", map[string]any{"block_id": rawID})
}

func (l *Logger) format(content any) string {
	switch v := content.(type) {
	case string:
		return l.truncate(v)
	default:
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return l.truncate(fmt.Sprintf("%v", v))
		}
		return l.truncate(string(pretty))
	}
}

func (l *Logger) truncate(s string) string {
	if len(s) <= l.truncateChars {
		return s
	}
	return fmt.Sprintf("<truncated %d chars>\n%s...\n", len(s), s[:l.truncateChars])
}

func (l *Logger) appendRaw(s string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("dialoglog: mkdir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("dialoglog: open: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}
