package llmadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaViolation is returned when raw text cannot be parsed as JSON
// even after brace-slice recovery, or fails to unmarshal into the target
// shape.
var ErrSchemaViolation = errors.New("llmadapter: schema violation")

// ParseTolerantJSON decodes raw into v, first attempting a strict parse and
// then, on failure, slicing between the first '{' and the last '}' and
// retrying. Returns ErrSchemaViolation if both attempts fail.
func ParseTolerantJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object found in response", ErrSchemaViolation)
	}
	sliced := raw[start : end+1]
	if err := json.Unmarshal([]byte(sliced), v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}
