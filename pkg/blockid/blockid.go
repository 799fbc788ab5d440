// Package blockid validates the canonical 12-character block identifier
// format shared between the Markdown block parser, the LLM adapter, and the
// evidence renderer.
package blockid

import "regexp"

// Pattern is the canonical block-ID format: XXXX-XXXX-XXX, uppercase
// letters and digits only.
var Pattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{3}$`)

// Valid reports whether id matches the canonical block-ID format. Any
// identifier not matching this pattern is treated as hallucinated by
// callers and silently dropped with a log entry.
func Valid(id string) bool {
	return Pattern.MatchString(id)
}

// Filter returns the subset of ids that are valid, preserving order.
func Filter(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if Valid(id) {
			out = append(out, id)
		}
	}
	return out
}
