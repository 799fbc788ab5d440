package orchestrator

import "strings"

// plainTextFallback builds a best-effort context string for a document whose
// Markdown stream failed to parse into any usable block (or was never
// produced). Markdown wins when present; otherwise the HTML mirror's tags
// are stripped down to bare text. A document this degraded only ever
// reaches the answerer as background context, never as a citable block.
func plainTextFallback(markdown, htmlText []byte) string {
	if len(markdown) > 0 {
		return string(markdown)
	}
	if len(htmlText) == 0 {
		return ""
	}
	var b strings.Builder
	inTag := false
	for _, r := range string(htmlText) {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
