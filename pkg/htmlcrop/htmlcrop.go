// Package htmlcrop recovers a block_id -> crop_url fallback index from the
// HTML OCR mirror of a document, for use when the blocks-index manifest
// lacks a crop URL for an IMAGE block.
package htmlcrop

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blockIDInContentRe = regexp.MustCompile(`(?i)BLOCK:\s+([\w-]+)`)

// ExtractImageMap parses htmlText and returns the block_id -> crop_url map
// recoverable from it. Non-image blocks and blocks with no recoverable crop
// URL are omitted.
func ExtractImageMap(htmlText string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(htmlText) == "" {
		return out
	}
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return out
	}

	for _, blockDiv := range findByClass(doc, "block") {
		headerDiv := firstByClass(blockDiv, "block-header")
		contentDiv := firstByClass(blockDiv, "block-content")
		if headerDiv == nil || contentDiv == nil {
			continue
		}

		headerText := textContent(headerDiv)
		blockType, blockID := parseHeader(headerText)

		contentText := textContent(contentDiv)
		if m := blockIDInContentRe.FindStringSubmatch(contentText); m != nil {
			blockID = m[1]
		}

		if blockType != "image" || blockID == "" {
			continue
		}

		if cropURL := extractCropURL(contentDiv); cropURL != "" {
			out[blockID] = cropURL
		}
	}
	return out
}

var (
	headerPatternOld = regexp.MustCompile(`(?i)Блок\s+#(\d+)\s+\(стр\.\s+(\d+)\)\s+\|\s+Тип:\s+(\w+)\s+\|\s+ID:\s+([\w-]+)`)
	headerPatternNew = regexp.MustCompile(`(?i)Блок\s+#(\d+)\s+\(стр\.\s+(\d+)\)\s+\|\s+Тип:\s+(\w+)`)
)

func parseHeader(headerText string) (blockType, blockID string) {
	if m := headerPatternOld.FindStringSubmatch(headerText); m != nil {
		return strings.ToLower(m[3]), m[4]
	}
	if m := headerPatternNew.FindStringSubmatch(headerText); m != nil {
		return strings.ToLower(m[3]), ""
	}
	return "", ""
}

func extractCropURL(contentDiv *html.Node) string {
	if pre := firstByTag(contentDiv, "pre"); pre != nil {
		jsonText := html.UnescapeString(textContent(pre))
		jsonText = stripCodeFences(jsonText)
		if cropURL := findCropURLInJSON(jsonText); cropURL != "" {
			return cropURL
		}
	}

	var found string
	walk(contentDiv, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" && looksLikeMediaURL(href) {
				found = href
				return false
			}
		}
		return true
	})
	return found
}

var codeFenceRe = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$|^```\\s*$")

func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, l := range lines {
		if codeFenceRe.MatchString(strings.TrimSpace(l)) {
			continue
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func findCropURLInJSON(text string) string {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		data = parseMultipleJSON(text)
	}
	return findCropURLRecursive(data)
}

// parseMultipleJSON recovers a sequence of concatenated top-level JSON
// values from text. A decode failure does not end the scan: the parser
// seeks forward to the next '{' and resumes there, so objects after
// malformed or garbage-separated content are still recovered. When
// exactly one value is found it is returned bare; otherwise a slice.
func parseMultipleJSON(text string) any {
	var results []any
	rest := text
	for {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if rest == "" {
			break
		}
		dec := json.NewDecoder(strings.NewReader(rest))
		var v any
		if err := dec.Decode(&v); err != nil {
			next := strings.IndexByte(rest[1:], '{')
			if next < 0 {
				break
			}
			rest = rest[1+next:]
			continue
		}
		results = append(results, v)
		rest = rest[dec.InputOffset():]
	}
	if len(results) == 1 {
		return results[0]
	}
	return results
}

var cropURLKeys = []string{"crop_url", "cropUrl", "crop_url_pdf", "cropUrlPdf"}

func findCropURLRecursive(data any) string {
	switch v := data.(type) {
	case map[string]any:
		for _, key := range cropURLKeys {
			if s, ok := v[key].(string); ok && looksLikeMediaURL(s) {
				return s
			}
		}
		for _, val := range v {
			if found := findCropURLRecursive(val); found != "" {
				return found
			}
		}
	case []any:
		for _, item := range v {
			if found := findCropURLRecursive(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func looksLikeMediaURL(url string) bool {
	lower := strings.ToLower(url)
	for _, suf := range []string{".pdf", ".png", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}
