// Package blocks parses the Markdown block stream emitted by the
// document-ingestion pipeline into typed blocks, and implements the
// coverage/augmentation pass over an LLM-selected block set.
package blocks

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/aizoomdoc/docpipeline/pkg/blockid"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

var (
	pageHeadingRe = regexp.MustCompile(`^##\s+.*?(\d+)\s*$`)
	blockHeaderRe = regexp.MustCompile(`^###\s+BLOCK\s+\[(TEXT|IMAGE|TABLE)\]:\s*(\S+)\s*$`)
	linkedIDRe    = regexp.MustCompile(`→([A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{3})`)
)

// Block is one parsed unit of the Markdown block stream.
type Block struct {
	ID             string
	Kind           types.BlockKind
	PageNumber     int
	ContentRaw     string
	LinkedBlockIDs []string
	CropURL        string // populated later from the blocks-index / HTML fallback
}

// Map is a document's blocks keyed by block ID, preserving discovery order
// via Order.
type Map struct {
	ByID  map[string]*Block
	Order []string
}

// NewMap returns an empty block map.
func NewMap() *Map {
	return &Map{ByID: map[string]*Block{}}
}

// Add inserts b, overwriting any prior block with the same ID.
func (m *Map) Add(b *Block) {
	if _, exists := m.ByID[b.ID]; !exists {
		m.Order = append(m.Order, b.ID)
	}
	m.ByID[b.ID] = b
}

// Parse walks the Markdown block stream and returns its block map. Page
// headings (`## <page heading N>`) set the current page for subsequent
// block headers (`### BLOCK [KIND]: <block_id>`); content lines accumulate
// until the next header. Malformed block IDs (not matching the canonical
// pattern) are dropped with the caller expected to log them via onDropped.
func Parse(markdown string, onDropped func(rawID string)) *Map {
	m := NewMap()
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	page := 1
	var current *Block
	var contentLines []string

	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(contentLines, "\n"))
		current.ContentRaw = content
		current.LinkedBlockIDs = extractLinkedIDs(content)
		m.Add(current)
		current = nil
		contentLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if pm := pageHeadingRe.FindStringSubmatch(line); pm != nil {
			flush()
			if n, err := strconv.Atoi(pm[1]); err == nil {
				page = n
			}
			continue
		}

		if hm := blockHeaderRe.FindStringSubmatch(line); hm != nil {
			flush()
			kind, id := types.BlockKind(hm[1]), hm[2]
			if !blockid.Valid(id) {
				if onDropped != nil {
					onDropped(id)
				}
				continue
			}
			current = &Block{ID: id, Kind: kind, PageNumber: page}
			continue
		}

		if current != nil {
			contentLines = append(contentLines, line)
		}
	}
	flush()
	return m
}

func extractLinkedIDs(content string) []string {
	matches := linkedIDRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, mm := range matches {
		id := mm[1]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
