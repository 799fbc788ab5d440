package blocks

import (
	"sort"
	"strings"

	"github.com/aizoomdoc/docpipeline/pkg/types"
)

const (
	// PreferredPageBonus is added to a block's score when it falls on a
	// page the intent router marked as preferred.
	PreferredPageBonus = 1.5
	// ShortContentPenalty is subtracted from a block's score when its
	// content is shorter than ShortContentThreshold characters.
	ShortContentPenalty  = -0.5
	ShortContentThreshold = 20
	// ScoreThreshold is the minimum score for a block to be added by
	// coverage augmentation.
	ScoreThreshold = 2.0
	// DefaultTopN caps how many additional blocks coverage augmentation adds.
	DefaultTopN = 10
)

// CoverageResult is the outcome of augmenting a selected block set.
type CoverageResult struct {
	SelectedIDs    []string // final selected IDs, in stable order
	AddedByLinks   []string // IDs added purely by link closure
	AddedByScore   []string // IDs added by term scoring
	NewImageBlocks []string // newly included IMAGE block IDs needing a render request
}

// Augment closes selected under bidirectional link references, then scores
// remaining blocks against query terms and adds the top-N above threshold.
// preferredPages, when non-empty, grants PreferredPageBonus to blocks on
// those pages.
func Augment(m *Map, selected []string, query string, preferredPages map[int]bool, topN int) CoverageResult {
	if topN <= 0 {
		topN = DefaultTopN
	}
	selectedSet := map[string]bool{}
	var order []string
	for _, id := range selected {
		if _, ok := m.ByID[id]; ok && !selectedSet[id] {
			selectedSet[id] = true
			order = append(order, id)
		}
	}

	result := CoverageResult{}

	// (a) close under link references in both directions, to a fixed point.
	changed := true
	for changed {
		changed = false
		for _, id := range append([]string{}, order...) {
			blk := m.ByID[id]
			for _, linked := range blk.LinkedBlockIDs {
				if _, ok := m.ByID[linked]; ok && !selectedSet[linked] {
					selectedSet[linked] = true
					order = append(order, linked)
					result.AddedByLinks = append(result.AddedByLinks, linked)
					changed = true
				}
			}
		}
		// reverse direction: any unselected block A that links to a selected B.
		for _, id := range m.Order {
			if selectedSet[id] {
				continue
			}
			blk := m.ByID[id]
			for _, linked := range blk.LinkedBlockIDs {
				if selectedSet[linked] {
					selectedSet[id] = true
					order = append(order, id)
					result.AddedByLinks = append(result.AddedByLinks, id)
					changed = true
					break
				}
			}
		}
	}

	// (b) score remaining blocks against query terms.
	terms := queryTerms(query)
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, id := range m.Order {
		if selectedSet[id] {
			continue
		}
		blk := m.ByID[id]
		score := termScore(blk.ContentRaw, terms)
		if preferredPages[blk.PageNumber] {
			score += PreferredPageBonus
		}
		if len(blk.ContentRaw) < ShortContentThreshold {
			score += ShortContentPenalty
		}
		if score >= ScoreThreshold {
			candidates = append(candidates, scored{id, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	for _, c := range candidates {
		selectedSet[c.id] = true
		order = append(order, c.id)
		result.AddedByScore = append(result.AddedByScore, c.id)
	}

	// (d) newly included IMAGE blocks need a render request synthesised.
	added := map[string]bool{}
	for _, id := range result.AddedByLinks {
		added[id] = true
	}
	for _, id := range result.AddedByScore {
		added[id] = true
	}
	for id := range added {
		if m.ByID[id].Kind == types.BlockKindImage {
			result.NewImageBlocks = append(result.NewImageBlocks, id)
		}
	}

	result.SelectedIDs = order
	return result
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:()[]{}\"'")
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func termScore(content string, terms []string) float64 {
	lower := strings.ToLower(content)
	var score float64
	for _, t := range terms {
		score += float64(strings.Count(lower, t))
	}
	return score
}
