package orchestrator

import (
	"context"
	"fmt"

	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// extractFacts is a bounded-input flash-tier pass over the selected
// TEXT/TABLE content that pulls out generic key/value
// facts and tabular data ahead of the answerer call. Never fatal; a
// failure here just means the answerer works from raw block content alone.
func (r *run) extractFacts(ctx context.Context, selected []types.SelectedBlock) *types.DocumentFacts {
	input := buildFactsUserPrompt(selected, factsMaxInputChars)
	if input == "" {
		return nil
	}

	raw, err := r.o.llm.GenerateStructured(ctx, llmadapter.TierFlash,
		r.o.prompts.FactsExtractor, input, nil, r.o.genParams, llmadapter.DocumentFactsSchema())
	if err != nil {
		r.o.logger.Warn("orchestrator: facts extraction failed", "request_id", r.req.RequestID, "error", err)
		return nil
	}

	var facts types.DocumentFacts
	if err := llmadapter.ParseTolerantJSON(raw, &facts); err != nil {
		r.o.logger.Warn("orchestrator: facts response did not parse", "request_id", r.req.RequestID, "error", err)
		return nil
	}
	return &facts
}

func buildFactsUserPrompt(selected []types.SelectedBlock, maxChars int) string {
	var out string
	for _, blk := range selected {
		if blk.BlockKind == types.BlockKindImage {
			continue
		}
		out += fmt.Sprintf("--- %s page %d ---\n%s\n", blk.BlockID, blk.PageNumber, blk.ContentRaw)
	}
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}
