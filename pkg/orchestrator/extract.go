package orchestrator

import (
	"context"
	"fmt"

	"github.com/aizoomdoc/docpipeline/pkg/blocks"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// docExtraction is one document's contribution to the materials request,
// after the flash-tier collector call and the coverage/link-closure pass.
type docExtraction struct {
	DocumentID string
	Blocks     []types.SelectedBlock
	Images     []types.ImageRequest
	ROIs       []types.ROIRequest
	Summary    string
}

// extractDocument runs the per-document flash extraction and the coverage
// augmentation pass for one document. A
// document with no usable block map (fallback-text only) contributes
// nothing here; its fallback text reaches the answerer through
// r.fallbackContext.
func (r *run) extractDocument(ctx context.Context, docID string, intent types.AnalysisIntent) (docExtraction, error) {
	m := r.blockMapFor(docID)
	if m == nil || len(m.Order) == 0 {
		return docExtraction{DocumentID: docID}, nil
	}

	prompt := buildExtractorUserPrompt(r.req.UserMessage, docID, m)
	raw, err := r.o.llm.GenerateStructured(ctx, llmadapter.TierFlash,
		r.o.prompts.Extractor, prompt, nil, r.o.genParams, llmadapter.FlashCollectorSchema())
	if err != nil {
		return docExtraction{}, newPipelineError(KindTransientExternal, fmt.Sprintf("extractor call for document %s", docID), err)
	}

	var collected types.FlashCollectorResponse
	if err := llmadapter.ParseTolerantJSON(raw, &collected); err != nil {
		return docExtraction{}, newPipelineError(KindLLMSchemaViolation, fmt.Sprintf("extractor response for document %s", docID), err)
	}

	selectedIDs := make([]string, 0, len(collected.SelectedBlocks))
	for _, sb := range collected.SelectedBlocks {
		selectedIDs = append(selectedIDs, sb.BlockID)
	}

	coverage := blocks.Augment(m, selectedIDs, r.req.UserMessage, preferredPageSet(intent.PreferredPages), blocks.DefaultTopN)

	side := r.labelFor(docID)
	out := docExtraction{
		DocumentID: docID,
		Images:     collected.RequestedImages,
		ROIs:       collected.RequestedROIs,
		Summary:    collected.MaterialsSummary,
	}
	for _, id := range coverage.SelectedIDs {
		blk := m.ByID[id]
		out.Blocks = append(out.Blocks, types.SelectedBlock{
			BlockID:        blk.ID,
			BlockKind:      blk.Kind,
			PageNumber:     blk.PageNumber,
			ContentRaw:     blk.ContentRaw,
			LinkedBlockIDs: blk.LinkedBlockIDs,
			Side:           side,
		})
	}
	for _, id := range coverage.NewImageBlocks {
		out.Images = append(out.Images, types.ImageRequest{BlockID: id, Reason: "coverage closure"})
	}
	return out, nil
}

func buildExtractorUserPrompt(question, docID string, m *blocks.Map) string {
	prompt := fmt.Sprintf("Question: %s\n\nDocument %s blocks:\n", question, docID)
	for _, id := range m.Order {
		blk := m.ByID[id]
		prompt += fmt.Sprintf("--- %s [%s] page %d ---\n%s\n", blk.ID, blk.Kind, blk.PageNumber, blk.ContentRaw)
	}
	return prompt
}
