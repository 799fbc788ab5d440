package orchestrator

import (
	"context"

	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/materials"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// runSimple implements the simple profile: a single flash-tier answerer pass
// over the raw concatenated block content of every referenced document, with
// only the quality-gate follow-up loop available for refinement. No
// extraction, coverage, or facts stage runs; this profile exists for
// short questions where the extra LLM round-trips would cost more than they
// are worth.
func (r *run) runSimple(ctx context.Context) (types.AnswerResponse, error) {
	if err := r.bus.PhaseStarted(ctx, "classifying"); err != nil {
		return types.AnswerResponse{}, err
	}
	intent := r.classifyIntent(ctx)

	if err := r.bus.PhaseStarted(ctx, "answering"); err != nil {
		return types.AnswerResponse{}, err
	}

	contextText := r.combinedContext(factsMaxInputChars + intentSnippetMaxChars*10)
	materialsJSON := types.MaterialsJSON{SourceDocuments: r.req.allDocumentIDs()}

	answer, mj, err := r.runFollowupLoop(ctx, llmadapter.TierFlash, materialsJSON, contextText, intent)
	if err != nil {
		return types.AnswerResponse{}, err
	}
	r.materialsJSON = mj
	return answer, nil
}

// runComplex implements the full staged pipeline: intent classification,
// per-document flash extraction with coverage augmentation, bounded facts
// extraction, materials assembly, and a pro-tier streaming answerer behind
// the quality-gate follow-up loop.
func (r *run) runComplex(ctx context.Context) (types.AnswerResponse, error) {
	if err := r.bus.PhaseStarted(ctx, "classifying"); err != nil {
		return types.AnswerResponse{}, err
	}
	intent := r.classifyIntent(ctx)

	if err := r.bus.PhaseStarted(ctx, "extracting"); err != nil {
		return types.AnswerResponse{}, err
	}
	extractions, err := r.extractAllDocuments(ctx, r.req.DocumentIDs, intent)
	if err != nil {
		return types.AnswerResponse{}, err
	}

	if err := r.bus.PhaseStarted(ctx, "facts"); err != nil {
		return types.AnswerResponse{}, err
	}
	allBlocks := collectSelectedBlocks(extractions)
	facts := r.extractFacts(ctx, allBlocks)

	if err := r.bus.PhaseStarted(ctx, "materials"); err != nil {
		return types.AnswerResponse{}, err
	}
	materialsJSON := types.MaterialsJSON{
		Blocks:          allBlocks,
		SourceDocuments: r.req.DocumentIDs,
		ExtractedFacts:  facts,
	}
	materialsJSON = r.assembleMaterials(ctx, extractions, materialsJSON)

	if err := r.bus.PhaseStarted(ctx, "answering"); err != nil {
		return types.AnswerResponse{}, err
	}
	answer, mj, err := r.runFollowupLoop(ctx, llmadapter.TierPro, materialsJSON, r.fallbackContext, intent)
	if err != nil {
		return types.AnswerResponse{}, err
	}
	r.materialsJSON = mj
	return answer, nil
}

// runCompare implements the compare profile: the same extraction/coverage
// pass run independently over each side's document set (tagged DOC_A/DOC_B
// via docSide), pooled into one materials object, answered pro-tier with
// an explicit diff instruction.
func (r *run) runCompare(ctx context.Context) (types.AnswerResponse, error) {
	if err := r.bus.PhaseStarted(ctx, "classifying"); err != nil {
		return types.AnswerResponse{}, err
	}
	intent := r.classifyIntent(ctx)

	if err := r.bus.PhaseStarted(ctx, "extracting"); err != nil {
		return types.AnswerResponse{}, err
	}
	allDocIDs := append(append([]string{}, r.req.CompareA...), r.req.CompareB...)
	extractions, err := r.extractAllDocuments(ctx, allDocIDs, intent)
	if err != nil {
		return types.AnswerResponse{}, err
	}

	allBlocks := collectSelectedBlocks(extractions)
	facts := r.extractFacts(ctx, allBlocks)

	if err := r.bus.PhaseStarted(ctx, "materials"); err != nil {
		return types.AnswerResponse{}, err
	}
	materialsJSON := types.MaterialsJSON{
		Blocks:          allBlocks,
		SourceDocuments: allDocIDs,
		ExtractedFacts:  facts,
	}
	materialsJSON = r.assembleMaterials(ctx, extractions, materialsJSON)

	if err := r.bus.PhaseStarted(ctx, "answering"); err != nil {
		return types.AnswerResponse{}, err
	}
	answer, mj, err := r.runFollowupLoop(ctx, llmadapter.TierPro, materialsJSON, r.fallbackContext, intent)
	if err != nil {
		return types.AnswerResponse{}, err
	}
	r.materialsJSON = mj
	return answer, nil
}

func (r *run) extractAllDocuments(ctx context.Context, docIDs []string, intent types.AnalysisIntent) ([]docExtraction, error) {
	extractions := make([]docExtraction, 0, len(docIDs))
	for _, docID := range docIDs {
		e, err := r.extractDocument(ctx, docID, intent)
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, e)
	}
	return extractions, nil
}

func collectSelectedBlocks(extractions []docExtraction) []types.SelectedBlock {
	var out []types.SelectedBlock
	for _, e := range extractions {
		out = append(out, e.Blocks...)
	}
	return out
}

func (r *run) assembleMaterials(ctx context.Context, extractions []docExtraction, materialsJSON types.MaterialsJSON) types.MaterialsJSON {
	for _, e := range extractions {
		if len(e.Images) == 0 && len(e.ROIs) == 0 {
			continue
		}
		req := materials.BuildRequest{
			ChatID:      r.req.ChatID,
			Images:      e.Images,
			ROIs:        e.ROIs,
			BlockMap:    r.blockMapFor(e.DocumentID),
			SourceDoc:   e.DocumentID,
			MarkdownKey: r.markdownKeyFor(e.DocumentID),
		}
		materialsJSON = r.materialsBuilder.Build(ctx, req, materialsJSON)
	}
	r.emitNewImages(ctx, materialsJSON)
	return materialsJSON
}

