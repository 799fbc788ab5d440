package orchestrator

import (
	"context"

	"github.com/aizoomdoc/docpipeline/pkg/blockid"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// applyQualityGate is the server-side safety-net behind the answerer:
// when the intent router flagged visual detail as required but
// the answer neither cites a ROI nor already carries a follow-up request,
// this synthesises one rather than trusting the model's own
// needs_more_evidence self-report. It mutates answer in place and reports
// whether it added a follow-up. Called exactly once, against the first
// answerer pass, by runFollowupLoop.
func (r *run) applyQualityGate(ctx context.Context, tier llmadapter.Tier, intent types.AnalysisIntent, answer *types.AnswerResponse, materialsJSON types.MaterialsJSON) bool {
	if !intent.RequiresVisualDetail {
		return false
	}
	if hasROICitation(*answer) || len(answer.FollowupImages) > 0 || len(answer.FollowupROIs) > 0 {
		return false
	}

	if len(materialsJSON.Images) == 0 {
		ids := r.pickUnrepresentedImageBlocks(materialsJSON, maxQualityGateImagePicks)
		if len(ids) == 0 {
			return false
		}
		answer.FollowupImages = ids
		return true
	}

	rois := r.requestROIFollowup(ctx, tier, intent, materialsJSON)
	if len(rois) == 0 {
		// All proposed IDs were invalid (or the call failed): keep the
		// original answer.
		return false
	}
	answer.FollowupROIs = rois
	return true
}

// hasROICitation reports whether answer already cites a region-of-interest,
// which satisfies the quality gate without any follow-up.
func hasROICitation(answer types.AnswerResponse) bool {
	for _, c := range answer.Citations {
		if c.Kind == types.CitationKindROI {
			return true
		}
	}
	return false
}

// pickUnrepresentedImageBlocks scans every loaded document's block map (in
// discovery order, for determinism) for IMAGE blocks not already rendered
// into materialsJSON, up to limit. Used when materials had no images at
// all.
func (r *run) pickUnrepresentedImageBlocks(materialsJSON types.MaterialsJSON, limit int) []string {
	represented := make(map[string]bool, len(materialsJSON.Images))
	for _, img := range materialsJSON.Images {
		represented[img.BlockID] = true
	}

	var out []string
	for _, docID := range r.req.allDocumentIDs() {
		m := r.blockMapFor(docID)
		if m == nil {
			continue
		}
		for _, id := range m.Order {
			if len(out) >= limit {
				return out
			}
			blk := m.ByID[id]
			if blk.Kind != types.BlockKindImage || represented[id] {
				continue
			}
			out = append(out, id)
		}
	}
	return out
}

// requestROIFollowup runs the dedicated ROI-requester prompt, constrained
// to the same AnswerResponse schema as the answerer but read only for its
// followup_rois[]. Proposed block IDs are filtered through the canonical
// block-ID regex; an invalid ID is dropped and logged, never forwarded to
// the renderer.
func (r *run) requestROIFollowup(ctx context.Context, tier llmadapter.Tier, intent types.AnalysisIntent, materialsJSON types.MaterialsJSON) []types.ROIRequest {
	extraContext := "The previous answer required visual detail it did not cite. Propose a follow-up ROI on one of the materials' IMAGE blocks that would resolve it."
	userPrompt, err := buildAnswererUserPrompt(r.req.UserMessage, materialsJSON, intent, extraContext)
	if err != nil {
		r.o.logger.Warn("orchestrator: roi requester prompt assembly failed", "request_id", r.req.RequestID, "error", err)
		return nil
	}

	raw, err := r.o.llm.GenerateStructured(ctx, tier, r.o.prompts.ROIRequester, userPrompt,
		uploadedFilesFor(materialsJSON), r.o.genParams, llmadapter.AnswerResponseSchema())
	if err != nil {
		r.o.logger.Warn("orchestrator: roi requester call failed", "request_id", r.req.RequestID, "error", err)
		return nil
	}

	var resp types.AnswerResponse
	if err := llmadapter.ParseTolerantJSON(raw, &resp); err != nil {
		r.o.logger.Warn("orchestrator: roi requester response did not parse", "request_id", r.req.RequestID, "error", err)
		return nil
	}

	valid := make([]types.ROIRequest, 0, len(resp.FollowupROIs))
	for _, roi := range resp.FollowupROIs {
		if !blockid.Valid(roi.BlockID) {
			_ = r.dialog.InvalidBlockID(roi.BlockID)
			continue
		}
		valid = append(valid, roi)
	}
	return valid
}
