package orchestrator

import (
	"context"

	"github.com/aizoomdoc/docpipeline/pkg/blockid"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/materials"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// buildFollowupMaterials groups the quality gate's requested images/ROIs by
// the document each block belongs to (resolved via blockOwner) and resolves
// each group against that document's block map, merging into prior. Blocks
// that cannot be traced back to a loaded document are skipped: the
// materials builder cannot resolve a crop without one.
func (r *run) buildFollowupMaterials(ctx context.Context, imageIDs []string, rois []types.ROIRequest, prior types.MaterialsJSON) types.MaterialsJSON {
	byDoc := map[string]*materials.BuildRequest{}

	ensure := func(docID string) *materials.BuildRequest {
		if req, ok := byDoc[docID]; ok {
			return req
		}
		req := &materials.BuildRequest{
			ChatID:      r.req.ChatID,
			BlockMap:    r.blockMapFor(docID),
			SourceDoc:   docID,
			MarkdownKey: r.markdownKeyFor(docID),
		}
		byDoc[docID] = req
		return req
	}

	for _, blockID := range imageIDs {
		docID, ok := r.blockOwner[blockID]
		if !ok {
			continue
		}
		req := ensure(docID)
		req.Images = append(req.Images, types.ImageRequest{BlockID: blockID, Reason: "quality gate follow-up"})
	}
	for _, roi := range rois {
		docID, ok := r.blockOwner[roi.BlockID]
		if !ok {
			continue
		}
		req := ensure(docID)
		req.ROIs = append(req.ROIs, roi)
	}

	merged := prior
	for _, req := range byDoc {
		merged = r.materialsBuilder.Build(ctx, *req, merged)
	}
	r.emitNewImages(ctx, merged)
	return merged
}

// runFollowupLoop drives the quality gate and refinement rounds: after
// the first answerer pass, the server-side quality gate (applyQualityGate)
// gets one chance to synthesise a follow-up the model didn't ask for
// itself; thereafter the loop simply keeps re-answering while the answer
// carries followup_images or followup_rois, bounded by
// maxFollowupIterations. The last produced answer always wins, even if
// the cap is hit while it still wants more.
func (r *run) runFollowupLoop(ctx context.Context, tier llmadapter.Tier, materialsJSON types.MaterialsJSON, extraContext string, intent types.AnalysisIntent) (types.AnswerResponse, types.MaterialsJSON, error) {
	var answer types.AnswerResponse
	qualityGateChecked := false
	for iteration := 0; iteration < maxFollowupIterations; iteration++ {
		var err error
		answer, err = r.runAnswerer(ctx, tier, materialsJSON, extraContext, intent)
		if err != nil {
			return types.AnswerResponse{}, materialsJSON, err
		}
		r.dropInvalidFollowups(&answer)

		if !qualityGateChecked {
			qualityGateChecked = true
			r.applyQualityGate(ctx, tier, intent, &answer, materialsJSON)
		}

		if len(answer.FollowupImages) == 0 && len(answer.FollowupROIs) == 0 {
			break
		}
		if iteration == maxFollowupIterations-1 {
			r.o.logger.Warn("orchestrator: follow-up loop hit iteration cap", "request_id", r.req.RequestID)
			break
		}
		_ = r.bus.PhaseProgress(ctx, "answering", "fetching additional evidence requested by the answer")
		materialsJSON = r.buildFollowupMaterials(ctx, answer.FollowupImages, answer.FollowupROIs, materialsJSON)
	}
	return answer, materialsJSON, nil
}

// dropInvalidFollowups filters hallucinated block IDs out of the answer's
// follow-up requests, logging each one. An answer whose every follow-up ID
// was invalid ends the loop with the original answer kept; nothing invalid
// is ever forwarded to the renderer.
func (r *run) dropInvalidFollowups(answer *types.AnswerResponse) {
	var images []string
	for _, id := range answer.FollowupImages {
		if !blockid.Valid(id) {
			_ = r.dialog.InvalidBlockID(id)
			continue
		}
		images = append(images, id)
	}
	answer.FollowupImages = images

	var rois []types.ROIRequest
	for _, roi := range answer.FollowupROIs {
		if !blockid.Valid(roi.BlockID) {
			_ = r.dialog.InvalidBlockID(roi.BlockID)
			continue
		}
		rois = append(rois, roi)
	}
	answer.FollowupROIs = rois
}
