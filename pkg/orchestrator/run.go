package orchestrator

import (
	"context"
	"fmt"

	"github.com/aizoomdoc/docpipeline/pkg/blocks"
	"github.com/aizoomdoc/docpipeline/pkg/dialoglog"
	"github.com/aizoomdoc/docpipeline/pkg/eventbus"
	"github.com/aizoomdoc/docpipeline/pkg/materials"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// run holds the mutable state of one pipeline execution. A fresh run is
// constructed per Orchestrator.Run call; nothing here is shared across
// requests.
type run struct {
	o   *Orchestrator
	req Request
	bus *eventbus.Bus

	dialog           *dialoglog.Logger
	materialsBuilder *materials.Builder

	blockMaps      map[string]*blocks.Map // documentID -> block map
	blockOwner     map[string]string      // blockID -> documentID, across every loaded document
	docMarkdownKey map[string]string      // documentID -> object-store key of its Markdown block stream
	docSide        map[string]string      // documentID -> "DOC_A"/"DOC_B" (compare only)
	fallbackContext string                // used when no document yields a block map

	emittedImages map[string]bool // image_ready dedup keys already announced this request
	materialsJSON types.MaterialsJSON
}

func (r *run) execute(ctx context.Context) (types.AnswerResponse, error) {
	if err := r.loadArtifacts(ctx); err != nil {
		return types.AnswerResponse{}, err
	}

	switch r.req.Profile {
	case ProfileCompare:
		return r.runCompare(ctx)
	case ProfileComplex:
		return r.runComplex(ctx)
	default:
		return r.runSimple(ctx)
	}
}

// labelFor returns the compare-mode side label for documentID, or "" outside
// compare mode.
func (r *run) labelFor(documentID string) string {
	return r.docSide[documentID]
}

func (r *run) blockMapFor(documentID string) *blocks.Map {
	return r.blockMaps[documentID]
}

// markdownKeyFor returns documentID's Markdown block-stream object-store
// key, or "" if unknown, for deriving the fallback blocks-index path.
func (r *run) markdownKeyFor(documentID string) string {
	return r.docMarkdownKey[documentID]
}

// combinedContext concatenates every loaded document's raw block content
// (or the fallback text when no block map could be built), bounded to
// maxChars, for profiles that skip the per-document extraction stage.
func (r *run) combinedContext(maxChars int) string {
	var out string
	for _, docID := range r.req.allDocumentIDs() {
		m := r.blockMaps[docID]
		if m == nil {
			continue
		}
		out += fmt.Sprintf("=== DOCUMENT %s ===\n", docID)
		for _, id := range m.Order {
			out += m.ByID[id].ContentRaw + "\n"
		}
	}
	if out == "" {
		out = r.fallbackContext
	}
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

// emitNewImages announces every rendered image in m not yet announced on
// this request's stream. image_ready fires at most once per
// (block_id, kind, bbox) per request, across initial assembly and every
// follow-up round.
func (r *run) emitNewImages(ctx context.Context, m types.MaterialsJSON) {
	if r.emittedImages == nil {
		r.emittedImages = map[string]bool{}
	}
	for _, img := range m.Images {
		key := img.DedupKey()
		if r.emittedImages[key] {
			continue
		}
		r.emittedImages[key] = true
		_ = r.bus.ImageReady(ctx, img.BlockID, string(img.Kind), img.PublicURL)
	}
}
