package orchestrator

import (
	"context"

	"github.com/aizoomdoc/docpipeline/pkg/blocks"
	"github.com/aizoomdoc/docpipeline/pkg/htmlcrop"
)

// loadArtifacts pulls, for every referenced document, its Markdown block
// stream and HTML OCR mirror, derives a block map, and fills crop URLs
// from the blocks-index manifest (authority) then the HTML OCR mirror
// (fallback). Per-document failures are logged and
// skipped; this stage never aborts the pipeline. If no document yields a
// block map, fallbackContext is left for later stages to answer against
// instead.
func (r *run) loadArtifacts(ctx context.Context) error {
	r.blockMaps = make(map[string]*blocks.Map)
	r.blockOwner = make(map[string]string)
	r.docMarkdownKey = make(map[string]string)

	for _, docID := range r.req.CompareA {
		r.docSide[docID] = "DOC_A"
	}
	for _, docID := range r.req.CompareB {
		r.docSide[docID] = "DOC_B"
	}

	for _, docID := range r.req.allDocumentIDs() {
		m, fallback := r.loadOneDocument(ctx, docID)
		if m != nil {
			r.blockMaps[docID] = m
			for _, id := range m.Order {
				r.blockOwner[id] = docID
			}
		} else if fallback != "" {
			r.fallbackContext += fallback + "\n"
		}
	}
	return nil
}

func (r *run) loadOneDocument(ctx context.Context, docID string) (*blocks.Map, string) {
	artifacts, err := r.o.metadata.DocumentArtifacts(ctx, docID)
	if err != nil {
		r.o.logger.Warn("orchestrator: document artifacts unavailable", "document_id", docID, "error", err)
		return nil, ""
	}

	var markdown, htmlText []byte
	if artifacts.MarkdownKey != "" {
		r.docMarkdownKey[docID] = artifacts.MarkdownKey
		if data, err := r.o.objects.Get(ctx, artifacts.MarkdownKey); err == nil {
			markdown = data
		}
	}
	if artifacts.HTMLKey != "" {
		if data, err := r.o.objects.Get(ctx, artifacts.HTMLKey); err == nil {
			htmlText = data
		}
	}

	if len(markdown) == 0 && len(htmlText) == 0 {
		return nil, ""
	}

	var m *blocks.Map
	if len(markdown) > 0 {
		m = blocks.Parse(string(markdown), func(rawID string) {
			_ = r.dialog.InvalidBlockID(rawID)
		})
	} else {
		m = blocks.NewMap()
	}

	if artifacts.BlocksIndexKey != "" {
		if data, err := r.o.objects.Get(ctx, artifacts.BlocksIndexKey); err == nil {
			if idx, err := blocks.ParseIndex(data); err == nil {
				idx.Apply(m)
			}
		}
	}
	if len(htmlText) > 0 {
		blocks.ApplyFallback(m, htmlcrop.ExtractImageMap(string(htmlText)))
	}

	if len(m.Order) == 0 {
		// Markdown parsed to nothing usable (or was absent): fall back to a
		// plain-text context string instead of an empty block map.
		return nil, plainTextFallback(markdown, htmlText)
	}
	return m, ""
}
