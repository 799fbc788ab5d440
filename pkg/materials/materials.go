// Package materials resolves requested image/ROI block IDs to rendered,
// uploaded MaterialImages and assembles the MaterialsJSON handed to the
// answerer.
package materials

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/aizoomdoc/docpipeline/pkg/blockid"
	"github.com/aizoomdoc/docpipeline/pkg/blocks"
	"github.com/aizoomdoc/docpipeline/pkg/dialoglog"
	"github.com/aizoomdoc/docpipeline/pkg/evidence"
	"github.com/aizoomdoc/docpipeline/pkg/store"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// FileUploader uploads rendered PNG bytes to the LLM provider's file API
// and returns a reference usable in a later generation call. It is the
// narrow slice of pkg/llmadapter that materials needs, kept as a local
// interface to avoid a dependency cycle.
type FileUploader interface {
	UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (uri string, err error)
}

// Builder assembles MaterialsJSON from requested images/ROIs.
type Builder struct {
	metadata store.MetadataStore
	objects  store.ObjectStore
	renderer *evidence.Renderer
	uploader FileUploader
	dialog   *dialoglog.Logger
	logger   *slog.Logger
}

// New constructs a Builder. dialog may be nil, in which case per-item
// failure reasons are only sent to logger.
func New(metadata store.MetadataStore, objects store.ObjectStore, renderer *evidence.Renderer, uploader FileUploader, dialog *dialoglog.Logger, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		metadata: metadata,
		objects:  objects,
		renderer: renderer,
		uploader: uploader,
		dialog:   dialog,
		logger:   logger,
	}
}

// BuildRequest is one iteration's worth of requested materials, against a
// block map derived from a document's markdown stream (for fallback crop
// resolution and page hints).
type BuildRequest struct {
	ChatID      string
	Images      []types.ImageRequest
	ROIs        []types.ROIRequest
	BlockMap    *blocks.Map
	SourceDoc   string // document UUID this block map belongs to
	MarkdownKey string // object-store key of SourceDoc's Markdown block stream, for the fallback blocks-index derivation
}

// Build resolves every requested image/ROI in req, skipping per-item
// failures, and merges the result into prior (which may be the zero value
// on the first iteration).
func (b *Builder) Build(ctx context.Context, req BuildRequest, prior types.MaterialsJSON) types.MaterialsJSON {
	next := types.MaterialsJSON{}
	seen := make(map[string]bool)

	for _, img := range req.Images {
		b.buildOne(ctx, req, img.BlockID, types.ImageKindOverview, nil, 0, seen, &next)
	}
	for _, roi := range req.ROIs {
		bbox := roi.BBoxNorm
		b.buildOne(ctx, req, roi.BlockID, types.ImageKindROI, &bbox, roi.DPI, seen, &next)
	}

	return prior.Merge(next)
}

func (b *Builder) buildOne(ctx context.Context, req BuildRequest, blockID string, kind types.ImageKind, bbox *types.BBoxNorm, dpi int, seen map[string]bool, next *types.MaterialsJSON) {
	if !blockid.Valid(blockID) {
		b.logInvalid(blockID)
		return
	}

	pdfBytes, err := b.locateCropBytes(ctx, req, blockID)
	if err != nil {
		b.logMissing(blockID, err.Error())
		return
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		b.logNonPDF(blockID)
		return
	}

	sourceVersion := evidence.ContentHash(pdfBytes)

	var rendered []renderedItem
	if kind == types.ImageKindROI {
		r, err := b.renderer.BuildROI(pdfBytes, blockID, sourceVersion, dpi, valueOrDefault(bbox))
		if err != nil {
			b.logMissing(blockID, err.Error())
			return
		}
		rendered = []renderedItem{{kind: types.ImageKindROI, bbox: r.BBoxNorm, render: r}}
	} else {
		renders, err := b.renderer.BuildPreviewAndQuadrants(pdfBytes, blockID, sourceVersion, 0, evidence.DefaultPreviewDPI)
		if err != nil {
			b.logMissing(blockID, err.Error())
			return
		}
		for i, r := range renders {
			k := types.ImageKindQuadrant
			if i == 0 {
				k = types.ImageKindOverview
			}
			rendered = append(rendered, renderedItem{kind: k, bbox: r.BBoxNorm, render: r})
		}
	}

	for _, item := range rendered {
		key := dedupKey(blockID, item.kind, item.bbox)
		if seen[key] {
			continue
		}
		seen[key] = true

		mat, err := b.upload(ctx, req.ChatID, blockID, item)
		if err != nil {
			b.logMissing(blockID, err.Error())
			continue
		}
		next.Images = append(next.Images, mat)
	}
}

type renderedItem struct {
	kind   types.ImageKind
	bbox   *types.BBoxNorm
	render evidence.Rendered
}

func (b *Builder) upload(ctx context.Context, chatID, blockID string, item renderedItem) (types.MaterialImage, error) {
	name := fmt.Sprintf("%s_%s_%s.png", safeName(blockID), string(item.kind), uuid.NewString())

	var fileURI string
	if b.uploader != nil {
		uri, err := b.uploader.UploadFile(ctx, name, item.render.PNG, "image/png")
		if err != nil {
			return types.MaterialImage{}, fmt.Errorf("materials: upload file api: %w", err)
		}
		fileURI = uri
	}

	objectKey := fmt.Sprintf("chat_images/%s", name)
	storedKey, err := b.objects.Put(ctx, objectKey, item.render.PNG, "image/png")
	if err != nil {
		return types.MaterialImage{}, fmt.Errorf("materials: object store put: %w", err)
	}

	mat := types.MaterialImage{
		BlockID:     blockID,
		Kind:        item.kind,
		PNGURI:      fileURI,
		PublicURL:   storedKey,
		Width:       item.render.Width,
		Height:      item.render.Height,
		ScaleFactor: item.render.ScaleFactor,
	}
	if item.bbox != nil {
		mat.BBoxNorm = item.bbox
	}
	return mat, nil
}

// locateCropBytes resolves a block ID to its crop PDF bytes: (i) the
// authoritative blocks-index, via the supplied block map's crop URL;
// (ii) the fallback blocks-index path derived from the document's Markdown
// key's tree-file naming convention; (iii) the metadata store's
// per-document crop record, with an HTTP fallback left to the object store
// implementation.
func (b *Builder) locateCropBytes(ctx context.Context, req BuildRequest, blockID string) ([]byte, error) {
	if req.BlockMap != nil {
		if blk, ok := req.BlockMap.ByID[blockID]; ok && blk.CropURL != "" {
			if data, err := b.objects.Get(ctx, blk.CropURL); err == nil {
				return data, nil
			}
		}
	}

	if cropURL, ok := b.fallbackCropURL(ctx, req.MarkdownKey, blockID); ok {
		if data, err := b.objects.Get(ctx, cropURL); err == nil {
			return data, nil
		}
	}

	ref, err := b.metadata.CropLocation(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("crop location: %w", err)
	}
	data, err := b.objects.Get(ctx, ref.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch crop bytes: %w", err)
	}
	return data, nil
}

// fallbackCropURL fetches and parses the fallback blocks-index manifest
// derived from markdownKey, returning blockID's crop URL if the manifest
// exists and names it.
func (b *Builder) fallbackCropURL(ctx context.Context, markdownKey, blockID string) (string, bool) {
	if markdownKey == "" {
		return "", false
	}
	data, err := b.objects.Get(ctx, fallbackBlocksIndexPath(markdownKey))
	if err != nil {
		return "", false
	}
	idx, err := blocks.ParseIndex(data)
	if err != nil {
		return "", false
	}
	entry, ok := idx[blockID]
	if !ok || entry.CropURL == "" {
		return "", false
	}
	return entry.CropURL, true
}

func dedupKey(blockID string, kind types.ImageKind, bbox *types.BBoxNorm) string {
	if bbox == nil {
		return fmt.Sprintf("%s|%s", blockID, kind)
	}
	rounded := [4]float64{}
	for i, v := range bbox {
		rounded[i] = float64(int(v*1e4+0.5)) / 1e4
	}
	return fmt.Sprintf("%s|%s|%v", blockID, kind, rounded)
}

func safeName(blockID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, blockID)
}

func valueOrDefault(bbox *types.BBoxNorm) types.BBoxNorm {
	if bbox == nil {
		return types.BBoxNorm{0, 0, 1, 1}
	}
	return *bbox
}

func (b *Builder) logMissing(blockID, reason string) {
	b.logger.Warn("materials: crop unavailable", "block_id", blockID, "reason", reason)
	if b.dialog != nil {
		_ = b.dialog.MissingCrop(blockID, reason)
	}
}

func (b *Builder) logNonPDF(blockID string) {
	b.logger.Warn("materials: crop bytes are not a PDF", "block_id", blockID)
	if b.dialog != nil {
		_ = b.dialog.NonPDFCrop(blockID)
	}
}

func (b *Builder) logInvalid(blockID string) {
	b.logger.Warn("materials: invalid block id requested", "block_id", blockID)
	if b.dialog != nil {
		_ = b.dialog.InvalidBlockID(blockID)
	}
}

// fallbackBlocksIndexPath derives a blocks-index path from a markdown
// document's path by the tree-file naming convention:
// "*_document.md" -> "*_blocks.json".
func fallbackBlocksIndexPath(documentMDPath string) string {
	base := strings.TrimSuffix(documentMDPath, path.Ext(documentMDPath))
	base = strings.TrimSuffix(base, "_document")
	return base + "_blocks.json"
}
