// Package types holds the shared schemas exchanged between the orchestrator,
// the LLM adapter, and the materials builder.
package types

// BlockKind is the closed set of block kinds a document can contain.
type BlockKind string

const (
	BlockKindText  BlockKind = "TEXT"
	BlockKindImage BlockKind = "IMAGE"
	BlockKindTable BlockKind = "TABLE"
)

// CitationKind is the closed set of evidence kinds a citation can point at.
type CitationKind string

const (
	CitationKindTextBlock  CitationKind = "text_block"
	CitationKindImageBlock CitationKind = "image_block"
	CitationKindROI        CitationKind = "roi"
)

// ImageKind is the closed set of render kinds a MaterialImage can be.
type ImageKind string

const (
	ImageKindOverview ImageKind = "overview"
	ImageKindQuadrant ImageKind = "quadrant"
	ImageKindROI      ImageKind = "roi"
)

// Priority is the closed set of priorities an ImageRequest can carry.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Severity is the closed set of severities an Issue can carry.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// BBoxNorm is a normalised bounding box (x1,y1,x2,y2) in [0,1]^4 with
// x2>x1 and y2>y1. The zero value is not a valid box.
type BBoxNorm [4]float64

// Valid reports whether b has positive width and height (x2>x1 and
// y2>y1). It does not check that the coordinates lie in [0,1].
func (b BBoxNorm) Valid() bool {
	x1, y1, x2, y2 := b[0], b[1], b[2], b[3]
	return x2 > x1 && y2 > y1
}

// Clamp returns b with every coordinate clamped into [0,1].
func (b BBoxNorm) Clamp() BBoxNorm {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return BBoxNorm{clamp(b[0]), clamp(b[1]), clamp(b[2]), clamp(b[3])}
}

// MarshalJSON renders the box as a 4-element array, the wire shape every
// schema in this repo uses for bounding boxes.
func (b BBoxNorm) MarshalJSON() ([]byte, error) {
	return marshalFloatArray(b[:])
}

// UnmarshalJSON parses a 4-element array into a BBoxNorm.
func (b *BBoxNorm) UnmarshalJSON(data []byte) error {
	arr, err := unmarshalFloatArray(data, 4)
	if err != nil {
		return err
	}
	copy(b[:], arr)
	return nil
}

// SelectedBlock is a full block extracted from the Markdown/HTML stream and
// handed to the answerer.
type SelectedBlock struct {
	BlockID        string    `json:"block_id"`
	BlockKind      BlockKind `json:"block_kind"`
	PageNumber     int       `json:"page_number"`
	ContentRaw     string    `json:"content_raw"`
	LinkedBlockIDs []string  `json:"linked_block_ids"`
	Side           string    `json:"side,omitempty"` // "DOC_A" / "DOC_B" in compare mode
}

// ImageRequest asks for a rendered overview (+ quadrants) of one IMAGE block.
type ImageRequest struct {
	BlockID  string   `json:"block_id"`
	Reason   string   `json:"reason,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// ROIRequest asks for a zoomed render of a normalised sub-rectangle.
type ROIRequest struct {
	BlockID  string   `json:"block_id"`
	Page     int      `json:"page,omitempty"`
	BBoxNorm BBoxNorm `json:"bbox_norm"`
	DPI      int      `json:"dpi,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// FlashCollectorResponse is the flash-tier extractor's structured output.
type FlashCollectorResponse struct {
	SelectedBlocks    []SelectedBlock `json:"selected_blocks"`
	RequestedImages   []ImageRequest  `json:"requested_images"`
	RequestedROIs     []ROIRequest    `json:"requested_rois"`
	MaterialsSummary  string          `json:"materials_summary,omitempty"`
}

// MaterialImage is one rendered, uploaded image in the materials payload.
type MaterialImage struct {
	BlockID     string    `json:"block_id"`
	Kind        ImageKind `json:"kind"`
	PNGURI      string    `json:"png_uri"`
	PublicURL   string    `json:"public_url,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	ScaleFactor float64   `json:"scale_factor,omitempty"`
	BBoxNorm    *BBoxNorm `json:"bbox_norm,omitempty"`
}

// DedupKey identifies a MaterialImage for dedup purposes: (block_id, kind, bbox).
func (m MaterialImage) DedupKey() string {
	bbox := ""
	if m.BBoxNorm != nil {
		bbox = boxKey(*m.BBoxNorm)
	}
	return string(m.BlockID) + "|" + string(m.Kind) + "|" + bbox
}

// MaterialsJSON is the assembled input to the answerer.
type MaterialsJSON struct {
	Blocks          []SelectedBlock `json:"blocks"`
	Images          []MaterialImage `json:"images"`
	SourceDocuments []string        `json:"source_documents,omitempty"`
	ExtractedFacts  *DocumentFacts  `json:"extracted_facts,omitempty"`
}

// Merge union-merges other into m, deduping images by DedupKey and blocks by
// BlockID, and returns the merged result. m is not mutated.
func (m MaterialsJSON) Merge(other MaterialsJSON) MaterialsJSON {
	out := MaterialsJSON{
		SourceDocuments: m.SourceDocuments,
		ExtractedFacts:  m.ExtractedFacts,
	}
	seenBlocks := map[string]bool{}
	for _, b := range m.Blocks {
		out.Blocks = append(out.Blocks, b)
		seenBlocks[b.BlockID] = true
	}
	for _, b := range other.Blocks {
		if !seenBlocks[b.BlockID] {
			out.Blocks = append(out.Blocks, b)
			seenBlocks[b.BlockID] = true
		}
	}
	seenImages := map[string]bool{}
	for _, img := range m.Images {
		out.Images = append(out.Images, img)
		seenImages[img.DedupKey()] = true
	}
	for _, img := range other.Images {
		if !seenImages[img.DedupKey()] {
			out.Images = append(out.Images, img)
			seenImages[img.DedupKey()] = true
		}
	}
	if out.ExtractedFacts == nil {
		out.ExtractedFacts = other.ExtractedFacts
	}
	docs := map[string]bool{}
	var merged []string
	for _, d := range append(append([]string{}, m.SourceDocuments...), other.SourceDocuments...) {
		if !docs[d] {
			docs[d] = true
			merged = append(merged, d)
		}
	}
	out.SourceDocuments = merged
	return out
}

// Citation ties a claim in the answer to a block of evidence.
type Citation struct {
	BlockID    string       `json:"block_id"`
	Kind       CitationKind `json:"kind,omitempty"`
	PageNumber int          `json:"page_number,omitempty"`
	BBoxNorm   *BBoxNorm    `json:"bbox_norm,omitempty"`
	Note       string       `json:"note,omitempty"`
}

// Issue is a severity-tagged problem with evidence.
type Issue struct {
	IssueType   string     `json:"issue_type"`
	Severity    Severity   `json:"severity,omitempty"`
	Description string     `json:"description"`
	Evidence    []Citation `json:"evidence"`
}

// Recommendation is a short actionable suggestion.
type Recommendation struct {
	Title   string `json:"title"`
	Details string `json:"details,omitempty"`
}

// DiffItem is one compare-mode diff entry.
type DiffItem struct {
	Item     string     `json:"item"`
	Before   string     `json:"before,omitempty"`
	After    string     `json:"after,omitempty"`
	Impact   string     `json:"impact,omitempty"`
	Evidence []Citation `json:"evidence"`
}

// AnswerResponse is the answerer's structured output.
type AnswerResponse struct {
	AnswerMarkdown    string           `json:"answer_markdown"`
	Citations         []Citation       `json:"citations"`
	Issues            []Issue          `json:"issues"`
	Recommendations   []Recommendation `json:"recommendations"`
	Diff              []DiffItem       `json:"diff"`
	NeedsMoreEvidence bool             `json:"needs_more_evidence"`
	FollowupImages    []string         `json:"followup_images"`
	FollowupROIs      []ROIRequest     `json:"followup_rois"`
}

// AnalysisIntent is the intent router's machine-readable classification.
type AnalysisIntent struct {
	RequiresVisualDetail bool     `json:"requires_visual_detail"`
	Topics               []string `json:"topics,omitempty"`
	PreferredPages       []int    `json:"preferred_pages,omitempty"`
	Notes                string   `json:"notes,omitempty"`
}

// DocumentFacts is the generic key/value + tabular extraction produced by
// the facts-extraction stage.
type DocumentFacts struct {
	Facts  []FactEntry     `json:"facts,omitempty"`
	Tables []TabularExtract `json:"tables,omitempty"`
}

// FactEntry is one generic key/value fact.
type FactEntry struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	SourceBlock string `json:"source_block,omitempty"`
}

// TabularExtract is one extracted table.
type TabularExtract struct {
	Title       string     `json:"title,omitempty"`
	Columns     []string   `json:"columns"`
	Rows        [][]string `json:"rows"`
	SourceBlock string     `json:"source_block,omitempty"`
}
