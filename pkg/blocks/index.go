package blocks

import "encoding/json"

// IndexEntry is one row of the blocks-index manifest: the authoritative
// block_id -> crop_url map, plus the page index and block type the
// manifest carries alongside it.
type IndexEntry struct {
	BlockID   string `json:"block_id"`
	CropURL   string `json:"crop_url"`
	Page      int    `json:"page"`
	BlockType string `json:"block_type"`
}

// Index is the parsed blocks-index manifest, keyed by block ID.
type Index map[string]IndexEntry

type indexDocument struct {
	Blocks []rawIndexEntry `json:"blocks"`
}

// rawIndexEntry accepts every known crop-URL key spelling, so the same
// manifest shape works whether the ingestion pipeline emits snake_case or
// camelCase.
type rawIndexEntry struct {
	BlockID    string `json:"block_id"`
	Page       int    `json:"page"`
	BlockType  string `json:"block_type"`
	CropURL    string `json:"crop_url"`
	CropURLAlt string `json:"cropUrl"`
	CropURLPDF string `json:"crop_url_pdf"`
	CropURLPDFAlt string `json:"cropUrlPdf"`
}

func (r rawIndexEntry) resolvedCropURL() string {
	for _, v := range []string{r.CropURL, r.CropURLAlt, r.CropURLPDF, r.CropURLPDFAlt} {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseIndex decodes the blocks-index manifest JSON into an Index. Entries
// with an empty block ID are skipped.
func ParseIndex(data []byte) (Index, error) {
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	idx := make(Index, len(doc.Blocks))
	for _, raw := range doc.Blocks {
		if raw.BlockID == "" {
			continue
		}
		idx[raw.BlockID] = IndexEntry{
			BlockID:   raw.BlockID,
			CropURL:   raw.resolvedCropURL(),
			Page:      raw.Page,
			BlockType: raw.BlockType,
		}
	}
	return idx, nil
}

// Apply fills CropURL on every block in m that the index names and that
// does not already carry one. The manifest is authoritative; fallback
// sources only fill what it leaves empty.
func (idx Index) Apply(m *Map) {
	for id, entry := range idx {
		if blk, ok := m.ByID[id]; ok && blk.CropURL == "" {
			blk.CropURL = entry.CropURL
		}
	}
}

// ApplyFallback fills CropURL from a block_id -> crop_url map (e.g. the
// HTML OCR mirror's recovered index) for any block still missing one.
func ApplyFallback(m *Map, fallback map[string]string) {
	for id, url := range fallback {
		if blk, ok := m.ByID[id]; ok && blk.CropURL == "" {
			blk.CropURL = url
		}
	}
}
