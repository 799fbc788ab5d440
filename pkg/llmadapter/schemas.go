package llmadapter

import "google.golang.org/genai"

// Strict response schemas for the structured-mode calls. Each mirrors the
// corresponding pkg/types shape field-for-field so a ParseTolerantJSON
// decode never drops data the model actually returned.

func stringSchema() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
func intSchema() *genai.Schema    { return &genai.Schema{Type: genai.TypeInteger} }
func boolSchema() *genai.Schema   { return &genai.Schema{Type: genai.TypeBoolean} }
func numberSchema() *genai.Schema { return &genai.Schema{Type: genai.TypeNumber} }

func arraySchema(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}

func bboxNormSchema() *genai.Schema {
	return arraySchema(numberSchema())
}

func citationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"block_id":    stringSchema(),
			"kind":        stringSchema(),
			"page_number": intSchema(),
			"bbox_norm":   bboxNormSchema(),
			"note":        stringSchema(),
		},
		Required: []string{"block_id"},
	}
}

func issueSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"issue_type":  stringSchema(),
			"severity":    stringSchema(),
			"description": stringSchema(),
			"evidence":    arraySchema(citationSchema()),
		},
		Required: []string{"issue_type", "description"},
	}
}

func recommendationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   stringSchema(),
			"details": stringSchema(),
		},
		Required: []string{"title"},
	}
}

func diffItemSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"item":     stringSchema(),
			"before":   stringSchema(),
			"after":    stringSchema(),
			"impact":   stringSchema(),
			"evidence": arraySchema(citationSchema()),
		},
		Required: []string{"item"},
	}
}

func roiRequestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"block_id":  stringSchema(),
			"page":      intSchema(),
			"bbox_norm": bboxNormSchema(),
			"dpi":       intSchema(),
			"reason":    stringSchema(),
		},
		Required: []string{"block_id", "bbox_norm"},
	}
}

func imageRequestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"block_id": stringSchema(),
			"reason":   stringSchema(),
			"priority": stringSchema(),
		},
		Required: []string{"block_id"},
	}
}

func selectedBlockSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"block_id":         stringSchema(),
			"block_kind":       stringSchema(),
			"page_number":      intSchema(),
			"content_raw":      stringSchema(),
			"linked_block_ids": arraySchema(stringSchema()),
			"side":             stringSchema(),
		},
		Required: []string{"block_id", "block_kind"},
	}
}

// FlashCollectorSchema constrains the flash-tier per-document extractor.
func FlashCollectorSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"selected_blocks":   arraySchema(selectedBlockSchema()),
			"requested_images":  arraySchema(imageRequestSchema()),
			"requested_rois":    arraySchema(roiRequestSchema()),
			"materials_summary": stringSchema(),
		},
		Required: []string{"selected_blocks"},
	}
}

// AnswerResponseSchema constrains the answerer and ROI-requester calls.
func AnswerResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"answer_markdown":     stringSchema(),
			"citations":           arraySchema(citationSchema()),
			"issues":              arraySchema(issueSchema()),
			"recommendations":     arraySchema(recommendationSchema()),
			"diff":                arraySchema(diffItemSchema()),
			"needs_more_evidence": boolSchema(),
			"followup_images":     arraySchema(stringSchema()),
			"followup_rois":       arraySchema(roiRequestSchema()),
		},
		Required: []string{"answer_markdown"},
	}
}

// AnalysisIntentSchema constrains the intent-router call.
func AnalysisIntentSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"requires_visual_detail": boolSchema(),
			"topics":                 arraySchema(stringSchema()),
			"preferred_pages":        arraySchema(intSchema()),
			"notes":                  stringSchema(),
		},
		Required: []string{"requires_visual_detail"},
	}
}

func factEntrySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"key":          stringSchema(),
			"value":        stringSchema(),
			"source_block": stringSchema(),
		},
		Required: []string{"key", "value"},
	}
}

func tabularExtractSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":        stringSchema(),
			"columns":      arraySchema(stringSchema()),
			"rows":         arraySchema(arraySchema(stringSchema())),
			"source_block": stringSchema(),
		},
		Required: []string{"columns", "rows"},
	}
}

// DocumentFactsSchema constrains the facts-extraction call.
func DocumentFactsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"facts":  arraySchema(factEntrySchema()),
			"tables": arraySchema(tabularExtractSchema()),
		},
	}
}
