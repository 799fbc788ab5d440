package htmlcrop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractImageMap_JSONInPre(t *testing.T) {
	htmlText := `
<div class="block">
  <div class="block-header">Блок #1 (стр. 1) | Тип: image | ID: AAAA-BBBB-001</div>
  <div class="block-content">
    <pre>{"crop_url": "https://example.com/crops/a.pdf"}</pre>
  </div>
</div>`
	m := ExtractImageMap(htmlText)
	assert.Equal(t, "https://example.com/crops/a.pdf", m["AAAA-BBBB-001"])
}

func TestExtractImageMap_ContentBlockIDOverridesHeader(t *testing.T) {
	htmlText := `
<div class="block">
  <div class="block-header">Блок #1 (стр. 1) | Тип: image</div>
  <div class="block-content">
    BLOCK: ZZZZ-ZZZZ-009
    <a href="https://example.com/crop.png">crop</a>
  </div>
</div>`
	m := ExtractImageMap(htmlText)
	assert.Equal(t, "https://example.com/crop.png", m["ZZZZ-ZZZZ-009"])
}

func TestExtractImageMap_SkipsNonImageBlocks(t *testing.T) {
	htmlText := `
<div class="block">
  <div class="block-header">Блок #1 (стр. 1) | Тип: text | ID: AAAA-BBBB-001</div>
  <div class="block-content">some text</div>
</div>`
	m := ExtractImageMap(htmlText)
	assert.Empty(t, m)
}

func TestExtractImageMap_Empty(t *testing.T) {
	assert.Empty(t, ExtractImageMap(""))
}

func TestParseMultipleJSON_RecoversObjectsAfterGarbage(t *testing.T) {
	got := parseMultipleJSON(`{"a": 1} not json at all {"crop_url": "https://example.com/c.pdf"}`)
	vals, ok := got.([]any)
	assert.True(t, ok)
	assert.Len(t, vals, 2)

	second, ok := vals[1].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/c.pdf", second["crop_url"])
}

func TestParseMultipleJSON_SkipsMalformedLeadingObject(t *testing.T) {
	got := parseMultipleJSON(`{"broken": } {"crop_url": "https://example.com/c.pdf"}`)
	m, ok := got.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/c.pdf", m["crop_url"])
}

func TestExtractImageMap_PreWithGarbageBetweenObjects(t *testing.T) {
	htmlText := `
<div class="block">
  <div class="block-header">Блок #1 (стр. 1) | Тип: image | ID: AAAA-BBBB-001</div>
  <div class="block-content">
    <pre>{"note": "no url here"} --- {"crop_url": "https://example.com/crops/b.pdf"}</pre>
  </div>
</div>`
	m := ExtractImageMap(htmlText)
	assert.Equal(t, "https://example.com/crops/b.pdf", m["AAAA-BBBB-001"])
}
