package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/aizoomdoc/docpipeline/pkg/blocks"
	"github.com/aizoomdoc/docpipeline/pkg/dialoglog"
	"github.com/aizoomdoc/docpipeline/pkg/eventbus"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/store"
	"github.com/aizoomdoc/docpipeline/pkg/types"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestRequestAllDocumentIDs(t *testing.T) {
	simple := Request{Profile: ProfileSimple, DocumentIDs: []string{"d1", "d2"}}
	require.Equal(t, []string{"d1", "d2"}, simple.allDocumentIDs())

	compare := Request{Profile: ProfileCompare, CompareA: []string{"a1"}, CompareB: []string{"b1", "b2"}}
	require.Equal(t, []string{"a1", "b1", "b2"}, compare.allDocumentIDs())
}

func TestPipelineErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	perr := newPipelineError(KindCacheIOError, "reading cache", inner)
	require.ErrorIs(t, perr, inner)
	require.Contains(t, perr.Error(), "cache_io_error")

	wrapped := fmt.Errorf("wrapping: %w", perr)
	var found *PipelineError
	require.True(t, errors.As(wrapped, &found))
	require.Equal(t, KindCacheIOError, found.Kind)

	require.False(t, errors.As(errors.New("plain"), &found))
}

func TestHasROICitation(t *testing.T) {
	require.False(t, hasROICitation(types.AnswerResponse{}))
	require.False(t, hasROICitation(types.AnswerResponse{
		Citations: []types.Citation{{BlockID: "AAAA-BBBB-001", Kind: types.CitationKindTextBlock}},
	}))
	require.True(t, hasROICitation(types.AnswerResponse{
		Citations: []types.Citation{{BlockID: "AAAA-BBBB-001", Kind: types.CitationKindROI}},
	}))
}

func TestPickUnrepresentedImageBlocks(t *testing.T) {
	m := blocks.NewMap()
	m.Add(&blocks.Block{ID: "AAAA-BBBB-001", Kind: types.BlockKindImage})
	m.Add(&blocks.Block{ID: "AAAA-BBBB-002", Kind: types.BlockKindText})
	m.Add(&blocks.Block{ID: "AAAA-BBBB-003", Kind: types.BlockKindImage})
	m.Add(&blocks.Block{ID: "AAAA-BBBB-004", Kind: types.BlockKindImage})

	r := &run{
		req:        Request{DocumentIDs: []string{"doc-1"}},
		blockMaps:  map[string]*blocks.Map{"doc-1": m},
		blockOwner: map[string]string{},
	}

	got := r.pickUnrepresentedImageBlocks(types.MaterialsJSON{
		Images: []types.MaterialImage{{BlockID: "AAAA-BBBB-001"}},
	}, 2)

	require.Equal(t, []string{"AAAA-BBBB-003", "AAAA-BBBB-004"}, got)
}

func TestApplyQualityGate_NoOpWhenVisualDetailNotRequired(t *testing.T) {
	r := &run{}
	answer := types.AnswerResponse{AnswerMarkdown: "plain answer"}
	fired := r.applyQualityGate(context.Background(), llmadapter.TierPro, types.AnalysisIntent{}, &answer, types.MaterialsJSON{})
	require.False(t, fired)
	require.Empty(t, answer.FollowupImages)
	require.Empty(t, answer.FollowupROIs)
}

func TestApplyQualityGate_NoOpWhenAnswerAlreadyCitesROI(t *testing.T) {
	r := &run{}
	answer := types.AnswerResponse{
		Citations: []types.Citation{{BlockID: "AAAA-BBBB-001", Kind: types.CitationKindROI}},
	}
	fired := r.applyQualityGate(context.Background(), llmadapter.TierPro, types.AnalysisIntent{RequiresVisualDetail: true}, &answer, types.MaterialsJSON{})
	require.False(t, fired)
}

func TestApplyQualityGate_SynthesizesImagePicksWhenMaterialsHadNoImages(t *testing.T) {
	m := blocks.NewMap()
	m.Add(&blocks.Block{ID: "AAAA-BBBB-001", Kind: types.BlockKindImage})

	r := &run{
		req:        Request{DocumentIDs: []string{"doc-1"}},
		blockMaps:  map[string]*blocks.Map{"doc-1": m},
		blockOwner: map[string]string{"AAAA-BBBB-001": "doc-1"},
	}

	answer := types.AnswerResponse{AnswerMarkdown: "needs a picture"}
	fired := r.applyQualityGate(context.Background(), llmadapter.TierPro, types.AnalysisIntent{RequiresVisualDetail: true}, &answer, types.MaterialsJSON{})

	require.True(t, fired)
	require.Equal(t, []string{"AAAA-BBBB-001"}, answer.FollowupImages)
	require.Empty(t, answer.FollowupROIs)
}

func TestApplyQualityGate_RequestsROIWhenMaterialsAlreadyHadImages(t *testing.T) {
	o := &Orchestrator{
		llm:     &fakeROIRequesterLLM{response: `{"followup_rois":[{"block_id":"AAAA-BBBB-001","bbox_norm":[0.1,0.1,0.5,0.5]}]}`},
		prompts: Prompts{ROIRequester: "roi requester system prompt"},
		logger:  discardLogger(),
	}
	r := &run{
		o:      o,
		req:    Request{RequestID: "req-1"},
		dialog: dialoglog.New(t.TempDir(), "chat-1", 0),
	}

	answer := types.AnswerResponse{AnswerMarkdown: "here is the overview image"}
	materialsJSON := types.MaterialsJSON{Images: []types.MaterialImage{{BlockID: "AAAA-BBBB-001"}}}
	fired := r.applyQualityGate(context.Background(), llmadapter.TierPro, types.AnalysisIntent{RequiresVisualDetail: true}, &answer, materialsJSON)

	require.True(t, fired)
	require.Len(t, answer.FollowupROIs, 1)
	require.Equal(t, "AAAA-BBBB-001", answer.FollowupROIs[0].BlockID)
}

// fakeROIRequesterLLM returns response for every GenerateStructured call,
// regardless of prompt, so TestApplyQualityGate_RequestsROIWhenMaterialsAlreadyHadImages
// can assert on the ROI-requester wiring in isolation from the answerer path.
type fakeROIRequesterLLM struct {
	response string
}

func (f *fakeROIRequesterLLM) GenerateStructured(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema) (string, error) {
	return f.response, nil
}

func (f *fakeROIRequesterLLM) GenerateStream(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema, onChunk func(llmadapter.StreamChunk) error) error {
	return nil
}

func (f *fakeROIRequesterLLM) UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (string, error) {
	return "uploaded://" + name, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlainTextFallbackPrefersMarkdown(t *testing.T) {
	require.Equal(t, "markdown body", plainTextFallback([]byte("markdown body"), []byte("<p>html</p>")))
	require.Equal(t, "html body", plainTextFallback(nil, []byte("<p>html  body</p>")))
	require.Equal(t, "", plainTextFallback(nil, nil))
}

// --- fakes for an end-to-end runSimple test ---

type fakeMetadataStore struct {
	artifacts map[string]store.DocumentArtifacts
	messages  []string
}

func (f *fakeMetadataStore) CropLocation(ctx context.Context, blockID string) (store.CropRef, error) {
	return store.CropRef{}, store.ErrCropNotFound
}

func (f *fakeMetadataStore) DocumentArtifacts(ctx context.Context, documentID string) (store.DocumentArtifacts, error) {
	a, ok := f.artifacts[documentID]
	if !ok {
		return store.DocumentArtifacts{}, store.ErrDocumentNotFound
	}
	return a, nil
}

func (f *fakeMetadataStore) AddMessage(ctx context.Context, chatID, role, content string) (string, error) {
	f.messages = append(f.messages, content)
	return "msg-1", nil
}

func (f *fakeMetadataStore) AddChatImage(ctx context.Context, chatID, messageID, blockID, imageKind, storageKey string) error {
	return nil
}

func (f *fakeMetadataStore) GetChatStorageFiles(ctx context.Context, chatID string) ([]string, error) {
	return nil, nil
}

func (f *fakeMetadataStore) DeleteChatCascade(ctx context.Context, chatID string) error {
	return nil
}

type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	return key, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error { return nil }

type fakeLLM struct {
	streamJSON string
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema) (string, error) {
	return "{}", nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema, onChunk func(llmadapter.StreamChunk) error) error {
	if err := onChunk(llmadapter.StreamChunk{Kind: llmadapter.ChunkThinking, Text: "pondering"}); err != nil {
		return err
	}
	if err := onChunk(llmadapter.StreamChunk{Kind: llmadapter.ChunkText, Text: f.streamJSON}); err != nil {
		return err
	}
	return onChunk(llmadapter.StreamChunk{Kind: llmadapter.ChunkDone})
}

func (f *fakeLLM) UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (string, error) {
	return "uploaded://" + name, nil
}

func TestOrchestratorRunSimpleProfileEndToEnd(t *testing.T) {
	metadata := &fakeMetadataStore{
		artifacts: map[string]store.DocumentArtifacts{
			"doc-1": {MarkdownKey: "doc-1.md"},
		},
	}
	objects := &fakeObjectStore{
		objects: map[string][]byte{
			"doc-1.md": []byte("The quarterly revenue figure is 42."),
		},
	}
	llm := &fakeLLM{streamJSON: `{"answer_markdown":"Revenue was 42.","needs_more_evidence":false}`}

	o := New(metadata, objects, llm, nil, llmadapter.ModelNames{Flash: "flash-model", Pro: "pro-model"},
		llmadapter.GenerationParams{}, Prompts{Answerer: "answer system prompt"}, t.TempDir(), nil)

	bus := eventbus.New(32)
	req := Request{
		RequestID:     "req-1",
		ChatID:        "chat-1",
		UserMessage:   "What was the revenue?",
		UserMessageID: "user-msg-1",
		Profile:       ProfileSimple,
		DocumentIDs:   []string{"doc-1"},
	}

	err := o.Run(context.Background(), bus, req)
	require.NoError(t, err)
	require.Len(t, metadata.messages, 1)
	require.Equal(t, "Revenue was 42.", metadata.messages[0])

	var sawCompleted, sawLLMToken bool
	events := bus.Events()
drain:
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case eventbus.KindCompleted:
				sawCompleted = true
			case eventbus.KindLLMToken:
				sawLLMToken = true
			}
		default:
			break drain
		}
	}
	require.True(t, sawCompleted, "expected a completed event on the bus")
	require.True(t, sawLLMToken, "expected at least one llm_token event on the bus")
}

// scriptedLLM dispatches structured calls on the system prompt handed to
// them and replays one streaming JSON per answerer pass, so a full
// runComplex sequence (intent -> extractor -> facts -> answerer -> quality
// gate -> second answerer) can run against canned responses.
type scriptedLLM struct {
	intentJSON    string
	extractorJSON string
	factsJSON     string
	streamJSONs   []string
	streamCalls   int
	prompts       Prompts
}

func (f *scriptedLLM) GenerateStructured(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema) (string, error) {
	switch systemPrompt {
	case f.prompts.IntentRouter:
		return f.intentJSON, nil
	case f.prompts.Extractor:
		return f.extractorJSON, nil
	case f.prompts.FactsExtractor:
		return f.factsJSON, nil
	}
	return "{}", nil
}

func (f *scriptedLLM) GenerateStream(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema, onChunk func(llmadapter.StreamChunk) error) error {
	idx := f.streamCalls
	f.streamCalls++
	if idx >= len(f.streamJSONs) {
		idx = len(f.streamJSONs) - 1
	}
	if err := onChunk(llmadapter.StreamChunk{Kind: llmadapter.ChunkText, Text: f.streamJSONs[idx]}); err != nil {
		return err
	}
	return onChunk(llmadapter.StreamChunk{Kind: llmadapter.ChunkDone})
}

func (f *scriptedLLM) UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (string, error) {
	return "uploaded://" + name, nil
}

const complexGateMarkdown = `## page 1

### BLOCK [TEXT]: ZZZZ-ZZZZ-001
Plain totals paragraph for the report.

### BLOCK [IMAGE]: ZZZZ-ZZZZ-002
Chart image.
`

// A visual question whose first answer neither cites a ROI nor requests a
// follow-up must trigger the post-answer quality gate: with zero rendered
// images in the materials, the gate picks the unrepresented IMAGE block as
// a synthetic follow-up and the answerer runs a second pass.
func TestOrchestratorRunComplexQualityGateForcesSecondPass(t *testing.T) {
	prompts := Prompts{
		IntentRouter:   "intent system prompt",
		Extractor:      "extractor system prompt",
		FactsExtractor: "facts system prompt",
		Answerer:       "answer system prompt",
		ROIRequester:   "roi system prompt",
	}
	llm := &scriptedLLM{
		intentJSON:    `{"requires_visual_detail":true}`,
		extractorJSON: `{"selected_blocks":[{"block_id":"ZZZZ-ZZZZ-001","block_kind":"TEXT"}]}`,
		factsJSON:     `{}`,
		streamJSONs: []string{
			`{"answer_markdown":"Text-only answer with no visual evidence."}`,
			`{"answer_markdown":"The chart shows 42.","citations":[{"block_id":"ZZZZ-ZZZZ-002","kind":"image_block"}]}`,
		},
		prompts: prompts,
	}
	metadata := &fakeMetadataStore{
		artifacts: map[string]store.DocumentArtifacts{
			"doc-1": {MarkdownKey: "doc-1.md"},
		},
	}
	objects := &fakeObjectStore{
		objects: map[string][]byte{
			"doc-1.md": []byte(complexGateMarkdown),
		},
	}

	o := New(metadata, objects, llm, nil, llmadapter.ModelNames{Flash: "flash-model", Pro: "pro-model"},
		llmadapter.GenerationParams{}, prompts, t.TempDir(), discardLogger())

	bus := eventbus.New(64)
	req := Request{
		RequestID:     "req-2",
		ChatID:        "chat-2",
		UserMessage:   "What does the chart show?",
		UserMessageID: "user-msg-2",
		Profile:       ProfileComplex,
		DocumentIDs:   []string{"doc-1"},
	}

	err := o.Run(context.Background(), bus, req)
	require.NoError(t, err)

	require.Equal(t, 2, llm.streamCalls, "quality gate must force a second answerer pass")
	require.Len(t, metadata.messages, 1)
	require.Equal(t, "The chart shows 42.", metadata.messages[0])
}
