// Command demo wires the core's process-wide handles (config, render
// cache, evidence renderer, LLM adapter, orchestrator, request queue,
// deletion worker) and drives one question through the full pipeline
// against in-memory store/object-store stand-ins, printing the resulting
// event stream in SSE wire format. It exercises the whole system without
// an HTTP/SSE transport, which belongs to the surrounding application.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aizoomdoc/docpipeline/pkg/config"
	"github.com/aizoomdoc/docpipeline/pkg/deletion"
	"github.com/aizoomdoc/docpipeline/pkg/evidence"
	"github.com/aizoomdoc/docpipeline/pkg/eventbus"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/orchestrator"
	"github.com/aizoomdoc/docpipeline/pkg/queue"
	"github.com/aizoomdoc/docpipeline/pkg/rendercache"
	"github.com/aizoomdoc/docpipeline/pkg/sse"
	"github.com/aizoomdoc/docpipeline/pkg/store"
	"github.com/aizoomdoc/docpipeline/pkg/version"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedMarkdown is the demo document's Markdown block stream: one TEXT
// block and one IMAGE block so the default run can exercise both the
// plain-answer path and the quality-gate image follow-up path.
const seedMarkdown = `## Page 1

### BLOCK [TEXT]: AAAA-BBBB-001
The invoice total for Q1 is $42,500, itemised across three line items.
→AAAA-BBBB-002

## Page 2

### BLOCK [IMAGE]: AAAA-BBBB-002
Chart showing quarterly spend breakdown by category.
`

const seedBlocksIndex = `{
  "blocks": [
    {"block_id": "AAAA-BBBB-002", "crop_url": "crops/aaaa-bbbb-002.pdf", "page": 2, "block_type": "IMAGE"}
  ]
}`

// minimalPDF is a syntactically-valid near-empty single-page PDF, enough to
// satisfy the "%PDF" magic-byte gate pkg/materials checks before handing
// bytes to pkg/evidence's rasteriser.
var minimalPDF = []byte("%PDF-1.4\n1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 200 200]>>endobj\ntrailer<</Root 1 0 R>>\n%%EOF")

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	question := flag.String("question", "What is the Q1 invoice total?", "user question to run through the pipeline")
	profile := flag.String("profile", "complex", "pipeline profile: simple, complex, or compare")
	apiKey := flag.String("api-key", os.Getenv("GEMINI_API_KEY"), "LLM provider API key (env GEMINI_API_KEY)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Info("demo: starting", "version", version.Full(), "config_dir", *configDir, "log_level", cfg.Server.LogLevel)

	if *apiKey == "" {
		log.Fatal("demo: set GEMINI_API_KEY (or -api-key) to run the pipeline against a real LLM provider")
	}

	ctx := context.Background()

	cache, err := rendercache.New(rendercache.Config{
		Dir:        cfg.Cache.Dir,
		MaxBytes:   int64(cfg.Cache.MaxMB) * 1024 * 1024,
		TTL:        time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
		HotEntries: 256,
	}, logger)
	if err != nil {
		log.Fatalf("open render cache: %v", err)
	}
	defer cache.Close()

	renderer := evidence.New(cache, evidence.Config{
		PreviewMaxSide:      cfg.Render.PreviewMaxSide,
		ZoomPreviewMaxSide:  cfg.Render.ZoomPreviewMaxSide,
		AutoQuadrantsThresh: cfg.Render.AutoQuadrantsThreshold,
	})

	models := llmadapter.ModelNames{Flash: cfg.LLM.DefaultFlashModel, Pro: cfg.LLM.DefaultProModel}
	llm, err := llmadapter.New(ctx, *apiKey, models)
	if err != nil {
		log.Fatalf("create llm adapter: %v", err)
	}

	temperature := cfg.LLM.Temperature
	topP := cfg.LLM.TopP
	genParams := llmadapter.GenerationParams{
		Temperature:     &temperature,
		TopP:            &topP,
		MaxOutputTokens: cfg.LLM.MaxTokens,
		ThinkingBudget:  cfg.LLM.ThinkingBudget,
		MediaResolution: llmadapter.MediaResolution(cfg.LLM.MediaResolution),
	}

	metadata := newMemMetadataStore()
	objects := newMemObjectStore()
	seedDemoDocument(metadata, objects)

	deleter := deletion.New(metadata, objects, logDir(*configDir), 100, logger)
	deleter.Start(ctx)
	defer deleter.Stop()

	orch := orchestrator.New(
		metadata,
		objects,
		llm,
		renderer,
		models,
		genParams,
		defaultPrompts(),
		logDir(*configDir),
		logger,
	)

	q := queue.New(queue.Config{
		MaxConcurrent:  cfg.Queue.MaxConcurrent,
		MaxSize:        cfg.Queue.MaxSize,
		TimeoutSeconds: cfg.Queue.TimeoutSeconds,
	})

	chatID := uuid.NewString()
	requestID := uuid.NewString()
	userMessageID, err := metadata.AddMessage(ctx, chatID, "user", *question)
	if err != nil {
		log.Fatalf("persist user message: %v", err)
	}

	req := orchestrator.Request{
		RequestID:     requestID,
		ChatID:        chatID,
		UserMessage:   *question,
		UserMessageID: userMessageID,
		Profile:       orchestrator.Profile(*profile),
		DocumentIDs:   []string{demoDocumentID},
	}

	// One-way consumer: read until the terminal event (completed or
	// error), then stop reading and let the producer know via Close so any
	// still-inflight emit aborts cooperatively.
	bus := eventbus.New(32)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for ev := range bus.Events() {
			fmt.Print(sse.Frame(string(ev.Kind), ev.Data))
			if ev.Kind == eventbus.KindCompleted || ev.Kind == eventbus.KindError {
				bus.Close()
				return
			}
		}
	}()

	runErr := q.ExecuteWithQueue(ctx, requestID, chatID, bus, func(ctx context.Context, bus *eventbus.Bus) error {
		return orch.Run(ctx, bus, req)
	})
	bus.Close()
	<-consumerDone

	if runErr != nil {
		log.Fatalf("pipeline run failed: %v", runErr)
	}
}

const demoDocumentID = "doc-0001"

func seedDemoDocument(metadata *memMetadataStore, objects *memObjectStore) {
	const markdownKey = "documents/doc-0001/result.md"
	const blocksIndexKey = "documents/doc-0001/blocks.json"
	const cropKey = "crops/aaaa-bbbb-002.pdf"

	objects.seed(markdownKey, []byte(seedMarkdown))
	objects.seed(blocksIndexKey, []byte(seedBlocksIndex))
	objects.seed(cropKey, minimalPDF)

	metadata.registerDocument(demoDocumentID, store.DocumentArtifacts{
		MarkdownKey:    markdownKey,
		BlocksIndexKey: blocksIndexKey,
	})
	metadata.registerCrop("AAAA-BBBB-002", store.CropRef{StorageKey: cropKey, PageHint: 0})
}

func logDir(configDir string) string {
	return strings.TrimSuffix(configDir, "/") + "/logs"
}

// defaultPrompts are the system-prompt texts cmd/demo hands to the
// orchestrator; a real deployment sources these from the surrounding
// application's prompt storage.
func defaultPrompts() orchestrator.Prompts {
	return orchestrator.Prompts{
		IntentRouter: "Classify the analysis intent of the user question against the supplied document snippet. " +
			"Set requires_visual_detail=true when the question asks about a chart, figure, diagram, or layout.",
		Extractor: "Select the blocks from the supplied document that are relevant to the user question. " +
			"Request renders for any IMAGE block whose content is needed to answer precisely.",
		FactsExtractor: "Extract structured facts (key/value pairs and tabular data) from the supplied TEXT/TABLE " +
			"block content relevant to the user question.",
		Answerer: "Answer the user's question using only the supplied MATERIALS_JSON blocks and images. " +
			"Cite every claim with the block_id it came from. Set needs_more_evidence and follow-up requests " +
			"when the answer requires a visual detail not present in the supplied materials.",
		ROIRequester: "The previous answer needed visual detail it did not have. Propose a tightly scoped " +
			"region-of-interest on one of the already-selected IMAGE blocks that would resolve it.",
	}
}
