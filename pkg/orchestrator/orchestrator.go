// Package orchestrator turns one user question plus a set of referenced
// documents into a single persisted assistant answer, staging an intent
// router, a per-document extraction pass, a coverage/retrieval pass, a
// materials-assembly pass, and a streaming answerer behind a bounded
// iterative quality-gate/follow-up loop.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aizoomdoc/docpipeline/pkg/dialoglog"
	"github.com/aizoomdoc/docpipeline/pkg/evidence"
	"github.com/aizoomdoc/docpipeline/pkg/eventbus"
	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/materials"
	"github.com/aizoomdoc/docpipeline/pkg/store"
	"google.golang.org/genai"
)

// llmClient is the narrow slice of *llmadapter.Adapter the pipeline needs,
// kept as a local interface (rather than depending on the concrete type
// directly) so tests can substitute a fake instead of a real provider
// client. *llmadapter.Adapter satisfies it unmodified.
type llmClient interface {
	GenerateStructured(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema) (string, error)
	GenerateStream(ctx context.Context, tier llmadapter.Tier, systemPrompt, userPrompt string, files []llmadapter.UploadedFile, params llmadapter.GenerationParams, schema *genai.Schema, onChunk func(llmadapter.StreamChunk) error) error
	UploadFile(ctx context.Context, name string, payload []byte, mimeType string) (uri string, err error)
}

// Profile selects which stage sequence a request runs.
type Profile string

const (
	ProfileSimple  Profile = "simple"
	ProfileComplex Profile = "complex"
	ProfileCompare Profile = "compare"
)

// maxFollowupIterations caps the quality-gate follow-up loop; the last
// produced answer is final regardless of cap exhaustion.
const maxFollowupIterations = 5

// maxQualityGateImagePicks bounds how many never-rendered IMAGE blocks the
// quality gate picks when materials had no images.
const maxQualityGateImagePicks = 3

// factsMaxInputChars bounds the selected TEXT/TABLE content fed to the
// facts-extraction call.
const factsMaxInputChars = 18000

// intentSnippetMaxChars bounds the context snippet fed to the intent
// router.
const intentSnippetMaxChars = 1200

// Request is one admitted user question to answer.
type Request struct {
	RequestID     string
	ChatID        string
	UserMessage   string
	UserMessageID string // rendered images link to this message, not the assistant's
	Profile       Profile
	DocumentIDs   []string // simple/complex: documents in scope
	CompareA      []string // compare: side A's disjoint document set
	CompareB      []string // compare: side B's disjoint document set
}

func (r Request) allDocumentIDs() []string {
	if r.Profile == ProfileCompare {
		return append(append([]string{}, r.CompareA...), r.CompareB...)
	}
	return r.DocumentIDs
}

// Prompts holds the system-prompt text for every LLM call the pipeline
// makes. System prompt storage and versioning belong to the surrounding
// application; the orchestrator only ever consumes prompt text handed to
// it.
type Prompts struct {
	IntentRouter   string
	Extractor      string
	FactsExtractor string
	Answerer       string
	ROIRequester   string
}

// Orchestrator is a process-wide, stateless-per-call pipeline runner. All
// per-request state lives in the unexported run type constructed fresh by
// Run.
type Orchestrator struct {
	metadata store.MetadataStore
	objects  store.ObjectStore
	llm      llmClient
	renderer *evidence.Renderer

	models    llmadapter.ModelNames
	genParams llmadapter.GenerationParams
	prompts   Prompts

	logDir        string
	truncateChars int
	logger        *slog.Logger
}

// New constructs an Orchestrator.
func New(
	metadata store.MetadataStore,
	objects store.ObjectStore,
	llm llmClient,
	renderer *evidence.Renderer,
	models llmadapter.ModelNames,
	genParams llmadapter.GenerationParams,
	prompts Prompts,
	logDir string,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		metadata:      metadata,
		objects:       objects,
		llm:           llm,
		renderer:      renderer,
		models:        models,
		genParams:     genParams,
		prompts:       prompts,
		logDir:        logDir,
		truncateChars: dialoglog.DefaultTruncateChars,
		logger:        logger,
	}
}

// Run executes req's full stage sequence, emitting events onto bus, and
// returns nil on normal completion. Any fatal stage failure is logged,
// emitted as an `error` event, and returned as a *PipelineError; the caller
// (typically pkg/queue's admission wrapper) is responsible for releasing
// the queue slot, which it always does in a guaranteed-on-exit block.
func (o *Orchestrator) Run(ctx context.Context, bus *eventbus.Bus, req Request) error {
	r := &run{
		o:       o,
		req:     req,
		bus:     bus,
		dialog:  dialoglog.New(o.logDir, req.ChatID, o.truncateChars),
		docSide: map[string]string{},
	}
	r.materialsBuilder = materials.New(o.metadata, o.objects, o.renderer, o.llm, r.dialog, o.logger)

	answer, err := r.execute(ctx)
	if err != nil {
		var perr *PipelineError
		if !errors.As(err, &perr) {
			perr = newPipelineError(KindUnknown, "unhandled pipeline failure", err)
		}
		o.logger.Error("orchestrator: pipeline failed", "request_id", req.RequestID, "kind", perr.Kind, "error", perr.Err)
		_ = bus.Error(ctx, string(perr.Kind), perr.Error())
		return perr
	}

	messageID, err := o.metadata.AddMessage(ctx, req.ChatID, "assistant", answer.AnswerMarkdown)
	if err != nil {
		perr := newPipelineError(KindTransientExternal, "persist assistant message", err)
		_ = bus.Error(ctx, string(perr.Kind), perr.Error())
		return perr
	}

	for _, img := range r.materialsJSON.Images {
		if err := o.metadata.AddChatImage(ctx, req.ChatID, req.UserMessageID, img.BlockID, string(img.Kind), img.PublicURL); err != nil {
			o.logger.Warn("orchestrator: failed to link rendered image", "block_id", img.BlockID, "error", err)
		}
	}

	model := o.models.Flash
	if r.req.Profile != ProfileSimple {
		model = o.models.Pro
	}
	if err := bus.LLMFinal(ctx, answer.AnswerMarkdown, model); err != nil {
		return err
	}
	return bus.Completed(ctx, messageID)
}

