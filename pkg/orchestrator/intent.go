package orchestrator

import (
	"context"

	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// classifyIntent is a cheap flash-tier call that decides whether the
// question needs visual detail and which pages/topics
// matter, so the coverage pass in complex mode can bias its scoring. A
// failure here is never fatal; it degrades to the zero-value intent, which
// simply means no page is preferred and no extra visual weight is applied.
func (r *run) classifyIntent(ctx context.Context) types.AnalysisIntent {
	snippet := r.combinedContext(intentSnippetMaxChars)

	raw, err := r.o.llm.GenerateStructured(ctx, llmadapter.TierFlash,
		r.o.prompts.IntentRouter, buildIntentUserPrompt(r.req.UserMessage, snippet),
		nil, r.o.genParams, llmadapter.AnalysisIntentSchema())
	if err != nil {
		r.o.logger.Warn("orchestrator: intent classification failed", "request_id", r.req.RequestID, "error", err)
		return types.AnalysisIntent{}
	}

	var intent types.AnalysisIntent
	if err := llmadapter.ParseTolerantJSON(raw, &intent); err != nil {
		r.o.logger.Warn("orchestrator: intent response did not parse", "request_id", r.req.RequestID, "error", err)
		return types.AnalysisIntent{}
	}
	return intent
}

func buildIntentUserPrompt(question, snippet string) string {
	return "Question: " + question + "\n\nDocument excerpt:\n" + snippet
}

func preferredPageSet(pages []int) map[int]bool {
	if len(pages) == 0 {
		return nil
	}
	out := make(map[int]bool, len(pages))
	for _, p := range pages {
		out[p] = true
	}
	return out
}
