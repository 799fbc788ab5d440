package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aizoomdoc/docpipeline/pkg/llmadapter"
	"github.com/aizoomdoc/docpipeline/pkg/types"
)

// runAnswerer makes a single streaming, schema-constrained call over the
// assembled materials, emitting llm_thinking/llm_token events as the
// answer_markdown field is revealed incrementally, then decoding the full
// structured response once the stream completes.
func (r *run) runAnswerer(ctx context.Context, tier llmadapter.Tier, materials types.MaterialsJSON, extraContext string, intent types.AnalysisIntent) (types.AnswerResponse, error) {
	if r.req.Profile == ProfileCompare {
		extraContext += "\nCompare DOC_A against DOC_B; populate the diff field with one entry per point of comparison."
	}

	userPrompt, err := buildAnswererUserPrompt(r.req.UserMessage, materials, intent, extraContext)
	if err != nil {
		return types.AnswerResponse{}, newPipelineError(KindUnknown, "assemble answerer prompt", err)
	}

	files := uploadedFilesFor(materials)

	var jsonBuf, answerSoFar string
	extractor := &llmadapter.PartialAnswerExtractor{}

	err = r.o.llm.GenerateStream(ctx, tier, r.o.prompts.Answerer, userPrompt, files, r.o.genParams, llmadapter.AnswerResponseSchema(),
		func(chunk llmadapter.StreamChunk) error {
			switch chunk.Kind {
			case llmadapter.ChunkThinking:
				return r.bus.LLMThinking(ctx, chunk.Text)
			case llmadapter.ChunkText:
				jsonBuf += chunk.Text
				full := extractor.Feed(jsonBuf)
				delta := full[len(answerSoFar):]
				answerSoFar = full
				if delta == "" {
					return nil
				}
				return r.bus.LLMToken(ctx, delta, full)
			default:
				return nil
			}
		})
	if err != nil {
		return types.AnswerResponse{}, newPipelineError(KindTransientExternal, "answerer stream", err)
	}

	var answer types.AnswerResponse
	if err := llmadapter.ParseTolerantJSON(jsonBuf, &answer); err != nil {
		return types.AnswerResponse{}, newPipelineError(KindLLMSchemaViolation, "answerer response", err)
	}
	return answer, nil
}

func buildAnswererUserPrompt(question string, materials types.MaterialsJSON, intent types.AnalysisIntent, extraContext string) (string, error) {
	payload, err := json.Marshal(materials)
	if err != nil {
		return "", fmt.Errorf("marshal materials: %w", err)
	}
	intentPayload, err := json.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("marshal intent: %w", err)
	}
	prompt := fmt.Sprintf("Question: %s\n\nMaterials:\n%s\n\nAnalysis intent:\n%s\n", question, payload, intentPayload)
	if extraContext != "" {
		prompt += "\nAdditional context:\n" + extraContext + "\n"
	}
	return prompt, nil
}

func uploadedFilesFor(materials types.MaterialsJSON) []llmadapter.UploadedFile {
	var files []llmadapter.UploadedFile
	for _, img := range materials.Images {
		if img.PNGURI == "" {
			continue
		}
		files = append(files, llmadapter.UploadedFile{URI: img.PNGURI, MIMEType: "image/png"})
	}
	return files
}
