// Package llmadapter is the narrow adapter over the LLM provider:
// structured (schema-constrained) calls and token-streaming calls, with
// user-level generation knobs mapped onto the provider SDK.
package llmadapter

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

// MediaResolution is the closed set of media-resolution knobs a caller
// may request.
type MediaResolution string

const (
	MediaResolutionLow    MediaResolution = "low"
	MediaResolutionMedium MediaResolution = "medium"
	MediaResolutionHigh   MediaResolution = "high"
)

// Tier selects which underlying model a call uses. Tier is an explicit
// parameter everywhere a call site needs one, never inherited from ambient
// pipeline state.
type Tier string

const (
	TierFlash Tier = "flash"
	TierPro   Tier = "pro"
)

// GenerationParams are the user-level knobs mapped onto the underlying
// provider call.
type GenerationParams struct {
	Temperature     *float32
	TopP            *float32
	MaxOutputTokens int32
	ThinkingBudget  int32 // 0 => provider default
	MediaResolution MediaResolution
}

// UploadedFile references a file already uploaded to the provider's file
// API, by URI and (optionally inferred) MIME type.
type UploadedFile struct {
	URI      string
	MIMEType string
}

// InferMIME returns MIMEType when it is set, otherwise the type inferred
// from the URI's suffix, or application/octet-stream when that is unknown.
// It does not modify f.
func (f UploadedFile) InferMIME() string {
	if f.MIMEType != "" {
		return f.MIMEType
	}
	if t := mime.TypeByExtension(filepath.Ext(f.URI)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ModelNames maps a Tier to the configured concrete model name.
type ModelNames struct {
	Flash string
	Pro   string
}

func (m ModelNames) For(tier Tier) string {
	if tier == TierPro {
		return m.Pro
	}
	return m.Flash
}

// Adapter wraps a genai.Client with the two calling modes the pipeline
// uses. It is stateless per call and safe for concurrent use.
type Adapter struct {
	client *genai.Client
	models ModelNames
}

// New constructs an Adapter using the Gemini API backend.
func New(ctx context.Context, apiKey string, models ModelNames) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmadapter: create client: %w", err)
	}
	return &Adapter{client: client, models: models}, nil
}

func buildConfig(params GenerationParams, responseSchema *genai.Schema) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if params.Temperature != nil {
		cfg.Temperature = params.Temperature
	}
	if params.TopP != nil {
		cfg.TopP = params.TopP
	}
	if params.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = params.MaxOutputTokens
	}
	if params.ThinkingBudget > 0 {
		budget := params.ThinkingBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget, IncludeThoughts: true}
	}
	switch params.MediaResolution {
	case MediaResolutionLow:
		cfg.MediaResolution = genai.MediaResolutionLow
	case MediaResolutionMedium:
		cfg.MediaResolution = genai.MediaResolutionMedium
	case MediaResolutionHigh:
		cfg.MediaResolution = genai.MediaResolutionHigh
	}
	if responseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = responseSchema
	}
	return cfg
}

func buildContents(systemPrompt, userPrompt string, files []UploadedFile) []*genai.Content {
	var parts []*genai.Part
	if systemPrompt != "" {
		parts = append(parts, &genai.Part{Text: systemPrompt})
	}
	if userPrompt != "" {
		parts = append(parts, &genai.Part{Text: userPrompt})
	}
	for _, f := range files {
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{FileURI: f.URI, MIMEType: f.InferMIME()},
		})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// GenerateStructured makes a single schema-constrained call and returns the
// raw JSON text of the response, for the caller to decode with
// ParseTolerantJSON.
func (a *Adapter) GenerateStructured(ctx context.Context, tier Tier, systemPrompt, userPrompt string, files []UploadedFile, params GenerationParams, schema *genai.Schema) (string, error) {
	model := a.models.For(tier)
	contents := buildContents(systemPrompt, userPrompt, files)
	cfg := buildConfig(params, schema)

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("llmadapter: generate: %w", err)
	}
	return resp.Text(), nil
}

// StreamChunk is one piece of a streaming response.
type StreamChunk struct {
	Kind ChunkKind
	Text string
}

// ChunkKind is the closed set of streaming chunk kinds.
type ChunkKind string

const (
	ChunkThinking ChunkKind = "thinking"
	ChunkText     ChunkKind = "text"
	ChunkDone     ChunkKind = "done"
)

// GenerateStream makes a streaming call, invoking onChunk for every piece of
// text as it arrives (thinking parts and answer parts delivered separately),
// and returns once the stream completes.
func (a *Adapter) GenerateStream(ctx context.Context, tier Tier, systemPrompt, userPrompt string, files []UploadedFile, params GenerationParams, schema *genai.Schema, onChunk func(StreamChunk) error) error {
	model := a.models.For(tier)
	contents := buildContents(systemPrompt, userPrompt, files)
	cfg := buildConfig(params, schema)

	for result, err := range a.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("llmadapter: stream: %w", err)
		}
		if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
			continue
		}
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			kind := ChunkText
			if part.Thought {
				kind = ChunkThinking
			}
			if err := onChunk(StreamChunk{Kind: kind, Text: part.Text}); err != nil {
				return err
			}
		}
	}
	return onChunk(StreamChunk{Kind: ChunkDone})
}

// SuffixMIME infers a MIME type from a filename suffix (exported for
// callers building UploadedFile values outside this package).
func SuffixMIME(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(strings.ToLower(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
