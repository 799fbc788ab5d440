// Package eventbus implements the per-request, single-consumer, ordered
// typed event stream the pipeline emits. Every request gets its own Bus;
// nothing here is shared process-wide state.
//
// Two emission patterns recur across stages:
//
//   PROGRESS: PhaseStarted -> zero or more PhaseProgress/LLMToken/LLMThinking
//   -> PhaseStarted for the next phase, and so on.
//   TERMINAL: exactly one of Completed or Error is always the very last
//   event on the bus.
package eventbus

import "time"

// Kind is the closed set of event kinds a Bus can carry.
type Kind string

const (
	KindPhaseStarted      Kind = "phase_started"
	KindPhaseProgress     Kind = "phase_progress"
	KindLLMToken          Kind = "llm_token"
	KindLLMThinking       Kind = "llm_thinking"
	KindLLMFinal          Kind = "llm_final"
	KindToolCall          Kind = "tool_call"
	KindImageReady        Kind = "image_ready"
	KindQueuePosition     Kind = "queue_position"
	KindProcessingStarted Kind = "processing_started"
	KindError             Kind = "error"
	KindCompleted         Kind = "completed"
)

// Event is one typed, timestamped item on the bus.
type Event struct {
	Kind      Kind      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// PhaseStartedData names the phase beginning.
type PhaseStartedData struct {
	Phase string `json:"phase"`
}

// PhaseProgressData carries a human-readable progress note for the current phase.
type PhaseProgressData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// LLMTokenData carries the cumulative answer_markdown text extracted so
// far from the streaming JSON partial, never the raw JSON surface.
type LLMTokenData struct {
	Delta      string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// LLMThinkingData carries a reasoning/thinking token delta.
type LLMThinkingData struct {
	Delta string `json:"delta"`
}

// LLMFinalData carries the final decoded answer content and the model tier
// that produced it.
type LLMFinalData struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// ToolCallData describes one tool invocation made during the pipeline.
type ToolCallData struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

// ImageReadyData announces a newly rendered material image, emitted at
// most once per (block_id, kind, bbox) per request.
type ImageReadyData struct {
	BlockID string `json:"block_id"`
	Kind    string `json:"kind"`
	URL     string `json:"public_url,omitempty"`
}

// QueuePositionData is the queue_position wire payload.
type QueuePositionData struct {
	Position             int     `json:"position"`
	EstimatedWaitSeconds  float64 `json:"estimated_wait_seconds"`
	ActiveRequests        int     `json:"active_requests"`
	QueueSize             int     `json:"queue_size"`
}

// ProcessingStartedData is the processing_started wire payload.
type ProcessingStartedData struct {
	RequestID string `json:"request_id"`
}

// ErrorData carries a taxonomy-tagged error message.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CompletedData marks normal pipeline completion.
type CompletedData struct {
	MessageID string `json:"message_id,omitempty"`
}
