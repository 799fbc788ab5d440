package orchestrator

import "fmt"

// Kind is the closed error taxonomy. Every fatal stage failure is wrapped
// in a PipelineError carrying one of these kinds before it reaches the
// event bus, so the emitted error event's "kind" field is always one of
// this fixed set.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindQueueFull         Kind = "queue_full"
	KindQueueTimeout      Kind = "queue_timeout"
	KindArtifactMissing   Kind = "artifact_missing"
	KindLLMSchemaViolation Kind = "llm_schema_violation"
	KindTransientExternal Kind = "transient_external"
	KindCacheIOError      Kind = "cache_io_error"
	KindUnknown           Kind = "unknown"
)

// PipelineError is the fatal-error shape the orchestrator emits as an
// `error` event and returns from Run. Non-fatal failures (artifact_missing,
// cache_io_error) are handled inline by the stage that hits them, logged
// and skipped, and never reach this type.
type PipelineError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orchestrator: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func newPipelineError(kind Kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}
