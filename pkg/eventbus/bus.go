package eventbus

import (
	"context"
	"sync"
	"time"
)

// Bus is a per-request ordered event channel: one producer (the pipeline),
// one consumer (the transport layer, outside this package's scope). It
// never reorders and never drops events; if the consumer disappears the
// producer detects back-pressure at the next Emit and aborts cooperatively.
type Bus struct {
	events   chan Event
	done     chan struct{}
	sendOnce sync.Once
}

// New constructs a Bus with the given channel buffer depth.
func New(buffer int) *Bus {
	return &Bus{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events returns the read side of the bus for the consumer/transport layer.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Close signals that the consumer is gone; subsequent Emit calls return
// ErrConsumerGone instead of blocking forever.
func (b *Bus) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// CloseSend marks the producer side finished and closes the event channel,
// so a consumer ranging over Events terminates once it drains the buffer.
// Call only after the last emit has returned; idempotent.
func (b *Bus) CloseSend() {
	b.sendOnce.Do(func() { close(b.events) })
}

// emit pushes kind/data onto the bus, honouring ctx cancellation and a
// closed consumer as cooperative-abort signals.
func (b *Bus) emit(ctx context.Context, kind Kind, data any) error {
	ev := Event{Kind: kind, Timestamp: time.Now().UTC(), Data: data}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) PhaseStarted(ctx context.Context, phase string) error {
	return b.emit(ctx, KindPhaseStarted, PhaseStartedData{Phase: phase})
}

func (b *Bus) PhaseProgress(ctx context.Context, phase, message string) error {
	return b.emit(ctx, KindPhaseProgress, PhaseProgressData{Phase: phase, Message: message})
}

func (b *Bus) LLMToken(ctx context.Context, delta, accumulated string) error {
	return b.emit(ctx, KindLLMToken, LLMTokenData{Delta: delta, Accumulated: accumulated})
}

func (b *Bus) LLMThinking(ctx context.Context, delta string) error {
	return b.emit(ctx, KindLLMThinking, LLMThinkingData{Delta: delta})
}

func (b *Bus) LLMFinal(ctx context.Context, content, model string) error {
	return b.emit(ctx, KindLLMFinal, LLMFinalData{Content: content, Model: model})
}

func (b *Bus) ToolCall(ctx context.Context, name string, args any) error {
	return b.emit(ctx, KindToolCall, ToolCallData{Name: name, Args: args})
}

func (b *Bus) ImageReady(ctx context.Context, blockID, kind, url string) error {
	return b.emit(ctx, KindImageReady, ImageReadyData{BlockID: blockID, Kind: kind, URL: url})
}

func (b *Bus) QueuePosition(ctx context.Context, position int, estimatedWait float64, active, size int) error {
	return b.emit(ctx, KindQueuePosition, QueuePositionData{
		Position: position, EstimatedWaitSeconds: estimatedWait, ActiveRequests: active, QueueSize: size,
	})
}

func (b *Bus) ProcessingStarted(ctx context.Context, requestID string) error {
	return b.emit(ctx, KindProcessingStarted, ProcessingStartedData{RequestID: requestID})
}

func (b *Bus) Error(ctx context.Context, kind, message string) error {
	return b.emit(ctx, KindError, ErrorData{Kind: kind, Message: message})
}

func (b *Bus) Completed(ctx context.Context, messageID string) error {
	return b.emit(ctx, KindCompleted, CompletedData{MessageID: messageID})
}
