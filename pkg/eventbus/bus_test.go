package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_OrderedDelivery(t *testing.T) {
	bus := New(10)
	ctx := context.Background()

	require.NoError(t, bus.PhaseStarted(ctx, "processing"))
	require.NoError(t, bus.LLMToken(ctx, "Hel", "Hel"))
	require.NoError(t, bus.LLMToken(ctx, "lo", "Hello"))
	require.NoError(t, bus.LLMFinal(ctx, "Hello", "flash"))
	require.NoError(t, bus.Completed(ctx, "msg-1"))
	bus.CloseSend()

	var kinds []Kind
	for ev := range bus.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{KindPhaseStarted, KindLLMToken, KindLLMToken, KindLLMFinal, KindCompleted}, kinds)
}

func TestBus_TokenAccumulationMonotonic(t *testing.T) {
	bus := New(10)
	ctx := context.Background()
	require.NoError(t, bus.LLMToken(ctx, "a", "a"))
	require.NoError(t, bus.LLMToken(ctx, "b", "ab"))
	bus.CloseSend()

	var lens []int
	for ev := range bus.Events() {
		data := ev.Data.(LLMTokenData)
		lens = append(lens, len(data.Accumulated))
	}
	require.Len(t, lens, 2)
	assert.LessOrEqual(t, lens[0], lens[1])
}

func TestBus_EmitAfterCloseReturnsConsumerGone(t *testing.T) {
	bus := New(0)
	bus.Close()
	err := bus.PhaseStarted(context.Background(), "x")
	assert.ErrorIs(t, err, ErrConsumerGone)
}

func TestBus_EmitRespectsContextCancellation(t *testing.T) {
	bus := New(0) // unbuffered: Emit blocks until a reader or cancellation
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bus.PhaseStarted(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
