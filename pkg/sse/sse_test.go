package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame_RendersNameAndJSONPayload(t *testing.T) {
	out := Frame("llm_token", map[string]string{"delta": "hi"})
	assert.Equal(t, "event: llm_token\ndata: {\"delta\":\"hi\"}\n\n", out)
}

func TestFrame_UnmarshalableDataFramesAsError(t *testing.T) {
	out := Frame("llm_token", make(chan int))
	assert.Contains(t, out, "event: error")
}
