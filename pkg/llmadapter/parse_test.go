package llmadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerPayload struct {
	AnswerMarkdown string `json:"answer_markdown"`
}

func TestParseTolerantJSON_StrictSucceeds(t *testing.T) {
	var out answerPayload
	err := ParseTolerantJSON(`{"answer_markdown":"hi"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.AnswerMarkdown)
}

func TestParseTolerantJSON_BraceSliceRecovers(t *testing.T) {
	var out answerPayload
	raw := "Here is the JSON:\n```json\n{\"answer_markdown\":\"hi\"}\n```\nthanks"
	err := ParseTolerantJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.AnswerMarkdown)
}

func TestParseTolerantJSON_BothFail(t *testing.T) {
	var out answerPayload
	err := ParseTolerantJSON("no json here at all", &out)
	require.ErrorIs(t, err, ErrSchemaViolation)
}
