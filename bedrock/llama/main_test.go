package llama

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

func TestParseRequest(t *testing.T) {
	prompt := "<|begin_of_text|><|start_header_id|>user<|end_header_id|>What's your name?<|eot_id|>"
	req, err := (&Parser{}).ParseRequest([]byte(`{"prompt":"` + prompt + `","max_gen_len":128}`))
	require.NoError(t, err)
	require.True(t, req.HasPrompt)
	require.Equal(t, prompt, req.Prompt)
}

func TestParseResponse(t *testing.T) {
	resp, err := (&Parser{}).ParseResponse([]byte(`{"generation":"I am Llama.","prompt_token_count":10,"generation_token_count":4,"stop_reason":"stop"}`))
	require.NoError(t, err)
	require.True(t, resp.HasCompletion)
	require.Equal(t, "I am Llama.", resp.Completion)
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, &utils.Usage{InputTokens: 10, OutputTokens: 4}, resp.Usage)

	resp, err = (&Parser{}).ParseResponse([]byte(`{"outputs":[]}`))
	require.NoError(t, err)
	require.False(t, resp.HasCompletion)
	require.Nil(t, resp.Usage)
}

func TestParseStreamChunk(t *testing.T) {
	chunk, err := (&Parser{}).ParseStreamChunk([]byte(`{"generation":" Llama","prompt_token_count":null,"generation_token_count":2,"stop_reason":null}`))
	require.NoError(t, err)
	require.Equal(t, " Llama", chunk.Text)
	require.Empty(t, chunk.StopReason)
	require.Equal(t, &utils.Usage{OutputTokens: 2}, chunk.Usage)
}
