package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"null", `null`, ""},
		{"string", `"hello there"`, "hello there"},
		{"text blocks", `[{"type":"text","text":"a"},{"type":"image","source":{}},{"type":"text","text":"b"}]`, "a\nb"},
		{"untyped blocks", `[{"text":"nova style"}]`, "nova style"},
		{"other shape", `{"x":1}`, `{"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FlattenContent(json.RawMessage(tt.raw)))
		})
	}
}

func TestFlattenDefaultsRole(t *testing.T) {
	var raw []RawMessage
	require.NoError(t, json.Unmarshal([]byte(`[{"content":"hi"},{"role":"assistant","content":"yo"}]`), &raw))

	require.Equal(t, []Message{
		{Role: "unknown", Content: "hi"},
		{Role: "assistant", Content: "yo"},
	}, Flatten(raw))
	require.Nil(t, Flatten(nil))
}

func TestParseInvocationMetrics(t *testing.T) {
	m, err := ParseInvocationMetrics([]byte(`{"type":"message_stop","amazon-bedrock-invocationMetrics":{"inputTokenCount":12,"outputTokenCount":34,"invocationLatency":560,"firstByteLatency":78}}`))
	require.NoError(t, err)
	require.Equal(t, &InvocationMetrics{
		InputTokenCount:   12,
		OutputTokenCount:  34,
		InvocationLatency: 560,
		FirstByteLatency:  78,
	}, m)

	m, err = ParseInvocationMetrics([]byte(`{"type":"content_block_delta"}`))
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = ParseInvocationMetrics([]byte(`{oops`))
	require.Error(t, err)
}

func TestDecodeEmptyBody(t *testing.T) {
	var v map[string]any
	require.NoError(t, Decode(nil, &v))
	require.NoError(t, Decode([]byte("  "), &v))
	require.Nil(t, v)
	require.Error(t, Decode([]byte("not json"), &v))
}

func TestPromptAndCompletionFrom(t *testing.T) {
	a, b := "first", "second"

	req := &Request{}
	PromptFrom(req, nil, &a, &b)
	require.True(t, req.HasPrompt)
	require.Equal(t, "first", req.Prompt)

	req = &Request{}
	PromptFrom(req, nil, nil)
	require.False(t, req.HasPrompt)

	resp := &Response{}
	CompletionFrom(resp, nil, &b)
	require.True(t, resp.HasCompletion)
	require.Equal(t, "second", resp.Completion)
}

func TestEmbeddingShapes(t *testing.T) {
	req, err := ParseEmbeddingRequest([]byte(`{"texts":["a b","c"],"input_type":"search_document"}`))
	require.NoError(t, err)
	require.True(t, req.HasTexts())
	require.Equal(t, `["a b","c"]`, req.TextsString())

	req, err = ParseEmbeddingRequest([]byte(`{"inputText":"hello"}`))
	require.NoError(t, err)
	require.False(t, req.HasTexts())

	resp, err := ParseEmbeddingResponse([]byte(`{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	require.NoError(t, err)
	vectors, err := resp.Vectors()
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], 3)

	resp, err = ParseEmbeddingResponse([]byte(`{"embeddings":{"float":[[1,2]],"int8":[[1,2]]}}`))
	require.NoError(t, err)
	vectors, err = resp.Vectors()
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 2}}, vectors)

	resp, err = ParseEmbeddingResponse([]byte(`{"embedding":[0.1,0.2],"inputTextTokenCount":3}`))
	require.NoError(t, err)
	require.Len(t, resp.Embedding, 2)
	require.Equal(t, 3, *resp.InputTextTokenCount)
	vectors, err = resp.Vectors()
	require.NoError(t, err)
	require.Nil(t, vectors)
}
