package utils

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
)

// InvocationMetricsKey is the field Bedrock appends to the last chunk of
// every InvokeModelWithResponseStream response.
const InvocationMetricsKey = "amazon-bedrock-invocationMetrics"

// Parser extracts prompt and completion text from the JSON bodies of one model family.
type Parser interface {
	ParseRequest(body []byte) (*Request, error)
	ParseResponse(body []byte) (*Response, error)
	ParseStreamChunk(body []byte) (*StreamChunk, error)
}

// Message is one conversation turn with its content flattened to text.
type Message struct {
	Role    string
	Content string
}

// Request is the family-independent view of an InvokeModel request body.
type Request struct {
	Prompt string
	// HasPrompt is false when the body carried no prompt field at all.
	HasPrompt bool
	System    string
	Messages  []Message
}

// Usage holds the token counts a model reported about itself.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the family-independent view of an InvokeModel response body.
type Response struct {
	Completion    string
	HasCompletion bool
	StopReason    string
	Usage         *Usage
}

// StreamChunk is the family-independent view of one response stream chunk.
type StreamChunk struct {
	Text       string
	StopReason string
	Usage      *Usage
}

// InvocationMetrics is reported by Bedrock on the final stream chunk.
type InvocationMetrics struct {
	InputTokenCount   int   `json:"inputTokenCount"`
	OutputTokenCount  int   `json:"outputTokenCount"`
	InvocationLatency int64 `json:"invocationLatency"`
	FirstByteLatency  int64 `json:"firstByteLatency"`
}

// ParseInvocationMetrics returns the invocation metrics carried by a stream chunk, or nil.
func ParseInvocationMetrics(body []byte) (*InvocationMetrics, error) {
	var chunk struct {
		Metrics *InvocationMetrics `json:"amazon-bedrock-invocationMetrics"`
	}
	if err := json.Unmarshal(body, &chunk); err != nil {
		return nil, errors.Wrap(err, "unmarshal invocation metrics")
	}
	return chunk.Metrics, nil
}

// Decode unmarshals a JSON body into v. Empty bodies are left untouched.
func Decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "unmarshal body")
	}
	return nil
}

// contentBlock covers the text carrying block shapes used by Anthropic and Nova.
type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// FlattenContent renders message content as text. Content is either a JSON
// string or a list of blocks, of which only the text blocks are kept and
// joined by newlines. Other shapes are returned as raw JSON.
func FlattenContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != nil && (b.Type == "" || b.Type == "text") {
				parts = append(parts, *b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return string(raw)
}

// RawMessage is a wire message whose content has not been flattened yet.
type RawMessage struct {
	Role    *string         `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Flatten converts raw messages, defaulting a missing role to "unknown".
func Flatten(raw []RawMessage) []Message {
	if len(raw) == 0 {
		return nil
	}

	msgs := make([]Message, 0, len(raw))
	for _, m := range raw {
		role := "unknown"
		if m.Role != nil && *m.Role != "" {
			role = *m.Role
		}
		msgs = append(msgs, Message{Role: role, Content: FlattenContent(m.Content)})
	}
	return msgs
}

// PromptFrom fills req.Prompt from the first non-nil candidate.
func PromptFrom(req *Request, candidates ...*string) {
	for _, c := range candidates {
		if c != nil {
			req.Prompt = *c
			req.HasPrompt = true
			return
		}
	}
}

// CompletionFrom fills resp.Completion from the first non-nil candidate.
func CompletionFrom(resp *Response, candidates ...*string) {
	for _, c := range candidates {
		if c != nil {
			resp.Completion = *c
			resp.HasCompletion = true
			return
		}
	}
}
