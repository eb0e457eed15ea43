package anthropic

import (
	"encoding/json"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

// Request covers both the legacy text completions body (prompt) and the
// Messages API body (system + messages).
type Request struct {
	Prompt   *string            `json:"prompt"`
	System   json.RawMessage    `json:"system"`
	Messages []utils.RawMessage `json:"messages"`
}

// Usage is reported by the Messages API.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response covers the legacy completion and the Messages API content blocks.
type Response struct {
	Completion *string         `json:"completion"`
	Content    json.RawMessage `json:"content"`
	StopReason *string         `json:"stop_reason"`
	Usage      *Usage          `json:"usage"`
}

// Delta carries incremental text or the final stop reason.
type Delta struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	StopReason *string `json:"stop_reason"`
}

// StreamResponse is one chunk of a Messages API or legacy completion stream.
type StreamResponse struct {
	Type       string  `json:"type"`
	Completion *string `json:"completion"`
	StopReason *string `json:"stop_reason"`
	Delta      *Delta  `json:"delta"`
	Message    *struct {
		Usage *Usage `json:"usage"`
	} `json:"message"`
	Usage *Usage `json:"usage"`
}
