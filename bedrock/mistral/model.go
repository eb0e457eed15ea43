package mistral

import "github.com/nrbedrock/bedrock-observability/bedrock/utils"

// Request covers text completion (prompt) and chat (messages) bodies.
type Request struct {
	Prompt    *string            `json:"prompt"`
	Messages  []utils.RawMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens,omitempty"`
}

// Output is one text completion candidate.
type Output struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

// ChatMessage is the assistant message or stream delta of a chat choice.
type ChatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Choice is one chat candidate.
type Choice struct {
	Index      int          `json:"index"`
	Message    *ChatMessage `json:"message,omitempty"`
	Delta      *ChatMessage `json:"delta,omitempty"`
	StopReason *string      `json:"stop_reason,omitempty"`
}

// Response covers text completion and chat bodies. Stream chunks share the shape.
type Response struct {
	Outputs []Output `json:"outputs"`
	Choices []Choice `json:"choices"`
}
