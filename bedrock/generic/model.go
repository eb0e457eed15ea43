package generic

import (
	"encoding/json"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

// Request holds every prompt-like field seen across providers.
type Request struct {
	Prompt    *string            `json:"prompt"`
	InputText *string            `json:"inputText"`
	System    json.RawMessage    `json:"system"`
	Messages  []utils.RawMessage `json:"messages"`
}

// OutputMessage is the Nova style output envelope.
type OutputMessage struct {
	Message *utils.RawMessage `json:"message"`
}

// Usage is the camel-cased usage block used by Nova and Converse shaped bodies.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response holds every completion-like field seen across providers.
type Response struct {
	Completion *string        `json:"completion"`
	Generation *string        `json:"generation"`
	OutputText *string        `json:"outputText"`
	Output     *OutputMessage `json:"output"`
	StopReason *string        `json:"stopReason"`
	Usage      *Usage         `json:"usage"`
}

// StreamResponse covers the flat chunk fields plus the Converse shaped
// contentBlockDelta / messageStop / metadata chunks.
type StreamResponse struct {
	Completion        *string `json:"completion"`
	Generation        *string `json:"generation"`
	OutputText        *string `json:"outputText"`
	ContentBlockDelta *struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"contentBlockDelta"`
	MessageStop *struct {
		StopReason string `json:"stopReason"`
	} `json:"messageStop"`
	Metadata *struct {
		Usage *Usage `json:"usage"`
	} `json:"metadata"`
}
