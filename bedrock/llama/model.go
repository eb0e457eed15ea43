package llama

// Request is the Meta Llama text request body.
type Request struct {
	Prompt      *string  `json:"prompt"`
	MaxGenLen   int      `json:"max_gen_len,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// Response is the Meta Llama response body. Stream chunks share the shape.
type Response struct {
	Generation           *string `json:"generation"`
	PromptTokenCount     *int    `json:"prompt_token_count"`
	GenerationTokenCount *int    `json:"generation_token_count"`
	StopReason           *string `json:"stop_reason"`
}
