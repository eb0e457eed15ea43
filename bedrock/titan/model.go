package titan

// Request is the Titan Text request body.
type Request struct {
	InputText            *string `json:"inputText"`
	TextGenerationConfig *struct {
		MaxTokenCount int      `json:"maxTokenCount,omitempty"`
		Temperature   *float64 `json:"temperature,omitempty"`
		TopP          *float64 `json:"topP,omitempty"`
	} `json:"textGenerationConfig,omitempty"`
}

// Result is one generated candidate.
type Result struct {
	TokenCount       int     `json:"tokenCount"`
	OutputText       *string `json:"outputText"`
	CompletionReason string  `json:"completionReason"`
}

// Response is the Titan Text response body.
type Response struct {
	InputTextTokenCount *int     `json:"inputTextTokenCount"`
	Results             []Result `json:"results"`
}

// StreamResponse is one chunk of a Titan Text stream.
type StreamResponse struct {
	OutputText                *string `json:"outputText"`
	Index                     int     `json:"index"`
	CompletionReason          *string `json:"completionReason"`
	InputTextTokenCount       *int    `json:"inputTextTokenCount"`
	TotalOutputTextTokenCount *int    `json:"totalOutputTextTokenCount"`
}
