package cohere

// ChatMessage is one Command R chat history entry.
type ChatMessage struct {
	Role    *string `json:"role"`
	Message string  `json:"message"`
}

// Request covers Command (prompt) and Command R (message + chat_history) bodies.
type Request struct {
	Prompt      *string       `json:"prompt"`
	Message     *string       `json:"message"`
	Preamble    string        `json:"preamble"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// Generation is one Command candidate.
type Generation struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// Response covers Command (generations) and Command R (text) bodies.
type Response struct {
	Generations  []Generation `json:"generations"`
	Text         *string      `json:"text"`
	FinishReason string       `json:"finish_reason"`
}

// StreamResponse is one chunk of a Command or Command R stream.
type StreamResponse struct {
	EventType    string       `json:"event_type"`
	Text         *string      `json:"text"`
	Generations  []Generation `json:"generations"`
	IsFinished   bool         `json:"is_finished"`
	FinishReason *string      `json:"finish_reason"`
}
