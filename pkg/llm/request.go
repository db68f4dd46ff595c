package llm

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string    `json:"message"`           // New user message
	Model   string    `json:"model,omitempty"`   // Model key, e.g. "gpt4"
	History []Message `json:"history,omitempty"` // Prior turns, oldest first
}

// CompletionRequest is an OpenAI-compatible chat completion request.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options
}
