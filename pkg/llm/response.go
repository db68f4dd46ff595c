package llm

// ModelInfo attributes a response to the model that produced it.
type ModelInfo struct {
	Requested   string `json:"requested"`        // Model key used for the call
	Actual      string `json:"actual,omitempty"` // Vendor model identifier
	DisplayName string `json:"displayName"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Response string    `json:"response"`
	Model    ModelInfo `json:"model"`

	// Fallback is set when Response is a canned message and no model was called.
	Fallback bool `json:"fallback,omitempty"`

	// Turn is the transcript hash of the stored assistant reply, when recording is enabled.
	Turn string `json:"turn,omitempty"`

	// HTML is the rendered markdown, only present for ?render=html.
	HTML string `json:"html,omitempty"`
}

// CompletionResponse is an OpenAI-compatible chat completion response.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the first choice's content, or empty string if none.
func (r *CompletionResponse) Content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// ModelEntry is one selectable model in GET /api/models.
type ModelEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Models  []ModelEntry `json:"models"`
	Default string       `json:"default,omitempty"`
}
