package llm

// Options contains model inference parameters forwarded upstream.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	TopP        *float64 `json:"top_p,omitempty"`       // Nucleus sampling threshold
	MaxTokens   *int     `json:"max_tokens,omitempty"`  // Max tokens to generate
}

// DefaultOptions returns the generation parameters the relay uses unless configured otherwise.
func DefaultOptions() Options {
	temperature, topP, maxTokens := 0.7, 1.0, 4096
	return Options{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	}
}
