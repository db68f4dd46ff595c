package llm

// ConversationTurn is the content recorded in the transcript for one message.
type ConversationTurn struct {
	Type    string `json:"type"` // always "message"
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}
