// Package llm provides the wire representations of relay requests and responses,
// along with the OpenAI-compatible completion payloads sent upstream.
package llm

// ErrorResponse is returned by the relay for every failed chat request.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Kind      string     `json:"kind,omitempty"`
	Model     *ModelInfo `json:"model,omitempty"`
	ErrorTime string     `json:"errorTime,omitempty"` // RFC3339
}
