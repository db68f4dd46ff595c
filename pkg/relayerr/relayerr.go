// Package relayerr defines the error taxonomy surfaced by the chat relay.
//
// Every failure the relay can produce is one of a small set of kinds. Each kind
// has a fixed user-readable message and maps to a relay HTTP status: 400 for
// MissingInput, 503 for everything else.
package relayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a relay failure.
type Kind string

const (
	MissingInput        Kind = "MissingInput"
	AuthError           Kind = "AuthError"
	RateLimited         Kind = "RateLimited"
	Timeout             Kind = "Timeout"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
	NetworkUnreachable  Kind = "NetworkUnreachable"
	UpstreamError       Kind = "UpstreamError"
)

var messages = map[Kind]string{
	MissingInput:        "Missing message",
	AuthError:           "Authentication error. The API key may be invalid or expired.",
	RateLimited:         "Rate limit exceeded. Please wait a minute before trying again.",
	Timeout:             "The AI model took too long to respond. Please try a shorter query or switch to a different model.",
	UpstreamUnavailable: "The AI service is currently experiencing issues. Please try again later.",
	NetworkUnreachable:  "Unable to connect to the AI service. Please check your network connection.",
}

// ErrTokenMissing is the cause attached to AuthError when no credential is configured.
var ErrTokenMissing = errors.New("API token is not configured. Please check your environment variables.")

// Error is a classified relay failure.
type Error struct {
	Kind Kind

	// Status is the HTTP status returned by the provider, 0 if none was received.
	Status int

	// Raw is the provider's own error text, if any.
	Raw string

	Err error
}

// New returns an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Raw != "" && e.Status != 0:
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Raw)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the user.
func (e *Error) Message() string {
	if e.Kind == AuthError && errors.Is(e.Err, ErrTokenMissing) {
		return ErrTokenMissing.Error()
	}
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}

	detail := e.Raw
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = "unknown error"
	}
	return "Error connecting to AI model: " + detail
}

// HTTPStatus returns the status code the relay responds with.
func (e *Error) HTTPStatus() int {
	if e.Kind == MissingInput {
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

// As extracts an *Error from err. Unclassified errors become UpstreamError.
func As(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Kind: UpstreamError, Err: err}
}

// IsKind reports whether err is a relay error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}
