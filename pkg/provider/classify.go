package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/ansi"

	"github.com/pentestai/pentestai/pkg/relayerr"
)

// maxErrorMessage caps the width of a raw provider message.
const maxErrorMessage = 500

// apiErrorResponse is the provider's error envelope. Some endpoints send a
// bare string in "error" instead of an object.
type apiErrorResponse struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte) string {
	var env apiErrorResponse
	if err := json.Unmarshal(body, &env); err == nil {
		if len(env.Error) > 0 {
			var obj struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
			var s string
			if json.Unmarshal(env.Error, &s) == nil && s != "" {
				return s
			}
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return ansi.Truncate(strings.TrimSpace(string(body)), maxErrorMessage, "...")
}

func mentionsRateLimit(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") ||
		strings.Contains(m, "ratelimit") ||
		strings.Contains(m, "too many requests")
}

// classifyStatus maps a non-200 provider response to a relay error.
func classifyStatus(status int, body []byte) *relayerr.Error {
	raw := errorMessage(body)
	e := &relayerr.Error{Status: status, Raw: raw}

	// A rejected credential is reported as such even when the body talks about limits
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = relayerr.AuthError
	case status == http.StatusTooManyRequests || mentionsRateLimit(raw):
		e.Kind = relayerr.RateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e.Kind = relayerr.Timeout
	case status >= 500:
		e.Kind = relayerr.UpstreamUnavailable
	default:
		e.Kind = relayerr.UpstreamError
	}
	return e
}

// classifyTransport maps an error that prevented any HTTP response.
func classifyTransport(ctx context.Context, err error) *relayerr.Error {
	var re *relayerr.Error
	if errors.As(err, &re) {
		return re
	}

	switch {
	case isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return relayerr.New(relayerr.Timeout, err)
	case isUnreachable(err):
		return relayerr.New(relayerr.NetworkUnreachable, err)
	default:
		return relayerr.New(relayerr.UpstreamError, err)
	}
}

// isTransient reports whether a transport error is worth retrying.
// Timeouts and cancellations are final.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || isTimeout(err) {
		return false
	}
	return isUnreachable(err) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
