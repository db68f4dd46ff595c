package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/relayerr"
)

// Error is a non-2xx answer from the relay.
type Error struct {
	Status  int
	Kind    string // relayerr.Kind name, empty if the body was not a relay error
	Message string
	Model   *llm.ModelInfo
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Category is the user-facing class of a failed request.
type Category string

const (
	CategoryTimeout   Category = "timeout"
	CategoryAuth      Category = "auth"
	CategoryRateLimit Category = "rate-limit"
	CategoryServer    Category = "server"
	CategoryNetwork   Category = "network"
)

var kindCategories = map[relayerr.Kind]Category{
	relayerr.Timeout:             CategoryTimeout,
	relayerr.AuthError:           CategoryAuth,
	relayerr.RateLimited:         CategoryRateLimit,
	relayerr.UpstreamUnavailable: CategoryServer,
	relayerr.UpstreamError:       CategoryServer,
	relayerr.NetworkUnreachable:  CategoryNetwork,
}

// Classify picks the category of a failed request: from the relay's error kind
// when present, otherwise from the error text.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CategoryTimeout
	}

	var re *Error
	if errors.As(err, &re) {
		if c, ok := kindCategories[relayerr.Kind(re.Kind)]; ok {
			return c
		}
		if c, ok := classifyText(re.Message); ok {
			return c
		}
		if re.Status >= 500 {
			return CategoryServer
		}
	}

	if c, ok := classifyText(err.Error()); ok {
		return c
	}
	return CategoryNetwork
}

func classifyText(text string) (Category, bool) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "took too long"), strings.Contains(t, "timeout"), strings.Contains(t, "timed out"):
		return CategoryTimeout, true
	case strings.Contains(t, "authentication"), strings.Contains(t, "api token"), strings.Contains(t, "unauthorized"):
		return CategoryAuth, true
	case strings.Contains(t, "rate limit"), strings.Contains(t, "too many requests"):
		return CategoryRateLimit, true
	case strings.Contains(t, "experiencing issues"), strings.Contains(t, "server error"):
		return CategoryServer, true
	}
	return "", false
}

// Hint returns a short suggestion for what the user can do about a failure.
func (c Category) Hint() string {
	switch c {
	case CategoryTimeout:
		return "Try a shorter question or switch to a faster model."
	case CategoryAuth:
		return "Check the relay's GITHUB_TOKEN."
	case CategoryRateLimit:
		return "Wait a minute before retrying."
	case CategoryServer:
		return "Retry, or switch to a different model."
	default:
		return "Check that the relay is running and reachable."
	}
}
