// Package provider talks to the hosted chat-completion API.
//
// The client posts OpenAI-compatible requests to {baseURL}/chat/completions
// with a bearer token, retries transient network failures a fixed number of
// times, and classifies every failure into the relayerr taxonomy. HTTP
// responses are never retried: a status code is a semantic answer.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/ratelimit"
	"github.com/pentestai/pentestai/pkg/relayerr"
)

const (
	// DefaultBaseURL is the GitHub Models inference endpoint.
	DefaultBaseURL = "https://models.github.ai/inference"

	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 150 * time.Second

	// DefaultRetries is the number of retries after a transient network failure.
	DefaultRetries = 4

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 10 * 1024 * 1024

	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
	Options llm.Options
}

// Client is a chat-completion client for a single provider.
type Client struct {
	config     Config
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	logger     *zap.Logger

	// retryBase is the first backoff delay, shortened in tests.
	retryBase time.Duration
}

// New creates a provider client. Every response is reported to tracker.
func New(config Config, tracker *ratelimit.Tracker, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	config.Token = strings.TrimSpace(config.Token)
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if tracker == nil {
		tracker = ratelimit.NewTracker()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			// LLM requests can be slow, especially for reasoning models
			Timeout: config.Timeout,
		},
		tracker:   tracker,
		logger:    logger,
		retryBase: retryBaseDelay,
	}
}

// IsConfigured reports whether a credential is present.
func (c *Client) IsConfigured() bool {
	return c.config.Token != ""
}

// Complete sends messages to model and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, model string, messages []llm.Message) (string, error) {
	if !c.IsConfigured() {
		return "", relayerr.New(relayerr.AuthError, relayerr.ErrTokenMissing)
	}

	reqBody, err := json.Marshal(llm.CompletionRequest{
		Model:    model,
		Messages: messages,
		Options:  c.config.Options,
	})
	if err != nil {
		return "", relayerr.New(relayerr.UpstreamError, fmt.Errorf("marshal request: %w", err))
	}

	url := c.config.BaseURL + "/chat/completions"
	c.logger.Debug("forwarding request to upstream",
		zap.String("url", url),
		zap.String("model", model),
		zap.Int("message_count", len(messages)),
		zap.Int("body_size", len(reqBody)),
	)

	var (
		status int
		body   []byte
	)
	attempt := 0
	op := func() error {
		attempt++
		var err error
		status, body, err = c.post(ctx, url, reqBody)
		if err == nil {
			return nil
		}
		if !isTransient(ctx, err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("transient upstream failure",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = retryMaxDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.Retries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return "", classifyTransport(ctx, err)
	}

	if status != http.StatusOK {
		return "", classifyStatus(status, body)
	}

	var resp llm.CompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", relayerr.New(relayerr.UpstreamError, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", &relayerr.Error{Kind: relayerr.UpstreamError, Status: status, Raw: "no choices in response"}
	}

	c.logger.Debug("received response from upstream",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Int("attempts", attempt),
	)

	return resp.Content(), nil
}

// post performs one HTTP exchange. Transport errors are returned as errors;
// any HTTP status is returned with its body.
func (c *Client) post(ctx context.Context, url string, reqBody []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	c.tracker.Observe(httpResp.StatusCode, httpResp.Header)

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("upstream responded",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return httpResp.StatusCode, body, nil
}
