// Package client talks to a pentestai relay and keeps the state of one chat
// session: the transcript, request throttling, manual retry with model
// rotation, connection monitoring and the preferred model.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/jsonapi"

	"github.com/pentestai/pentestai/pkg/llm"
)

// DefaultBaseURL is where a locally started relay listens.
const DefaultBaseURL = "http://localhost:3000"

// Client is a relay API client.
type Client struct {
	baseURL string
}

// New returns a client for the relay at baseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one message to the relay.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (resp llm.ChatResponse, err error) {
	url, err := jsonapi.URL(c.baseURL + "/api").Path("chat").String()
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodPost, url, req, &resp)
	return resp, err
}

// Models lists the models the relay offers.
func (c *Client) Models(ctx context.Context) (resp llm.ModelsResponse, err error) {
	url, err := jsonapi.URL(c.baseURL + "/api").Path("models").String()
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodGet, url, nil, &resp)
	return resp, err
}

// Status returns the relay's view of the provider quota.
func (c *Client) Status(ctx context.Context) (resp llm.StatusResponse, err error) {
	url, err := jsonapi.URL(c.baseURL + "/api").Path("status").String()
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodGet, url, nil, &resp)
	return resp, err
}

// Health checks that the relay is up.
func (c *Client) Health(ctx context.Context) error {
	url, err := jsonapi.URL(c.baseURL).Path("health").String()
	if err != nil {
		return err
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("relay reported status %q", resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Accept", "application/json"))
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) *Error {
	e := &Error{
		Status: status,
		Err:    jsonapi.InvalidStatusError{Status: status, Body: string(body)},
	}

	var er llm.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		e.Message = er.Error
		e.Kind = er.Kind
		e.Model = er.Model
	} else {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	return e
}
