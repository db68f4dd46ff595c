package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pentestai/pentestai/pkg/ratelimit"
)

// DefaultQuotaURL is GitHub's rate-limit status endpoint, which also governs GitHub Models.
const DefaultQuotaURL = "https://api.github.com/rate_limit"

// QuotaProbe reads the provider's quota-status endpoint. It implements ratelimit.Prober.
type QuotaProbe struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewQuotaProbe returns a probe for url authenticated with token.
func NewQuotaProbe(url, token string) *QuotaProbe {
	if url == "" {
		url = DefaultQuotaURL
	}
	return &QuotaProbe{
		url:        url,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type quotaResponse struct {
	Rate struct {
		Limit     int   `json:"limit"`
		Remaining int   `json:"remaining"`
		Reset     int64 `json:"reset"` // unix seconds
	} `json:"rate"`
}

// ProbeQuota fetches the current quota.
func (p *QuotaProbe) ProbeQuota(ctx context.Context) (ratelimit.Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return ratelimit.Quota{}, fmt.Errorf("create quota request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ratelimit.Quota{}, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ratelimit.Quota{}, fmt.Errorf("read quota response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ratelimit.Quota{}, fmt.Errorf("quota endpoint returned %d: %s", resp.StatusCode, errorMessage(body))
	}

	var qr quotaResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return ratelimit.Quota{}, fmt.Errorf("unmarshal quota response: %w", err)
	}

	return ratelimit.Quota{
		Limit:     qr.Rate.Limit,
		Remaining: qr.Rate.Remaining,
		Reset:     time.Unix(qr.Rate.Reset, 0),
	}, nil
}
