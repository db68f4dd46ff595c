package llm

import "github.com/pentestai/pentestai/pkg/ratelimit"

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Configured   bool            `json:"configured"` // An API token is set
	ProbeEnabled bool            `json:"probeEnabled"`
	NearCeiling  bool            `json:"nearCeiling"` // Chat requests currently get the canned fallback
	Threshold    int             `json:"threshold"`
	RateLimit    ratelimit.State `json:"rateLimit"`
}
