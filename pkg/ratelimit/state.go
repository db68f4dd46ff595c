// Package ratelimit tracks the provider's advertised request quota.
//
// The Tracker is a best-effort, in-memory cache fed from response headers and,
// optionally, from the provider's quota-status endpoint. Nothing is persisted;
// a restart starts from an unknown state.
package ratelimit

import "time"

// State is a point-in-time view of the provider quota.
type State struct {
	IsLimited   bool      `json:"isLimited"`
	ResetTime   time.Time `json:"resetTime"`
	Remaining   int       `json:"remaining"` // -1 when unknown
	Limit       int       `json:"limit"`     // 0 when unknown
	LastChecked time.Time `json:"lastChecked"`
}

// Known reports whether the provider has told us its quota.
func (s State) Known() bool {
	return s.Limit > 0 && s.Remaining >= 0
}

// Quota is the result of a quota-status probe.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}
