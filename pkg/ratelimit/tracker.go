package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultThreshold is the remaining-request count below which the ceiling is considered near.
	DefaultThreshold = 5

	// DefaultProbeTTL is how long a quota probe result is reused.
	DefaultProbeTTL = 60 * time.Second

	// defaultLimitedFor is assumed when a 429 carries no reset information.
	defaultLimitedFor = time.Minute
)

// Prober fetches the provider's current quota.
type Prober interface {
	ProbeQuota(ctx context.Context) (Quota, error)
}

// Tracker holds the rate-limit state for one relay instance.
type Tracker struct {
	mu        sync.Mutex
	state     State
	lastProbe time.Time

	threshold int
	ttl       time.Duration
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the near-ceiling threshold.
func WithThreshold(n int) Option {
	return func(t *Tracker) { t.threshold = n }
}

// WithProbeTTL sets how long probe results are cached.
func WithProbeTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker with an unknown quota.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		state:     State{Remaining: -1},
		threshold: DefaultThreshold,
		ttl:       DefaultProbeTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot returns a copy of the current state. A limit whose reset time has
// passed is reported as lifted.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	return t.state
}

// Observe updates the state from a provider response.
func (t *Tracker) Observe(status int, h http.Header) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.LastChecked = now
	if v, ok := headerInt(h, "x-ratelimit-limit-requests", "x-ratelimit-limit"); ok {
		t.state.Limit = v
	}
	if v, ok := headerInt(h, "x-ratelimit-remaining-requests", "x-ratelimit-remaining"); ok {
		t.state.Remaining = v
	}
	if reset, ok := headerReset(h, now, "x-ratelimit-reset-requests", "x-ratelimit-reset"); ok {
		t.state.ResetTime = reset
	}

	if status == http.StatusTooManyRequests {
		t.state.IsLimited = true
		if retry, ok := retryAfter(h, now); ok {
			t.state.ResetTime = retry
		}
		if !t.state.ResetTime.After(now) {
			t.state.ResetTime = now.Add(defaultLimitedFor)
		}
		return
	}

	if status < 300 {
		t.state.IsLimited = t.state.Known() && t.state.Remaining == 0
	}
}

// NearCeiling reports whether the cached quota says the provider is about to
// throttle us, so a canned response should be served instead of a model call.
func (t *Tracker) NearCeiling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nearCeilingLocked()
}

func (t *Tracker) nearCeilingLocked() bool {
	t.expireLocked()
	if !t.state.Known() || t.state.Remaining >= t.threshold {
		return false
	}

	now := t.now()
	if t.state.ResetTime.IsZero() {
		return now.Sub(t.state.LastChecked) < t.ttl
	}
	return now.Before(t.state.ResetTime)
}

// Refresh probes the provider quota unless a probe happened within the TTL,
// and returns the resulting state. A failed probe still counts towards the TTL.
func (t *Tracker) Refresh(ctx context.Context, p Prober) (State, error) {
	now := t.now()

	t.mu.Lock()
	if !t.lastProbe.IsZero() && now.Sub(t.lastProbe) < t.ttl {
		t.expireLocked()
		s := t.state
		t.mu.Unlock()
		return s, nil
	}
	t.lastProbe = now
	t.mu.Unlock()

	q, err := p.ProbeQuota(ctx)
	if err != nil {
		return t.Snapshot(), err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Limit = q.Limit
	t.state.Remaining = q.Remaining
	t.state.ResetTime = q.Reset
	t.state.LastChecked = now
	t.state.IsLimited = q.Limit > 0 && q.Remaining <= 0 && now.Before(q.Reset)
	return t.state, nil
}

// Threshold returns the configured near-ceiling threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

func (t *Tracker) expireLocked() {
	if t.state.IsLimited && !t.state.ResetTime.IsZero() && !t.now().Before(t.state.ResetTime) {
		t.state.IsLimited = false
	}
}

func headerInt(h http.Header, keys ...string) (int, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(h.Get(k)); v != "" {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// headerReset accepts unix epoch seconds, a relative number of seconds, or a
// Go-style duration such as "6m0s".
func headerReset(h http.Header, now time.Time, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v := strings.TrimSpace(h.Get(k))
		if v == "" {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n > 1_000_000_000 {
				return time.Unix(n, 0), true
			}
			return now.Add(time.Duration(n) * time.Second), true
		}
		if d, err := time.ParseDuration(v); err == nil {
			return now.Add(d), true
		}
	}
	return time.Time{}, false
}

func retryAfter(h http.Header, now time.Time) (time.Time, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return now.Add(time.Duration(secs) * time.Second), true
	}
	if at, err := http.ParseTime(v); err == nil {
		return at, true
	}
	return time.Time{}, false
}
