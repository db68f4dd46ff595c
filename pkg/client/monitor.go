package client

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultHealthInterval = 30 * time.Second
	DefaultHealthTimeout  = 5 * time.Second

	// offlineAfter consecutive failed checks mark the relay offline.
	offlineAfter = 2
)

// HealthChecker reports whether the relay answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Monitor polls the relay's health endpoint. A single failed check is
// tolerated; the relay is reported offline after two in a row and online again
// after one success.
type Monitor struct {
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	onChange func(online bool, err error)

	mu       sync.Mutex
	online   bool
	failures int
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithHealthInterval sets the polling interval.
func WithHealthInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithHealthTimeout bounds each health check.
func WithHealthTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.timeout = d }
}

// OnChange registers a callback for online/offline transitions.
func OnChange(fn func(online bool, err error)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor returns a monitor that assumes the relay is online until shown otherwise.
func NewMonitor(checker HealthChecker, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		checker:  checker,
		interval: DefaultHealthInterval,
		timeout:  DefaultHealthTimeout,
		online:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check runs one health check and returns the resulting state.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.checker.Health(ctx)
	cancel()

	m.mu.Lock()
	was := m.online
	if err == nil {
		m.failures = 0
		m.online = true
	} else {
		m.failures++
		if m.failures >= offlineAfter {
			m.online = false
		}
	}
	online := m.online
	m.mu.Unlock()

	if online != was && m.onChange != nil {
		m.onChange(online, err)
	}
	return online
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
