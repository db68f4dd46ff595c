package client_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/client"
)

// scriptedChecker returns queued results, then nil.
type scriptedChecker struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedChecker) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func (s *scriptedChecker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ = Describe("Monitor", func() {
	var (
		ctx     context.Context
		down    = errors.New("connection refused")
		changes []bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		changes = nil
	})

	record := client.OnChange(func(online bool, err error) {
		changes = append(changes, online)
	})

	It("starts online", func() {
		m := client.NewMonitor(&scriptedChecker{})
		Expect(m.Online()).To(BeTrue())
	})

	It("tolerates a single failure", func() {
		m := client.NewMonitor(&scriptedChecker{results: []error{down}}, record)
		Expect(m.Check(ctx)).To(BeTrue())
		Expect(changes).To(BeEmpty())
	})

	It("goes offline after two consecutive failures and back after one success", func() {
		m := client.NewMonitor(&scriptedChecker{results: []error{down, down, nil}}, record)

		Expect(m.Check(ctx)).To(BeTrue())
		Expect(m.Check(ctx)).To(BeFalse())
		Expect(m.Online()).To(BeFalse())
		Expect(m.Check(ctx)).To(BeTrue())
		Expect(changes).To(Equal([]bool{false, true}))
	})

	It("resets the failure count on success", func() {
		m := client.NewMonitor(&scriptedChecker{results: []error{down, nil, down}}, record)
		m.Check(ctx)
		m.Check(ctx)
		Expect(m.Check(ctx)).To(BeTrue())
		Expect(changes).To(BeEmpty())
	})

	It("bounds each check with the timeout", func() {
		var deadline time.Time
		checker := healthFunc(func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		})
		m := client.NewMonitor(checker, client.WithHealthTimeout(time.Second))
		m.Check(ctx)
		Expect(deadline).To(BeTemporally("~", time.Now().Add(time.Second), 500*time.Millisecond))
	})

	It("polls until the context is cancelled", func() {
		checker := &scriptedChecker{}
		m := client.NewMonitor(checker, client.WithHealthInterval(10*time.Millisecond))

		rctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			m.Run(rctx)
			close(done)
		}()

		Eventually(checker.Calls).Should(BeNumerically(">=", 3))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error {
	return f(ctx)
}
