package statuscmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/ratelimit"
)

var _ = Describe("Status Command", func() {
	var (
		ctx    context.Context
		server *httptest.Server
		status llm.StatusResponse
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = llm.StatusResponse{
			Configured:   true,
			ProbeEnabled: true,
			Threshold:    5,
			RateLimit:    ratelimit.State{Remaining: 42, Limit: 60, ResetTime: time.Now().Add(time.Hour)},
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health":
				json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
			case "/api/status":
				json.NewEncoder(w).Encode(status)
			default:
				http.NotFound(w, r)
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	run := func() (string, error) {
		var out bytes.Buffer
		cmd := NewStatusCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--relay", server.URL})
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("reports a healthy relay and its quota", func() {
		out, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("(healthy)"))
		Expect(out).To(ContainSubstring("API token:   configured"))
		Expect(out).To(ContainSubstring("42 of 60 requests remaining"))
		Expect(out).To(ContainSubstring("Resets:"))
		Expect(out).NotTo(ContainSubstring("Fallback"))
	})

	It("reports an unknown quota and active fallback", func() {
		status.Configured = false
		status.NearCeiling = true
		status.ProbeEnabled = false
		status.RateLimit = ratelimit.State{Remaining: -1}

		out, err := run()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("missing"))
		Expect(out).To(ContainSubstring("Quota:       unknown"))
		Expect(out).To(ContainSubstring("Fallback:    active"))
		Expect(out).To(ContainSubstring("Probe:       disabled"))
	})

	It("fails when the relay is unreachable", func() {
		server.Close()
		_, err := run()
		Expect(err).To(MatchError(ContainSubstring("unreachable")))
	})
})
