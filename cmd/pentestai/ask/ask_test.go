package askcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/llm"
)

var _ = Describe("Ask Command", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		received llm.ChatRequest
		status   int
		body     any
	)

	BeforeEach(func() {
		ctx = context.Background()
		// Keep the developer's saved preferences out of the test
		prevHome := os.Getenv("HOME")
		os.Setenv("HOME", GinkgoT().TempDir())
		DeferCleanup(os.Setenv, "HOME", prevHome)

		status = http.StatusOK
		body = llm.ChatResponse{
			Response: "Use `nmap -p-` to scan all ports.",
			Model:    llm.ModelInfo{Requested: "gpt4", Actual: "gpt-4o", DisplayName: "GPT-4"},
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&received)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(body)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	run := func(args ...string) (string, string, error) {
		var stdout, stderr bytes.Buffer
		cmd := NewAskCmd()
		cmd.SetOut(&stdout)
		cmd.SetErr(&stderr)
		cmd.SetArgs(append([]string{"--relay", server.URL}, args...))
		err := cmd.ExecuteContext(ctx)
		return stdout.String(), stderr.String(), err
	}

	It("prints the reply and the model", func() {
		stdout, stderr, err := run("how", "do", "I", "scan", "all", "ports?")
		Expect(err).NotTo(HaveOccurred())
		Expect(stdout).To(Equal("Use `nmap -p-` to scan all ports.\n"))
		Expect(stderr).To(ContainSubstring("GPT-4"))
		Expect(received.Message).To(Equal("how do I scan all ports?"))
		Expect(received.Model).To(BeEmpty())
	})

	It("sends the requested model", func() {
		_, _, err := run("--model", "phi4", "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(received.Model).To(Equal("phi4"))
	})

	It("flags canned fallback replies", func() {
		body = llm.ChatResponse{Response: "Quota nearly exhausted.", Fallback: true, Model: llm.ModelInfo{DisplayName: "GPT-4"}}
		_, stderr, err := run("hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(stderr).To(ContainSubstring("canned reply"))
	})

	It("reports relay errors with a hint", func() {
		status = http.StatusServiceUnavailable
		body = llm.ErrorResponse{
			Error: "Rate limit exceeded. Please wait a minute before trying again.",
			Kind:  "RateLimited",
		}
		_, _, err := run("hello")
		Expect(err).To(MatchError(ContainSubstring("Rate limit exceeded")))
		Expect(err).To(MatchError(ContainSubstring("Wait a minute")))
	})

	It("requires a message", func() {
		_, _, err := run()
		Expect(err).To(HaveOccurred())
	})
})
