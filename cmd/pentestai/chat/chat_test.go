package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/llm"
)

var testModels = llm.ModelsResponse{
	Models: []llm.ModelEntry{
		{ID: "gpt4", Name: "GPT-4"},
		{ID: "phi4", Name: "Phi-4"},
		{ID: "deepseek", Name: "DeepSeek"},
	},
	Default: "gpt4",
}

type relayReply struct {
	status int
	body   any
}

var _ = Describe("Chat Command", func() {
	var (
		ctx      context.Context
		home     string
		server   *httptest.Server
		mu       sync.Mutex
		received []llm.ChatRequest
		replies  []relayReply
	)

	ok := func(text string) relayReply {
		return relayReply{status: http.StatusOK, body: llm.ChatResponse{
			Response: text,
			Model:    llm.ModelInfo{DisplayName: "GPT-4"},
		}}
	}
	unavailable := relayReply{status: http.StatusServiceUnavailable, body: llm.ErrorResponse{
		Error: "The AI service is temporarily unavailable. Please try again later.",
		Kind:  "UpstreamUnavailable",
	}}

	BeforeEach(func() {
		ctx = context.Background()
		home = GinkgoT().TempDir()
		prevHome := os.Getenv("HOME")
		os.Setenv("HOME", home)
		DeferCleanup(os.Setenv, "HOME", prevHome)

		received = nil
		replies = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/api/models":
				json.NewEncoder(w).Encode(testModels)
			case "/api/chat":
				var req llm.ChatRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())

				mu.Lock()
				received = append(received, req)
				reply := ok("default reply")
				if len(replies) > 0 {
					reply, replies = replies[0], replies[1:]
				}
				mu.Unlock()

				w.WriteHeader(reply.status)
				json.NewEncoder(w).Encode(reply.body)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		DeferCleanup(server.Close)
	})

	run := func(input string, args ...string) (string, error) {
		var stdout bytes.Buffer
		cmd := NewChatCmd()
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--relay", server.URL, "--plain", "--min-interval", "1ms"}, args...))
		err := cmd.ExecuteContext(ctx)
		return stdout.String(), err
	}

	It("prints a reply for each line", func() {
		replies = []relayReply{ok("Run `nmap -sV`."), ok("Try gobuster.")}
		out, err := run("scan services\n\nfind dirs\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("[GPT-4]\nRun `nmap -sV`.\n"))
		Expect(out).To(ContainSubstring("Try gobuster."))
		Expect(received).To(HaveLen(2))
		Expect(received[0].Model).To(Equal("gpt4"))
		Expect(received[1].History).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "scan services"},
			{Role: llm.RoleAssistant, Content: "Run `nmap -sV`."},
		}))
	})

	It("stops at /quit", func() {
		out, err := run("/quit\nnever sent\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
		Expect(received).To(BeEmpty())
	})

	It("shows errors and retries on /retry", func() {
		replies = []relayReply{unavailable, ok("Recovered.")}
		out, err := run("hello\n/retry\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("! The AI service is temporarily unavailable."))
		Expect(out).To(ContainSubstring("Type /retry to try again."))
		Expect(out).To(ContainSubstring("Recovered."))
		Expect(received).To(HaveLen(2))
		Expect(received[1].Message).To(Equal("hello"))
	})

	It("switches model on a retry after two failures", func() {
		replies = []relayReply{unavailable, unavailable, ok("Third time lucky.")}
		out, err := run("hello\n/retry\n/retry\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Third time lucky."))
		Expect(received).To(HaveLen(3))
		Expect(received[1].Model).To(Equal("gpt4"))
		Expect(received[2].Model).To(Equal("phi4"))
	})

	It("has nothing to retry before a failure", func() {
		out, err := run("/retry\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("nothing to retry"))
	})

	It("switches and saves the model", func() {
		out, err := run("/model deepseek\nhello\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Using DeepSeek"))
		Expect(received[0].Model).To(Equal("deepseek"))

		saved, err := os.ReadFile(filepath.Join(home, ".pentestai", "preferences.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(saved)).To(ContainSubstring(`"deepseek"`))
	})

	It("starts with the saved model", func() {
		_, err := run("/model phi4\n")
		Expect(err).NotTo(HaveOccurred())

		_, err = run("hello\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(received[0].Model).To(Equal("phi4"))
	})

	It("prefers the --model flag", func() {
		_, err := run("hello\n", "--model", "deepseek")
		Expect(err).NotTo(HaveOccurred())
		Expect(received[0].Model).To(Equal("deepseek"))
	})

	It("rejects unknown models", func() {
		out, err := run("/model llama\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`unknown model "llama"`))
	})

	It("lists models and marks the current one", func() {
		out, err := run("/models\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("* gpt4\tGPT-4"))
		Expect(out).To(ContainSubstring("  phi4\tPhi-4"))
	})

	It("fails when the relay is unreachable", func() {
		server.Close()
		_, err := run("hello\n")
		Expect(err).To(MatchError(ContainSubstring("could not reach relay")))
	})
})

var _ = Describe("Model selection", func() {
	models := testModels.Models

	DescribeTable("pickModel",
		func(flag, preferred, relayDefault, expected string) {
			Expect(pickModel(flag, preferred, relayDefault, models)).To(Equal(expected))
		},
		Entry("flag wins", "deepseek", "phi4", "gpt4", "deepseek"),
		Entry("then the saved preference", "", "phi4", "gpt4", "phi4"),
		Entry("then the relay default", "", "", "gpt4", "gpt4"),
		Entry("unknown keys are skipped", "llama", "mistral", "phi4", "phi4"),
		Entry("first model when nothing matches", "", "", "llama", "gpt4"),
	)

	It("returns the relay default when no models are offered", func() {
		Expect(pickModel("", "", "gpt4", nil)).To(Equal("gpt4"))
	})

	DescribeTable("nextModel",
		func(current, expected string) {
			Expect(nextModel(current, models)).To(Equal(expected))
		},
		Entry("moves forward", "gpt4", "phi4"),
		Entry("wraps around", "deepseek", "gpt4"),
		Entry("unknown starts over", "llama", "gpt4"),
	)

	It("falls back to the key for unknown display names", func() {
		Expect(displayName("phi4", models)).To(Equal("Phi-4"))
		Expect(displayName("llama", models)).To(Equal("llama"))
	})
})
