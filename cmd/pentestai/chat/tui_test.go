package chatcmder

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/client"
	"github.com/pentestai/pentestai/pkg/llm"
)

type scriptedChatter struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	errs     []error
}

func (s *scriptedChatter) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return llm.ChatResponse{}, err
		}
	}
	return llm.ChatResponse{
		Response: "Reply to " + req.Message,
		Model:    llm.ModelInfo{Requested: req.Model, DisplayName: displayName(req.Model, testModels.Models)},
	}, nil
}

// collect runs cmd and any batched commands, returning their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, collect(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

var _ = Describe("Chat UI", func() {
	var (
		chatter *scriptedChatter
		session *client.Session
		saved   []string
		m       model
	)

	BeforeEach(func() {
		chatter = &scriptedChatter{}
		session = client.NewSession(chatter, testModels.Models, "gpt4", client.WithMinInterval(time.Millisecond))
		saved = nil
		m = newModel(context.Background(), session, "notty", func(key string) { saved = append(saved, key) })

		next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
		m = next.(model)
	})

	update := func(msg tea.Msg) tea.Cmd {
		next, cmd := m.Update(msg)
		m = next.(model)
		return cmd
	}

	// deliver feeds the reply produced by cmd back into the model.
	deliver := func(cmd tea.Cmd) {
		for _, msg := range collect(cmd) {
			if reply, ok := msg.(replyMsg); ok {
				update(reply)
				return
			}
		}
		Fail("no reply message produced")
	}

	typeText := func(text string) {
		update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	}

	It("starts empty", func() {
		Expect(m.View()).To(ContainSubstring("No messages yet"))
		Expect(m.View()).To(ContainSubstring("GPT-4"))
		Expect(m.View()).To(ContainSubstring("online"))
	})

	It("sends on enter and shows the reply", func() {
		typeText("hello")
		cmd := update(tea.KeyMsg{Type: tea.KeyEnter})
		Expect(m.busy).To(BeTrue())
		Expect(m.input.Value()).To(BeEmpty())

		deliver(cmd)
		Expect(m.busy).To(BeFalse())
		Expect(m.View()).To(ContainSubstring("You"))
		Expect(m.View()).To(ContainSubstring("Reply to hello"))
		Expect(chatter.requests).To(HaveLen(1))
	})

	It("ignores enter on blank input", func() {
		typeText("   ")
		Expect(update(tea.KeyMsg{Type: tea.KeyEnter})).To(BeNil())
		Expect(m.busy).To(BeFalse())
	})

	It("does not send while a request is in flight", func() {
		typeText("first")
		update(tea.KeyMsg{Type: tea.KeyEnter})
		typeText("second")
		Expect(update(tea.KeyMsg{Type: tea.KeyEnter})).To(BeNil())
	})

	It("offers a retry after a failure", func() {
		chatter.errs = []error{&client.Error{Status: 503, Kind: "UpstreamUnavailable", Message: "Service unavailable"}}
		typeText("hello")
		deliver(update(tea.KeyMsg{Type: tea.KeyEnter}))

		Expect(m.lastFailed).To(Equal("hello"))
		Expect(m.View()).To(ContainSubstring("Service unavailable"))
		Expect(m.View()).To(ContainSubstring("Press Ctrl+R to retry."))

		deliver(update(tea.KeyMsg{Type: tea.KeyCtrlR}))
		Expect(m.lastFailed).To(BeEmpty())
		Expect(m.View()).To(ContainSubstring("Reply to hello"))
		Expect(chatter.requests).To(HaveLen(2))
	})

	It("names the next model once a retry will switch", func() {
		unavailable := &client.Error{Status: 503, Kind: "UpstreamUnavailable", Message: "Service unavailable"}
		chatter.errs = []error{unavailable, unavailable}
		typeText("hello")
		deliver(update(tea.KeyMsg{Type: tea.KeyEnter}))
		deliver(update(tea.KeyMsg{Type: tea.KeyCtrlR}))

		Expect(m.View()).To(ContainSubstring("retry with Phi-4"))
		deliver(update(tea.KeyMsg{Type: tea.KeyCtrlR}))
		Expect(chatter.requests[2].Model).To(Equal("phi4"))
	})

	It("has nothing to retry before a failure", func() {
		Expect(update(tea.KeyMsg{Type: tea.KeyCtrlR})).To(BeNil())
		Expect(m.View()).To(ContainSubstring("Nothing to retry."))
	})

	It("cycles models with tab and saves the choice", func() {
		update(tea.KeyMsg{Type: tea.KeyTab})
		Expect(session.Model()).To(Equal("phi4"))
		Expect(saved).To(Equal([]string{"phi4"}))
		Expect(m.View()).To(ContainSubstring("Switched to Phi-4"))
	})

	It("shows when the relay goes offline", func() {
		update(connectionMsg{online: false})
		Expect(m.View()).To(ContainSubstring("offline"))
		update(connectionMsg{online: true})
		Expect(m.View()).To(ContainSubstring("online"))
	})

	It("quits on esc", func() {
		cmd := update(tea.KeyMsg{Type: tea.KeyEsc})
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(tea.QuitMsg{}))
	})
})
