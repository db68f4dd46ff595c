package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pentestai/pentestai/pkg/llm"
)

const (
	// DefaultMinInterval is the minimum spacing between two chat requests.
	DefaultMinInterval = 2 * time.Second

	// DefaultRotateAfter is how many consecutive failures make Retry switch model.
	DefaultRotateAfter = 2

	// DefaultRequestTimeout is slightly above the relay's upstream timeout so the
	// relay gets to report its own Timeout error first.
	DefaultRequestTimeout = 160 * time.Second

	defaultMaxHistory = 20
)

// ErrEmptyMessage is returned when submitting blank text.
var ErrEmptyMessage = errors.New("message is empty")

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderError Sender = "error"
)

// Entry is one line of the session transcript.
type Entry struct {
	Sender   Sender
	Text     string
	Model    *llm.ModelInfo
	Fallback bool
	Time     time.Time

	// Category and Retry are set on error entries. Retry is the text to resubmit.
	Category Category
	Retry    string
}

// Chatter sends a chat request to the relay.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// Session is one chat conversation. It is safe for concurrent use: a UI can
// read Entries while a Submit is in flight.
type Session struct {
	chatter Chatter
	limiter *rate.Limiter

	rotateAfter int
	timeout     time.Duration
	maxHistory  int
	now         func() time.Time

	mu       sync.Mutex
	models   []llm.ModelEntry
	model    string
	entries  []Entry
	history  []llm.Message
	failures int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMinInterval sets the minimum spacing between requests.
func WithMinInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithRotateAfter sets how many consecutive failures trigger a model switch on Retry.
func WithRotateAfter(n int) SessionOption {
	return func(s *Session) { s.rotateAfter = n }
}

// WithRequestTimeout bounds each chat request.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// NewSession starts a session using model, rotating through models on repeated failures.
func NewSession(chatter Chatter, models []llm.ModelEntry, model string, opts ...SessionOption) *Session {
	s := &Session{
		chatter:     chatter,
		limiter:     rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		rotateAfter: DefaultRotateAfter,
		timeout:     DefaultRequestTimeout,
		maxHistory:  defaultMaxHistory,
		now:         time.Now,
		models:      append([]llm.ModelEntry(nil), models...),
		model:       model,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the model key used for the next request.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel switches to a model from the session's model list.
func (s *Session) SetModel(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.ID == key {
			s.model = key
			return nil
		}
	}
	return fmt.Errorf("unknown model %q", key)
}

// Models returns the selectable models.
func (s *Session) Models() []llm.ModelEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ModelEntry(nil), s.models...)
}

// Entries returns a copy of the transcript.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Failures returns the number of consecutive failed requests.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Submit appends text as a user entry and sends it. The returned entry is the
// bot reply, or an error entry carrying a retry action. Requests closer together
// than the minimum interval wait for their turn.
func (s *Session) Submit(ctx context.Context, text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}

	s.mu.Lock()
	s.entries = append(s.entries, Entry{Sender: SenderUser, Text: text, Time: s.now()})
	s.mu.Unlock()

	return s.send(ctx, text)
}

// Retry resends text after a failure without adding a new user entry. After
// rotateAfter consecutive failures it first switches to the next model.
func (s *Session) Retry(ctx context.Context, text string) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.rotateAfter > 0 && s.failures >= s.rotateAfter {
		s.rotateLocked()
	}
	s.mu.Unlock()

	return s.send(ctx, text)
}

// rotateLocked moves to the next model in the list, wrapping around.
func (s *Session) rotateLocked() {
	if len(s.models) < 2 {
		return
	}
	next := 0
	for i, m := range s.models {
		if m.ID == s.model {
			next = (i + 1) % len(s.models)
			break
		}
	}
	s.model = s.models[next].ID
	s.failures = 0
}

func (s *Session) send(ctx context.Context, text string) (Entry, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Entry{}, fmt.Errorf("waiting to send: %w", err)
	}

	s.mu.Lock()
	req := llm.ChatRequest{
		Message: text,
		Model:   s.model,
		History: append([]llm.Message(nil), s.history...),
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.chatter.Chat(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failures++
		category := Classify(err)
		entry := Entry{
			Sender:   SenderError,
			Text:     errorText(err),
			Time:     s.now(),
			Category: category,
			Retry:    text,
		}
		var re *Error
		if errors.As(err, &re) {
			entry.Model = re.Model
		}
		s.entries = append(s.entries, entry)
		return entry, err
	}

	s.failures = 0
	model := resp.Model
	entry := Entry{
		Sender:   SenderBot,
		Text:     resp.Response,
		Model:    &model,
		Fallback: resp.Fallback,
		Time:     s.now(),
	}
	s.entries = append(s.entries, entry)

	// Canned fallback text is not part of the conversation with the model
	if !resp.Fallback {
		s.history = append(s.history,
			llm.Message{Role: llm.RoleUser, Content: text},
			llm.Message{Role: llm.RoleAssistant, Content: resp.Response},
		)
		if len(s.history) > s.maxHistory {
			s.history = s.history[len(s.history)-s.maxHistory:]
		}
	}
	return entry, nil
}

func errorText(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out."
	}
	return "Unable to reach the relay: " + err.Error()
}
