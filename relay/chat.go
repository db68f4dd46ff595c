package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pentestai/pentestai/pkg/catalog"
	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/ratelimit"
	"github.com/pentestai/pentestai/pkg/relayerr"
	"github.com/pentestai/pentestai/pkg/transcript"
)

// handleChat relays one user message to the selected model.
//
// The model key falls back to the default model when unknown. When the cached
// quota says the provider is about to throttle us, a canned explanation is
// returned instead of calling the model. Every failure is classified and
// returned as 503, except a missing message which is 400.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	ctx := c.UserContext()

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		r.logger.Debug("failed to parse chat request", zap.Error(err))
		return r.fail(c, r.requestedInfo(req.Model), relayerr.New(relayerr.MissingInput, err))
	}
	if strings.TrimSpace(req.Message) == "" {
		return r.fail(c, r.requestedInfo(req.Model), relayerr.New(relayerr.MissingInput, nil))
	}

	choice, fellBack := r.catalog.Resolve(req.Model)
	if fellBack {
		r.logger.Debug("unknown model, using default",
			zap.String("requested", req.Model),
			zap.String("model", choice.Key),
		)
	}
	info := choice.Info()

	r.logger.Debug("received chat request",
		zap.String("request_id", requestID(c)),
		zap.String("model", choice.Key),
		zap.Int("history", len(req.History)),
		zap.String("message_preview", truncate(req.Message, 50)),
	)

	if r.prober != nil {
		if _, err := r.tracker.Refresh(ctx, r.prober); err != nil {
			r.logger.Warn("quota probe failed", zap.Error(err))
		}
	}
	if r.tracker.NearCeiling() {
		r.logger.Info("quota nearly exhausted, serving fallback", zap.String("model", choice.Key))
		return c.JSON(r.fallbackResponse(info))
	}

	messages := r.buildPrompt(req.History, req.Message)
	reply, err := r.completer.Complete(ctx, choice.ExternalID, messages)
	if err != nil {
		rerr := relayerr.As(err)
		if rerr.Kind == relayerr.RateLimited && r.tracker.NearCeiling() {
			r.logger.Info("rate limited, serving fallback", zap.String("model", choice.Key))
			return c.JSON(r.fallbackResponse(info))
		}
		return r.fail(c, info, rerr)
	}

	r.logger.Debug("received response from upstream",
		zap.String("model", choice.ExternalID),
		zap.String("content_preview", truncate(reply, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	resp := llm.ChatResponse{Response: reply, Model: info}

	if r.storer != nil {
		// Don't fail the request just because storage failed
		turn, err := r.record(ctx, choice, messages[1:], reply)
		if err != nil {
			r.logger.Error("failed to store conversation", zap.Error(err))
		} else {
			resp.Turn = turn
			r.logger.Debug("conversation stored", zap.String("head_hash", truncate(turn, 16)))
		}
	}

	if c.Query("render") == "html" {
		html, err := renderMarkdown(reply)
		if err != nil {
			r.logger.Warn("failed to render markdown", zap.Error(err))
		} else {
			resp.HTML = html
		}
	}

	return c.JSON(resp)
}

// fail writes a classified error response.
func (r *Relay) fail(c *fiber.Ctx, info llm.ModelInfo, err *relayerr.Error) error {
	fields := []zap.Field{
		zap.String("request_id", requestID(c)),
		zap.String("kind", string(err.Kind)),
		zap.String("model", info.Requested),
		zap.Error(err),
	}
	if err.Kind == relayerr.MissingInput {
		r.logger.Debug("rejected chat request", fields...)
	} else {
		r.logger.Error("chat request failed", fields...)
	}

	return c.Status(err.HTTPStatus()).JSON(llm.ErrorResponse{
		Error:     err.Message(),
		Kind:      string(err.Kind),
		Model:     &info,
		ErrorTime: time.Now().UTC().Format(time.RFC3339),
	})
}

// requestedInfo attributes a rejected request to the key the client sent.
func (r *Relay) requestedInfo(key string) llm.ModelInfo {
	info := llm.ModelInfo{Requested: key, DisplayName: r.catalog.DisplayName(key)}
	if ch, ok := r.catalog.Lookup(key); ok {
		info.Actual = ch.ExternalID
	}
	return info
}

// buildPrompt assembles the system prompt, the sanitized history and the new message.
func (r *Relay) buildPrompt(history []llm.Message, message string) []llm.Message {
	prior := sanitizeHistory(history, r.config.MaxHistory)

	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.prompt.Get()})
	messages = append(messages, prior...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})
	return messages
}

// sanitizeHistory keeps the last limit user and assistant messages with content.
// Client-supplied system messages are dropped.
func sanitizeHistory(history []llm.Message, limit int) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// record stores the conversation (without the system prompt) followed by the
// reply, and returns the reply's hash.
func (r *Relay) record(ctx context.Context, choice catalog.Choice, conversation []llm.Message, reply string) (string, error) {
	nodes := make([]*transcript.Node, 0, len(conversation)+1)
	var parent *transcript.Node
	for _, m := range conversation {
		node := transcript.NewNode(llm.ConversationTurn{Role: m.Role, Content: m.Content}, parent)
		nodes = append(nodes, node)
		parent = node
	}
	nodes = append(nodes, transcript.NewNode(llm.ConversationTurn{
		Role:    llm.RoleAssistant,
		Content: reply,
		Model:   choice.ExternalID,
	}, parent))

	head, err := transcript.Record(ctx, r.storer, nodes)
	if err != nil {
		return "", fmt.Errorf("storing conversation: %w", err)
	}
	return head, nil
}

// fallbackResponse is the canned reply served instead of a model call while
// the provider quota is nearly exhausted.
func (r *Relay) fallbackResponse(info llm.ModelInfo) llm.ChatResponse {
	return llm.ChatResponse{
		Response: fallbackText(r.tracker.Snapshot(), time.Now()),
		Model:    info,
		Fallback: true,
	}
}

func fallbackText(state ratelimit.State, now time.Time) string {
	var b strings.Builder
	b.WriteString("**The AI service is close to its request limit.**\n\n")
	if state.Known() {
		fmt.Fprintf(&b, "Only %d of %d requests remain in the current window, so this message was not sent to the model. ",
			state.Remaining, state.Limit)
	} else {
		b.WriteString("This message was not sent to the model. ")
	}
	if wait := state.ResetTime.Sub(now); wait > 0 {
		fmt.Fprintf(&b, "The limit resets at %s (in about %s).",
			state.ResetTime.UTC().Format("15:04:05 MST"), wait.Round(time.Second))
	} else {
		b.WriteString("The limit resets within a minute.")
	}
	b.WriteString("\n\nPlease try again then, or switch to a different model.")
	return b.String()
}

func (r *Relay) handleModels(c *fiber.Ctx) error {
	return c.JSON(llm.ModelsResponse{
		Models:  r.catalog.Entries(),
		Default: r.catalog.DefaultKey(),
	})
}

// handleStatus reports the quota state, refreshing it through the probe when enabled.
func (r *Relay) handleStatus(c *fiber.Ctx) error {
	if r.prober != nil {
		if _, err := r.tracker.Refresh(c.UserContext(), r.prober); err != nil {
			r.logger.Warn("quota probe failed", zap.Error(err))
		}
	}

	return c.JSON(llm.StatusResponse{
		Configured:   r.completer.IsConfigured(),
		ProbeEnabled: r.prober != nil,
		NearCeiling:  r.tracker.NearCeiling(),
		Threshold:    r.tracker.Threshold(),
		RateLimit:    r.tracker.Snapshot(),
	})
}
