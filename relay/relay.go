// Package relay provides the chat relay server: it forwards browser and CLI chat
// messages to a hosted inference API under a fixed system prompt and, when
// enabled, records the relayed turns as content-addressed transcripts.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pentestai/pentestai/pkg/catalog"
	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/provider"
	"github.com/pentestai/pentestai/pkg/ratelimit"
	"github.com/pentestai/pentestai/pkg/transcript"
)

// Completer sends a prompt to a vendor model and returns the reply.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.Message) (string, error)
	IsConfigured() bool
}

// Relay is the chat relay server. It holds no per-conversation state: clients
// send their own history, and the only shared state is the quota tracker and
// the transcript store.
type Relay struct {
	config    Config
	catalog   *catalog.Catalog
	completer Completer
	tracker   *ratelimit.Tracker
	prober    ratelimit.Prober
	storer    transcript.Storer
	prompt    *systemPrompt
	logger    *zap.Logger
	server    *fiber.App
}

// New creates a new Relay.
func New(config Config, logger *zap.Logger) (*Relay, error) {
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}

	cat := config.Catalog
	if cat == nil {
		cat = catalog.Default()
	}

	tracker := config.Tracker
	if tracker == nil {
		var opts []ratelimit.Option
		if config.ProbeThreshold > 0 {
			opts = append(opts, ratelimit.WithThreshold(config.ProbeThreshold))
		}
		if config.ProbeTTL > 0 {
			opts = append(opts, ratelimit.WithProbeTTL(config.ProbeTTL))
		}
		tracker = ratelimit.NewTracker(opts...)
	}

	var storer transcript.Storer
	switch config.TranscriptDB {
	case "", TranscriptsOff:
		logger.Debug("transcript recording disabled")
	case TranscriptsMemory:
		storer = transcript.NewMemoryStorer()
		logger.Warn("recording transcripts in memory, readable by any client at /api/transcripts",
			zap.Int("max_nodes", transcript.DefaultMaxNodes),
		)
	default:
		s, err := transcript.NewSQLiteStorer(config.TranscriptDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		storer = s
		logger.Warn("recording transcripts to SQLite, readable by any client at /api/transcripts",
			zap.String("path", config.TranscriptDB),
		)
	}

	prompt, err := newSystemPrompt(config.SystemPromptFile, logger)
	if err != nil {
		if storer != nil {
			storer.Close()
		}
		return nil, err
	}

	r := &Relay{
		config:    config,
		catalog:   cat,
		completer: provider.New(config.Provider, tracker, logger),
		tracker:   tracker,
		storer:    storer,
		prompt:    prompt,
		logger:    logger,
	}
	if config.ProbeEnabled {
		r.prober = provider.NewQuotaProbe(config.ProbeURL, config.Provider.Token)
	}
	if !r.completer.IsConfigured() {
		logger.Warn("no API token configured, chat requests will fail until GITHUB_TOKEN is set")
	}

	r.server = r.newApp()
	return r, nil
}

func (r *Relay) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          r.handleError,
	})

	app.Use(recover.New())
	app.Use(requestLogger(r.logger))
	app.Use(cors.New())

	api := app.Group("/api")
	api.Post("/chat", r.handleChat)
	api.Get("/models", r.handleModels)
	api.Get("/status", r.handleStatus)
	api.Get("/transcripts", r.handleListTranscripts)
	api.Get("/transcripts/:hash", r.handleGetTranscript)
	api.All("/*", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "healthy"})
	})

	// Browser UI; unknown paths serve index.html
	app.Get("/*", webHandler())

	return app
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		zap.String("listen", r.config.ListenAddr),
		zap.String("upstream", r.config.Provider.BaseURL),
		zap.Bool("probe", r.prober != nil),
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (r *Relay) RunWithListener(ln net.Listener) error {
	r.logger.Info("starting relay server",
		zap.String("listen", ln.Addr().String()),
		zap.String("upstream", r.config.Provider.BaseURL),
	)

	return r.server.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (r *Relay) Shutdown(ctx context.Context) error {
	return r.server.ShutdownWithContext(ctx)
}

// Close releases the prompt watcher and the transcript store.
func (r *Relay) Close() error {
	promptErr := r.prompt.Close()
	if r.storer != nil {
		if err := r.storer.Close(); err != nil {
			return err
		}
	}
	return promptErr
}

// requestLogger logs one line per request, tagged with a request id that is
// echoed back in X-Request-ID.
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals(requestIDKey, id)

		// Run the error handler now so the logged status is the one sent
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		}
		if strings.HasPrefix(c.Path(), "/api/") {
			logger.Info("request", fields...)
		} else {
			logger.Debug("request", fields...)
		}
		return nil
	}
}

const requestIDKey = "request_id"

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// handleError renders errors that escape a handler as JSON.
func (r *Relay) handleError(c *fiber.Ctx, err error) error {
	fe := fiber.ErrInternalServerError
	if !errors.As(err, &fe) {
		r.logger.Error("unhandled error", zap.String("request_id", requestID(c)), zap.Error(err))
	}
	return c.Status(fe.Code).JSON(llm.ErrorResponse{Error: fe.Message})
}

// truncate shortens s to a one-line log preview of at most maxLen cells.
func truncate(s string, maxLen int) string {
	return ansi.Truncate(strings.ReplaceAll(s, "\n", " "), maxLen, "...")
}
