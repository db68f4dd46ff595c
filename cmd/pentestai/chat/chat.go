package chatcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pentestai/pentestai/cmd/pentestai/render"
	"github.com/pentestai/pentestai/pkg/client"
	"github.com/pentestai/pentestai/pkg/logger"
)

const chatLongDesc string = `Chat with a pentestai relay.

On a terminal this opens an interactive chat: Enter sends, Ctrl+R
retries the last failed message, Tab switches model, Esc quits.
When stdin or stdout is not a terminal (or with --plain) it reads one
message per line and prints each reply; lines starting with / are
commands: /retry, /model <key>, /models, /quit.

Requests are spaced at least two seconds apart. Failed requests are
never retried automatically; after two failures in a row a retry
switches to the next model.

Examples:
  pentestai chat
  pentestai chat --model deepseek --relay http://10.0.0.5:3000
  echo "list nmap flags" | pentestai chat`

const chatShortDesc string = "Chat with the relay"

type chatCommander struct {
	relayURL    string
	model       string
	plain       bool
	debugLog    string
	minInterval time.Duration
	timeout     time.Duration
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.relayURL, "relay", "r", "", "Relay address (default: $PENTESTAI_RELAY or saved preference)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model key to start with (default: saved preference)")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Line mode even on a terminal")
	cmd.Flags().StringVar(&cmder.debugLog, "debug-log", "", "Write debug logs to this file")
	cmd.Flags().DurationVar(&cmder.minInterval, "min-interval", client.DefaultMinInterval, "Minimum time between requests")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", client.DefaultRequestTimeout, "Request timeout")
	cmd.Flags().MarkHidden("min-interval")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	log := zap.NewNop()
	if c.debugLog != "" {
		l, closeLog, err := logger.NewFileLogger(c.debugLog)
		if err != nil {
			return fmt.Errorf("could not open debug log: %w", err)
		}
		defer closeLog()
		log = l
	}

	prefPath, _ := client.DefaultPreferencesPath()
	prefs := client.LoadDefaultPreferences()

	relay := client.New(client.ResolveBaseURL(c.relayURL, prefs))
	models, err := relay.Models(ctx)
	if err != nil {
		return fmt.Errorf("could not reach relay at %s: %w", relay.BaseURL(), err)
	}

	model := pickModel(c.model, prefs.Model, models.Default, models.Models)
	session := client.NewSession(relay, models.Models, model,
		client.WithMinInterval(c.minInterval),
		client.WithRequestTimeout(c.timeout),
	)
	log.Debug("chat session started",
		zap.String("relay", relay.BaseURL()),
		zap.String("model", model),
	)

	// Remember model switches like the browser UI does
	savePreference := func(key string) {
		if prefPath == "" {
			return
		}
		prefs.Model = key
		if err := prefs.Save(prefPath); err != nil {
			log.Warn("failed to save preferences", zap.Error(err))
		}
	}

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	if c.plain || !isInteractive(in, out) {
		return runPlain(ctx, in, out, session, render.New(out, render.Style()), savePreference)
	}
	return runTUI(ctx, relay, session, savePreference, log)
}

func isInteractive(in io.Reader, out io.Writer) bool {
	f, ok := in.(*os.File)
	return ok && render.IsTerminal(f) && render.IsTerminal(out)
}

func runTUI(ctx context.Context, relay *client.Client, session *client.Session, save func(string), log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, session, render.Style(), save)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	monitor := client.NewMonitor(relay, client.OnChange(func(online bool, err error) {
		log.Info("connection changed", zap.Bool("online", online), zap.Error(err))
		p.Send(connectionMsg{online: online})
	}))
	go monitor.Run(ctx)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat UI failed: %w", err)
	}
	return nil
}
