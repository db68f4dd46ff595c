package askcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pentestai/pentestai/cmd/pentestai/render"
	"github.com/pentestai/pentestai/pkg/client"
	"github.com/pentestai/pentestai/pkg/llm"
)

const askLongDesc string = `Send a single message to a pentestai relay and print the reply.

The reply is rendered as markdown when stdout is a terminal and
printed as plain markdown otherwise. The model defaults to the
saved preference, then to the relay's default model.

Examples:
  pentestai ask "list common nmap flags"
  pentestai ask --model deepseek --relay http://10.0.0.5:3000 "explain SQL injection testing"`

const askShortDesc string = "Ask the relay a one-off question"

type askCommander struct {
	relayURL string
	model    string
	timeout  time.Duration
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.relayURL, "relay", "r", "", "Relay address (default: $PENTESTAI_RELAY or saved preference)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model key, e.g. gpt4 or deepseek")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", client.DefaultRequestTimeout, "Request timeout")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is empty")
	}

	prefs := client.LoadDefaultPreferences()
	model := c.model
	if model == "" {
		model = prefs.Model
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	relay := client.New(client.ResolveBaseURL(c.relayURL, prefs))
	resp, err := relay.Chat(ctx, llm.ChatRequest{Message: message, Model: model})
	if err != nil {
		category := client.Classify(err)
		return fmt.Errorf("%s (%s)", errorMessage(err), category.Hint())
	}

	out := cmd.OutOrStdout()
	r := render.New(out, render.Style())
	fmt.Fprint(out, r.Markdown(resp.Response))

	note := resp.Model.DisplayName
	if resp.Fallback {
		note += ", canned reply while the provider quota recovers"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "(%s)\n", note)

	return nil
}

func errorMessage(err error) string {
	var re *client.Error
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
