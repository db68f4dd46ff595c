package statuscmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pentestai/pentestai/pkg/client"
)

const statusLongDesc string = `Show whether a pentestai relay is reachable and what it knows
about the provider's request quota.

Examples:
  pentestai status
  pentestai status --relay http://10.0.0.5:3000`

const statusShortDesc string = "Show relay and quota status"

type statusCommander struct {
	relayURL string
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.relayURL, "relay", "r", "", "Relay address (default: $PENTESTAI_RELAY or saved preference)")

	return cmd
}

func (c *statusCommander) run(ctx context.Context, cmd *cobra.Command) error {
	relay := client.New(client.ResolveBaseURL(c.relayURL, client.LoadDefaultPreferences()))
	out := cmd.OutOrStdout()

	hctx, cancel := context.WithTimeout(ctx, client.DefaultHealthTimeout)
	err := relay.Health(hctx)
	cancel()
	if err != nil {
		return fmt.Errorf("relay %s is unreachable: %w", relay.BaseURL(), err)
	}
	fmt.Fprintf(out, "Relay:       %s (healthy)\n", relay.BaseURL())

	status, err := relay.Status(ctx)
	if err != nil {
		return fmt.Errorf("could not read relay status: %w", err)
	}

	if status.Configured {
		fmt.Fprintln(out, "API token:   configured")
	} else {
		fmt.Fprintln(out, "API token:   missing (set GITHUB_TOKEN on the relay)")
	}

	rl := status.RateLimit
	switch {
	case rl.Limit > 0 && rl.Remaining >= 0:
		fmt.Fprintf(out, "Quota:       %d of %d requests remaining\n", rl.Remaining, rl.Limit)
	default:
		fmt.Fprintln(out, "Quota:       unknown")
	}
	if !rl.ResetTime.IsZero() {
		fmt.Fprintf(out, "Resets:      %s\n", rl.ResetTime.Local().Format(time.RFC1123))
	}
	if rl.IsLimited {
		fmt.Fprintln(out, "Limited:     yes")
	}
	if status.NearCeiling {
		fmt.Fprintf(out, "Fallback:    active (fewer than %d requests left)\n", status.Threshold)
	}
	if !status.ProbeEnabled {
		fmt.Fprintln(out, "Probe:       disabled")
	}

	return nil
}
