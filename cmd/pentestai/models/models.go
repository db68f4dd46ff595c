package modelscmder

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pentestai/pentestai/cmd/pentestai/render"
	"github.com/pentestai/pentestai/pkg/client"
)

const modelsLongDesc string = `List the models offered by a pentestai relay.

The relay's default model and your saved preference are marked.
Use --use to save a preferred model for chat and ask.

Examples:
  pentestai models
  pentestai models --use deepseek`

const modelsShortDesc string = "List available models"

type modelsCommander struct {
	relayURL string
	use      string
	prefPath string
}

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.relayURL, "relay", "r", "", "Relay address (default: $PENTESTAI_RELAY or saved preference)")
	cmd.Flags().StringVar(&cmder.use, "use", "", "Save this model key as the preferred model")
	cmd.Flags().StringVar(&cmder.prefPath, "preferences", "", "Preferences file (default: ~/.pentestai/preferences.toml)")

	return cmd
}

func (c *modelsCommander) run(ctx context.Context, cmd *cobra.Command) error {
	prefPath := c.prefPath
	if prefPath == "" {
		p, err := client.DefaultPreferencesPath()
		if err != nil {
			return err
		}
		prefPath = p
	}
	prefs, err := client.LoadPreferences(prefPath)
	if err != nil {
		return err
	}

	relay := client.New(client.ResolveBaseURL(c.relayURL, prefs))
	resp, err := relay.Models(ctx)
	if err != nil {
		return fmt.Errorf("could not list models from %s: %w", relay.BaseURL(), err)
	}

	if c.use != "" {
		found := false
		for _, m := range resp.Models {
			if m.ID == c.use {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("relay does not offer model %q", c.use)
		}
		prefs.Model = c.use
		if err := prefs.Save(prefPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Preferred model set to %s\n", c.use)
		return nil
	}

	out := cmd.OutOrStdout()
	marker := lipgloss.NewStyle()
	if render.IsTerminal(out) {
		marker = marker.Bold(true).Foreground(lipgloss.Color("10"))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\t")
	for _, m := range resp.Models {
		var tags string
		if m.ID == resp.Default {
			tags += " default"
		}
		if m.ID == prefs.Model {
			tags += " preferred"
		}
		if tags != "" {
			tags = marker.Render("(" + tags[1:] + ")")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, tags)
	}
	return tw.Flush()
}
