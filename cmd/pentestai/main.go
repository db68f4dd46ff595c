// Command pentestai is the terminal client for a pentestai relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	askcmder "github.com/pentestai/pentestai/cmd/pentestai/ask"
	chatcmder "github.com/pentestai/pentestai/cmd/pentestai/chat"
	mergecmder "github.com/pentestai/pentestai/cmd/pentestai/merge"
	modelscmder "github.com/pentestai/pentestai/cmd/pentestai/models"
	statuscmder "github.com/pentestai/pentestai/cmd/pentestai/status"
)

const rootLongDesc string = `pentestai talks to a pentestai relay, which forwards questions about
penetration testing tools and techniques to a hosted language model.

The relay address comes from --relay, $PENTESTAI_RELAY, the saved
preference in ~/.pentestai/preferences.toml, or http://localhost:3000.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pentestai",
		Short:         "Terminal client for the pentestai relay",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		chatcmder.NewChatCmd(),
		askcmder.NewAskCmd(),
		modelscmder.NewModelsCmd(),
		statuscmder.NewStatusCmd(),
		mergecmder.NewMergeCmd(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
