package mergecmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pentestai/pentestai/pkg/transcript"
)

const mergeLongDesc string = `Merge one or more transcript databases into a target.

Transcripts are content-addressed, so this is a simple union: messages
that already exist in the target are skipped (deduped by hash).
Relays write these databases when started with --db or
PENTESTAI_TRANSCRIPT_DB.

Examples:
  pentestai merge relay1.db relay2.db
  pentestai merge --sqlite /tmp/merged.db ~/alice/transcripts.db ~/bob/transcripts.db`

const mergeShortDesc string = "Merge transcript databases"

type mergeCommander struct {
	sqlitePath string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to target database (default: ~/.pentestai/transcripts.db)")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	targetPath, err := resolveTargetPath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve target database: %w", err)
	}

	target, err := transcript.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target database %s: %w", targetPath, err)
	}
	defer target.Close()

	var totalNew, totalDuped int

	for _, srcPath := range sources {
		if _, err := os.Stat(srcPath); err != nil {
			return fmt.Errorf("could not open source database %s: %w", srcPath, err)
		}
		srcNew, srcDuped, err := mergeFrom(ctx, target, srcPath)
		if err != nil {
			return err
		}

		totalNew += srcNew
		totalDuped += srcDuped

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, srcNew, srcDuped)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new messages from %d sources (%d already existed) into %s\n",
		totalNew, len(sources), totalDuped, targetPath)

	return nil
}

// mergeFrom copies every node of the database at srcPath into target.
// Nodes are listed in insertion order, so parents are copied before children.
func mergeFrom(ctx context.Context, target transcript.Storer, srcPath string) (added, duped int, err error) {
	source, err := transcript.NewSQLiteStorer(srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("could not open source database %s: %w", srcPath, err)
	}
	defer source.Close()

	nodes, err := source.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list messages from %s: %w", srcPath, err)
	}

	for _, n := range nodes {
		if !n.Verify() {
			return added, duped, fmt.Errorf("message %s in %s does not match its hash", n.Hash, srcPath)
		}
		isNew, err := target.Put(ctx, n)
		if err != nil {
			return added, duped, fmt.Errorf("could not put message %s: %w", n.Hash, err)
		}
		if isNew {
			added++
		} else {
			duped++
		}
	}
	return added, duped, nil
}

func resolveTargetPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".pentestai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts.db"), nil
}
