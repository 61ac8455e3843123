package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/commitlog"
	"reposync.dev/reposync/internal/runtime"
)

// newChangesCmd creates the changes command
func newChangesCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "changes <revision>",
		Short: "List the change sets leading to a revision",
		Long: `List the commits reachable from a revision but not from --since, newest first
unless --oldest-first is set. At most --changeset-limit commits are listed; the
number of skipped commits is reported after them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				changes, err := ctx.Helper.ExtractCommits(cmd.Context(), dir, since, args[0])
				if err != nil {
					return err
				}
				for _, c := range changes.Commits {
					printCommit(ctx.Out, c)
				}
				if changes.Skipped > 0 {
					_, _ = fmt.Fprintf(ctx.Out, "... %d more commits skipped\n", changes.Skipped)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Revision already synchronized, blank lists the whole history")

	return cmd
}

// newCommitInfoCmd creates the commit-info command
func newCommitInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit-info <revision>",
		Short: "Show the author, message and files of a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				commit, err := ctx.Helper.GetCommit(cmd.Context(), dir, args[0])
				if err != nil {
					return err
				}
				printCommit(ctx.Out, *commit)
				return nil
			})
		},
	}
}

func printCommit(w io.Writer, c commitlog.Commit) {
	_, _ = fmt.Fprintf(w, "commit %s\n", c.ID)
	_, _ = fmt.Fprintf(w, "Author: %s\n", c.Author)
	_, _ = fmt.Fprintf(w, "Date:   %s\n\n", c.Date.Format(time.RFC1123Z))
	for _, line := range strings.Split(c.Message, "\n") {
		_, _ = fmt.Fprintf(w, "    %s\n", line)
	}
	if len(c.Files) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, file := range c.Files {
			_, _ = fmt.Fprintf(w, "  %s\n", file)
		}
	}
	_, _ = fmt.Fprintln(w)
}
