package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/runtime"
)

// newLatestCmd creates the latest command
func newLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the revision the branch points at on the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				revision, err := ctx.Helper.LatestRevision(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(ctx.Out, revision)
				return nil
			})
		},
	}
}

// newBranchesCmd creates the branches command
func newBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branches",
		Short: "List the branches of the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				branches, err := ctx.Helper.OpenBranches(cmd.Context(), nil)
				if err != nil {
					return err
				}
				for _, b := range branches {
					_, _ = fmt.Fprintln(ctx.Out, b.Name)
				}
				return nil
			})
		},
	}
}
