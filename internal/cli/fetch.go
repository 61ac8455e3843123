package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/refs"
	"reposync.dev/reposync/internal/runtime"
)

// newFetchCmd creates the fetch command
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the branch into the working directory",
		Long: `Fetch the configured branch or tag into the working directory, creating the
repository if needed. A shallow repository is deepened by a full fetch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				if err := ctx.Helper.Fetch(cmd.Context(), dir, ctx.Access.UseShallowClones); err != nil {
					return err
				}
				if revision, ok := ctx.Helper.RevisionIfExists(cmd.Context(), dir, refs.Head); ok {
					_, _ = fmt.Fprintln(ctx.Out, revision)
				}
				return nil
			})
		},
	}
}
