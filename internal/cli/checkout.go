package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/runtime"
)

// newCheckoutCmd creates the checkout command
func newCheckoutCmd() *cobra.Command {
	var previous string

	cmd := &cobra.Command{
		Use:   "checkout <revision>",
		Short: "Check out a revision in the working directory",
		Long: `Check out a revision in the working directory. With --cache a new working
directory borrows the objects and refs of the cache repository.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				revision, err := ctx.Helper.Checkout(cmd.Context(), ctx.Request.Cache, dir, args[0], previous)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(ctx.Out, revision)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&previous, "previous", "", "Revision checked out before, for the build log")

	return cmd
}
