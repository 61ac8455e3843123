package cli

import (
	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/runtime"
)

// newPushCmd creates the push command
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <revision>",
		Short: "Force push the branch whose tip is the revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				return ctx.Helper.PushRevision(cmd.Context(), dir, args[0])
			})
		},
	}
}
