package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/reposync"
	"reposync.dev/reposync/internal/runtime"
)

// newStateCmd creates the state command
func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the synchronization state of the working directory",
		Long: `Show the synchronization state of the working directory: absent,
initialized, fetched or checked-out, followed by "shallow" for a repository
with a shallow boundary. No remote is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, ok := runtime.OptionsFrom(cmd.Context())
			if !ok || opts.Request.Directory == "" {
				return fmt.Errorf("a directory is required, use --dir or the request file")
			}
			dir := opts.Request.Directory

			state := reposync.Inspect(dir).String()
			if reposync.IsShallow(dir) {
				state += " shallow"
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	}
}
