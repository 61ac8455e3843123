package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/cli/common"
	"reposync.dev/reposync/internal/git"
	"reposync.dev/reposync/internal/runtime"
)

type identityFlags struct {
	name  string
	email string
}

func (f *identityFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "committer-name", "", "Committer name (default "+git.DefaultIdentity.Name+")")
	cmd.Flags().StringVar(&f.email, "committer-email", "", "Committer email (default "+git.DefaultIdentity.Email+")")
}

func (f *identityFlags) identity() git.Identity {
	return git.Identity{Name: f.name, Email: f.email}
}

// newMergeCmd creates the merge command
func newMergeCmd() *cobra.Command {
	f := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "merge <revision>",
		Short: "Merge a revision into the working directory without committing",
		Long: `Merge a revision into the checked out branch without committing. Prints
"changed" when the merge left something to commit or moved HEAD, otherwise
"unchanged". Requires the native git backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				changed, err := ctx.Helper.Merge(cmd.Context(), dir, args[0], f.identity())
				if err != nil {
					return err
				}
				if changed {
					_, _ = fmt.Fprintln(ctx.Out, "changed")
				} else {
					_, _ = fmt.Fprintln(ctx.Out, "unchanged")
				}
				return nil
			})
		},
	}
	f.bind(cmd)

	return cmd
}

// newCommitCmd creates the commit command
func newCommitCmd() *cobra.Command {
	var message string
	f := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit all changes in the working directory",
		Long: `Commit all changes of tracked files, including a pending merge, and print
the resulting revision. Nothing to commit prints the current revision.
Requires the native git backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				dir, err := ctx.Dir()
				if err != nil {
					return err
				}
				revision, err := ctx.Helper.Commit(cmd.Context(), dir, message, f.identity())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(ctx.Out, revision)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	_ = cmd.MarkFlagRequired("message")
	f.bind(cmd)

	return cmd
}
