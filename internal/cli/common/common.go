// Package common provides shared helper functions for CLI commands.
package common

import (
	"errors"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/runtime"
)

// Run is a helper that provides a runtime context to a command's execution
// function and releases it afterwards
func Run(cmd *cobra.Command, fn func(ctx *runtime.Context) error) (err error) {
	ctx, err := runtime.GetContext(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ctx.Close())
	}()
	return fn(ctx)
}
