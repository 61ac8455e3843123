package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reposync.dev/reposync/internal/config"
	"reposync.dev/reposync/internal/refs"
	"reposync.dev/reposync/internal/runtime"
)

// newSyncCmd creates the sync command
func newSyncCmd() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "sync [request-file...]",
		Short: "Fetch the latest revision and check it out",
		Long: `Resolve the latest revision of the branch, fetch it into the cache (or the
working directory when no cache is set) and check it out in the working
directory.

Several request files are synchronized concurrently, each with its own build
log and helper. Without arguments the request from the flags is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := runtime.OptionsFrom(cmd.Context())
			if !ok {
				return fmt.Errorf("command options are not initialized")
			}

			if len(args) == 0 {
				return syncRequest(cmd.Context(), base, &sync.Mutex{})
			}

			requests := make([]*config.Request, 0, len(args))
			for _, path := range args {
				req, err := config.ReadRequest(path)
				if err != nil {
					return err
				}
				requests = append(requests, req)
			}

			var out sync.Mutex
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(jobs)
			for _, req := range requests {
				opts := base
				opts.Request = req
				// one metrics file cannot hold several registries
				opts.MetricsFile = ""
				g.Go(func() error {
					return syncRequest(gctx, opts, &out)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Number of repositories synchronized at once")

	return cmd
}

func syncRequest(ctx context.Context, opts runtime.Options, out *sync.Mutex) (err error) {
	rc, err := runtime.NewContext(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}()

	dir, err := rc.Dir()
	if err != nil {
		return err
	}
	fetchDir := rc.Request.Cache
	if fetchDir == "" {
		fetchDir = dir
	}

	latest, err := rc.Helper.LatestRevision(ctx)
	if err != nil {
		return err
	}
	if err := rc.Helper.Fetch(ctx, fetchDir, rc.Access.UseShallowClones); err != nil {
		return err
	}
	previous, _ := rc.Helper.RevisionIfExists(ctx, dir, refs.Head)
	revision, err := rc.Helper.Checkout(ctx, rc.Request.Cache, dir, latest, previous)
	if err != nil {
		return err
	}

	out.Lock()
	defer out.Unlock()
	_, _ = fmt.Fprintf(rc.Out, "%s %s\n", dir, revision)
	return nil
}
