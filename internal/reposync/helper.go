package reposync

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"reposync.dev/reposync/internal/access"
	"reposync.dev/reposync/internal/buildlog"
	"reposync.dev/reposync/internal/commitlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/git"
	"reposync.dev/reposync/internal/messages"
	"reposync.dev/reposync/internal/metrics"
)

// Backend names, used in errors and metrics
const (
	BackendProcess = "process"
	BackendLibrary = "library"
)

// DefaultChangesetLimit caps the commits returned by ExtractCommits
const DefaultChangesetLimit = 100

// Helper synchronizes one repository described by its access data.
// Callers serialize calls per directory.
type Helper interface {
	// Network operations
	Fetch(ctx context.Context, dir string, shallow bool) error
	PushRevision(ctx context.Context, dir, revision string) error
	LatestRevision(ctx context.Context) (string, error)
	OpenBranches(ctx context.Context, data *access.Data) ([]Branch, error)

	// Working copy operations
	Checkout(ctx context.Context, cacheDir, dir, targetRevision, previousRevision string) (string, error)
	Merge(ctx context.Context, dir, targetRevision string, committer git.Identity) (bool, error)
	Commit(ctx context.Context, dir, message string, committer git.Identity) (string, error)

	// History queries
	ExtractCommits(ctx context.Context, dir, previousRevision, targetRevision string) (*Changes, error)
	GetCommit(ctx context.Context, dir, revision string) (*commitlog.Commit, error)
	CurrentRevision(ctx context.Context, dir string) (string, error)
	RevisionIfExists(ctx context.Context, dir, revision string) (string, bool)
	RevisionExistsInCache(ctx context.Context, dir, revision string) (bool, error)

	// Close releases the ssh wrapper script and any proxy service owned by the helper
	Close() error
}

// Branch is a branch advertised by the remote
type Branch struct {
	Name string
}

// Changes is the result of a change set extraction
type Changes struct {
	// Revision is the new synchronization marker
	Revision string
	Commits  []commitlog.Commit
	// Skipped counts commits beyond the changeset limit
	Skipped int
}

// Options configures a Helper
type Options struct {
	Access *access.Data

	// GitExecutable selects the process backend when non-empty
	GitExecutable string
	SSHCommand    string
	// TempDir holds the ssh wrapper script and is the working directory of
	// commands that need no repository, defaults to os.TempDir()
	TempDir string

	// ChangesetLimit caps extracted commits, zero means DefaultChangesetLimit
	// and a negative value means no limit
	ChangesetLimit int
	// OldestFirst orders extracted commits from oldest to newest
	OldestFirst bool

	// Proxy registers ssh tunnels for the process backend. When nil the
	// helper starts and owns its own proxy service.
	Proxy access.Registrar

	Logger   buildlog.Logger
	Messages messages.Resolver
	Metrics  *metrics.Metrics
}

// New creates the Helper selected by opts: the process backend when a git
// executable is configured, otherwise the library backend.
func New(ctx context.Context, opts Options) (Helper, error) {
	if opts.Access == nil {
		return nil, fmt.Errorf("access data is required")
	}
	if opts.GitExecutable != "" {
		return NewProcessHelper(ctx, opts)
	}
	return NewLibraryHelper(opts), nil
}

// base holds what both backends share
type base struct {
	data    *access.Data
	log     buildlog.Logger
	text    messages.Resolver
	metrics *metrics.Metrics
	backend string
	tempDir string
	limit   int
	oldest  bool
}

func newBase(opts Options, backend string) base {
	b := base{
		data:    opts.Access.Clone(),
		log:     opts.Logger,
		text:    opts.Messages,
		metrics: opts.Metrics,
		backend: backend,
		tempDir: opts.TempDir,
		limit:   opts.ChangesetLimit,
		oldest:  opts.OldestFirst,
	}
	if b.log == nil {
		b.log = buildlog.Discard
	}
	if b.text == nil {
		b.text = messages.Default
	}
	if b.tempDir == "" {
		b.tempDir = os.TempDir()
	}
	if b.limit == 0 {
		b.limit = DefaultChangesetLimit
	}
	return b
}

// fail appends the message for key and the cause to the build log, then
// returns both as one error wrapping err.
func (b *base) fail(err error, key messages.Key, args ...any) error {
	msg := b.text(key, args...)
	b.log.Error("%s %s", msg, git.ObfuscateURLs(err.Error()))
	return reposyncerrors.Obfuscate(fmt.Errorf("%s: %w", msg, err))
}

// observe records the outcome of an operation and masks credentials in the
// returned error, use with defer
func (b *base) observe(operation string, start time.Time, err *error) {
	masked(err)
	b.metrics.OperationFinished(operation, b.backend, start, *err)
}

// masked makes sure no URL password leaves the helper, use with defer
func masked(err *error) {
	*err = reposyncerrors.Obfuscate(*err)
}

// changes packages extraction results in the configured order
func (b *base) changes(revision string, commits []commitlog.Commit, skipped int) *Changes {
	if b.oldest {
		slices.Reverse(commits)
	}
	b.metrics.CommitsExtracted(len(commits), skipped)
	return &Changes{Revision: revision, Commits: commits, Skipped: skipped}
}

// headsOf lists the branches of an advertised ref set
func headsOf(names []string) []Branch {
	branches := make([]Branch, 0, len(names))
	for _, name := range names {
		branches = append(branches, Branch{Name: name})
	}
	return branches
}
