package reposync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"reposync.dev/reposync/internal/access"
	"reposync.dev/reposync/internal/commitlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/git"
	"reposync.dev/reposync/internal/messages"
	"reposync.dev/reposync/internal/proxy"
	"reposync.dev/reposync/internal/refs"
)

// ProcessHelper implements Helper by running the git executable
type ProcessHelper struct {
	base
	exec      *git.Executor
	registrar access.Registrar
	owned     *proxy.Service
}

var _ Helper = (*ProcessHelper)(nil)

// NewProcessHelper creates a ProcessHelper and checks that the configured git
// executable runs.
func NewProcessHelper(ctx context.Context, opts Options) (*ProcessHelper, error) {
	h := &ProcessHelper{base: newBase(opts, BackendProcess)}
	h.exec = git.NewExecutor(git.Options{
		Executable: opts.GitExecutable,
		SSHCommand: opts.SSHCommand,
		Timeout:    h.data.CommandTimeout,
		TempDir:    opts.TempDir,
		Verbose:    h.data.VerboseLogs,
		Logger:     h.log,
		Metrics:    h.metrics,
	})

	version, err := h.exec.CheckGitExists(ctx, h.tempDir)
	if err != nil {
		_ = h.exec.Close()
		return nil, err
	}
	h.log.Debug("Using git %s from %s", version, h.exec.Executable())

	h.registrar = opts.Proxy
	if h.registrar == nil {
		h.owned = proxy.NewService(proxy.Options{Logger: h.log, Metrics: h.metrics})
		h.registrar = h.owned
	}
	return h, nil
}

// Close removes the ssh wrapper script and stops an owned proxy service
func (h *ProcessHelper) Close() error {
	err := h.exec.Close()
	if h.owned != nil {
		err = errors.Join(err, h.owned.Close())
	}
	return err
}

func (h *ProcessHelper) create(ctx context.Context, dir string) error {
	return h.exec.Init(ctx, dir)
}

// Fetch fetches the configured branch into dir, creating the repository if needed
func (h *ProcessHelper) Fetch(ctx context.Context, dir string, shallow bool) (err error) {
	defer h.observe("fetch", time.Now(), &err)

	description := "(unresolved) " + h.data.Branch
	if err := h.initialize(ctx, dir, "", h.create); err != nil {
		return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
	}

	data, release, err := access.Adjust(h.data, h.registrar)
	if err != nil {
		return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
	}
	defer release()

	resolved, err := h.resolveRemote(ctx, dir, data)
	if err != nil {
		return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
	}
	description = resolved

	msg := h.text(messages.FetchingBranch, resolved, h.data.ObfuscatedURL())
	if shallow {
		msg += " " + h.text(messages.DoingShallowFetch)
	}
	h.log.Info("%s", msg)

	spec := git.FetchSpec{
		URL:     data.RepositoryURL,
		Ref:     resolved,
		Shallow: shallow,
		Deepen:  !shallow && IsShallow(dir),
		Verbose: data.VerboseLogs,
	}
	if spec.Deepen {
		h.log.Info("%s", h.text(messages.DeepeningRepository))
	}
	if err := h.exec.Fetch(ctx, dir, spec, data.RunOptions()...); err != nil {
		return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
	}

	if strings.HasPrefix(resolved, refs.HeadsPrefix) {
		if err := h.exec.SymbolicRef(ctx, dir, resolved); err != nil {
			return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
		}
	}
	return nil
}

// resolveRemote returns the fully qualified ref to fetch for the configured branch
func (h *ProcessHelper) resolveRemote(ctx context.Context, dir string, data *access.Data) (string, error) {
	if refs.IsFullyQualified(h.data.Branch) {
		return h.data.Branch, nil
	}
	advertised, err := h.exec.RemoteRefs(ctx, dir, data.RepositoryURL, data.RunOptions()...)
	if err != nil {
		return "", err
	}
	return resolveFetchRef(h.data.Branch, refs.FetchOrder, advertised)
}

// resolveFetchRef resolves branch in the given order. A bare HEAD is replaced by
// the head it points at so the fetched ref can be stored locally.
func resolveFetchRef(branch string, order refs.Order, advertised refs.Set) (string, error) {
	resolved, err := refs.Resolve(branch, order, advertised)
	if err != nil {
		return "", err
	}
	if resolved != refs.Head {
		return resolved, nil
	}
	if target, ok := advertised.HeadTarget(); ok {
		return target, nil
	}
	return "", reposyncerrors.NewRefNotFoundError(branch, refs.Candidates(branch, order))
}

// Checkout checks out targetRevision in dir, seeding a new repository from
// cacheDir. It returns the commit checked out.
func (h *ProcessHelper) Checkout(ctx context.Context, cacheDir, dir, targetRevision, previousRevision string) (revision string, err error) {
	defer h.observe("checkout", time.Now(), &err)

	h.log.Info("%s", h.text(messages.CheckingOutRevision, targetRevision))
	h.log.Debug("Previous revision of %s was %q, state %s", dir, previousRevision, Inspect(dir))

	if err := h.initialize(ctx, dir, cacheDir, h.create); err != nil {
		return "", h.fail(err, messages.CheckoutFailed, targetRevision)
	}
	removeIndexLock(dir)

	if !h.exec.ObjectExists(ctx, dir, targetRevision) {
		msg := h.text(messages.CheckoutFailedMissingObj, targetRevision)
		h.log.Error("%s", msg)
		return "", reposyncerrors.NewRepositoryStateError(dir, msg, nil)
	}

	opts := h.data.RunOptions()
	destination := targetRevision
	branch, err := h.exec.BranchForRevision(ctx, dir, targetRevision, opts...)
	if err != nil {
		return "", h.fail(err, messages.CheckoutFailed, targetRevision)
	}
	if branch != "" {
		destination = branch
	}

	if err := h.exec.Checkout(ctx, dir, destination, opts...); err != nil {
		return "", h.fail(err, messages.CheckoutFailed, targetRevision)
	}
	if h.data.UseSubmodules {
		if err := h.exec.SubmoduleUpdate(ctx, dir, opts...); err != nil {
			return "", h.fail(err, messages.CheckoutFailed, targetRevision)
		}
	}

	revision, err = h.exec.RevisionHash(ctx, dir, refs.Head, opts...)
	if err != nil {
		return "", h.fail(err, messages.CheckoutFailed, targetRevision)
	}
	return revision, nil
}

// Merge merges targetRevision into dir without committing. It reports whether
// the merge left anything to commit or moved HEAD.
func (h *ProcessHelper) Merge(ctx context.Context, dir, targetRevision string, committer git.Identity) (changed bool, err error) {
	defer h.observe("merge", time.Now(), &err)

	opts := h.data.RunOptions()
	before, err := h.CurrentRevision(ctx, dir)
	if err != nil {
		return false, h.fail(err, messages.MergeFailed, targetRevision, dir)
	}
	if err := h.exec.Merge(ctx, dir, targetRevision, committer, opts...); err != nil {
		return false, h.fail(err, messages.MergeFailed, targetRevision, dir)
	}

	pending, err := h.somethingToCommit(ctx, dir)
	if err != nil {
		return false, h.fail(err, messages.MergeFailed, targetRevision, dir)
	}
	if pending {
		return true, nil
	}

	// fast forward
	after, err := h.CurrentRevision(ctx, dir)
	if err != nil {
		return false, h.fail(err, messages.MergeFailed, targetRevision, dir)
	}
	h.log.Debug("Revision before merge: %s, after merge: %s", before, after)
	return before != after, nil
}

func (h *ProcessHelper) somethingToCommit(ctx context.Context, dir string) (bool, error) {
	// a merge without file changes still has to be committed
	if _, ok := h.RevisionIfExists(ctx, dir, "MERGE_HEAD"); ok {
		h.log.Debug("Has modified index")
		return true, nil
	}
	status, err := h.exec.Status(ctx, dir, h.data.RunOptions()...)
	if err != nil {
		return false, err
	}
	if len(status) > 0 {
		h.log.Debug("Has modified files")
		return true, nil
	}
	return false, nil
}

// Commit commits all changes in dir. With nothing to commit it returns the
// current revision unchanged.
func (h *ProcessHelper) Commit(ctx context.Context, dir, message string, committer git.Identity) (revision string, err error) {
	defer h.observe("commit", time.Now(), &err)

	pending, err := h.somethingToCommit(ctx, dir)
	if err != nil {
		return "", h.fail(err, messages.CommitFailed, dir)
	}
	if !pending {
		h.log.Debug("%s", h.text(messages.NothingToCommit))
		return h.CurrentRevision(ctx, dir)
	}

	if err := h.exec.Commit(ctx, dir, message, committer, h.data.RunOptions()...); err != nil {
		return "", h.fail(err, messages.CommitFailed, dir)
	}
	return h.CurrentRevision(ctx, dir)
}

// PushRevision force pushes the branch whose tip is revision to the remote
func (h *ProcessHelper) PushRevision(ctx context.Context, dir, revision string) (err error) {
	defer h.observe("push", time.Now(), &err)

	branch, err := h.exec.BranchForRevision(ctx, dir, revision, h.data.RunOptions()...)
	if err != nil {
		return h.fail(err, messages.PushFailed, revision, h.data.ObfuscatedURL())
	}
	if branch == "" {
		msg := h.text(messages.CannotGuessBranch, revision)
		h.log.Error("%s", msg)
		return reposyncerrors.NewRepositoryStateError(dir, msg, nil)
	}

	data, release, err := access.Adjust(h.data, h.registrar)
	if err != nil {
		return h.fail(err, messages.PushFailed, revision, h.data.ObfuscatedURL())
	}
	defer release()

	ref := refs.HeadsPrefix + branch
	if err := h.exec.Push(ctx, dir, data.RepositoryURL, "+"+ref+":"+ref, data.RunOptions()...); err != nil {
		return h.fail(err, messages.PushFailed, revision, h.data.ObfuscatedURL())
	}
	return nil
}

// ExtractCommits lists the change sets reachable from targetRevision but not
// from previousRevision. A blank previousRevision lists the whole history.
func (h *ProcessHelper) ExtractCommits(ctx context.Context, dir, previousRevision, targetRevision string) (changes *Changes, err error) {
	defer h.observe("extract", time.Now(), &err)

	shallows, err := commitlog.ReadShallowFile(filepath.Join(dir, ".git"))
	if err != nil {
		h.log.Warn("Cannot read 'shallow' file in %s: %v", dir, err)
		shallows = commitlog.ShallowSet{}
	}

	format := commitlog.NewFormat()
	parser := format.NewParser(shallows, h.limit)
	revisionRange := targetRevision
	if previousRevision != "" {
		revisionRange = previousRevision + ".." + targetRevision
	}
	h.log.Debug("from revision: [%s]; to revision: [%s]", previousRevision, targetRevision)

	args := []string{"-p", "--name-only", "--format=" + format.String(), revisionRange, "--"}
	if err := h.exec.Log(ctx, dir, parser, args, h.data.RunOptions()...); err != nil {
		return nil, h.fail(err, messages.ExtractingChangesetsError, previousRevision, targetRevision, dir)
	}
	return h.changes(targetRevision, parser.Commits(), parser.Skipped()), nil
}

// GetCommit returns the metadata and changed files of revision
func (h *ProcessHelper) GetCommit(ctx context.Context, dir, revision string) (_ *commitlog.Commit, err error) {
	defer masked(&err)

	shallows, err := commitlog.ReadShallowFile(filepath.Join(dir, ".git"))
	if err != nil {
		shallows = commitlog.ShallowSet{}
	}
	format := commitlog.NewFormat()
	parser := format.NewParser(shallows, 1)
	if err := h.exec.ExtractCommit(ctx, dir, revision, format.String(), parser, h.data.RunOptions()...); err != nil {
		return nil, h.fail(err, messages.CommitNotFound, revision)
	}
	commits := parser.Commits()
	if len(commits) == 0 {
		msg := h.text(messages.CommitNotFound, revision)
		h.log.Error("%s", msg)
		return nil, reposyncerrors.NewRepositoryStateError(dir, msg, nil)
	}
	return &commits[0], nil
}

// CurrentRevision returns the commit HEAD points at
func (h *ProcessHelper) CurrentRevision(ctx context.Context, dir string) (_ string, err error) {
	defer masked(&err)

	if Inspect(dir) == Absent {
		return "", reposyncerrors.NewRepositoryStateError(dir, "no git repository", nil)
	}
	return h.exec.RevisionHash(ctx, dir, refs.Head, h.data.RunOptions()...)
}

// RevisionIfExists resolves revision in dir, reporting false when it cannot
func (h *ProcessHelper) RevisionIfExists(ctx context.Context, dir, revision string) (string, bool) {
	if Inspect(dir) == Absent {
		return "", false
	}
	opts := append(h.data.RunOptions(), git.Quiet())
	hash, err := h.exec.RevisionHash(ctx, dir, revision, opts...)
	if err != nil {
		return "", false
	}
	return hash, true
}

// LatestRevision returns the id of the configured branch on the remote
func (h *ProcessHelper) LatestRevision(ctx context.Context) (revision string, err error) {
	defer h.observe("latest", time.Now(), &err)

	data, release, err := access.Adjust(h.data, h.registrar)
	if err != nil {
		return "", h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}
	defer release()

	advertised, err := h.exec.RemoteRefs(ctx, h.tempDir, data.RepositoryURL, data.RunOptions()...)
	if err != nil {
		return "", h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}
	resolved, err := refs.Resolve(h.data.Branch, refs.FetchOrder, advertised)
	if err != nil {
		return "", h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}
	hash, err := h.exec.RemoteBranchHash(ctx, h.tempDir, data.RepositoryURL, resolved, data.RunOptions()...)
	if err != nil {
		return "", h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}
	if hash == "" {
		err := reposyncerrors.NewRefNotFoundError(h.data.Branch, []string{resolved})
		return "", h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}
	return hash, nil
}

// OpenBranches lists the heads advertised by the remote of data, or of the
// helper's own access data when data is nil
func (h *ProcessHelper) OpenBranches(ctx context.Context, data *access.Data) (branches []Branch, err error) {
	defer h.observe("branches", time.Now(), &err)

	if data == nil {
		data = h.data
	}
	adjusted, release, err := access.Adjust(data, h.registrar)
	if err != nil {
		return nil, h.fail(err, messages.FailedToOpenTransport, data.ObfuscatedURL())
	}
	defer release()

	advertised, err := h.exec.RemoteRefs(ctx, h.tempDir, adjusted.RepositoryURL, adjusted.RunOptions()...)
	if err != nil {
		return nil, h.fail(err, messages.FailedToOpenTransport, data.ObfuscatedURL())
	}
	return headsOf(advertised.Heads()), nil
}

// RevisionExistsInCache reports whether revision names a commit in the cache
// repository in dir
func (h *ProcessHelper) RevisionExistsInCache(ctx context.Context, dir, revision string) (_ bool, err error) {
	defer masked(&err)

	if Inspect(dir) == Absent {
		return false, reposyncerrors.NewRepositoryStateError(dir, "no git repository", nil)
	}
	hash, ok := h.RevisionIfExists(ctx, dir, revision)
	return ok && hash == revision, nil
}
