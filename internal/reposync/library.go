package reposync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"

	"reposync.dev/reposync/internal/access"
	"reposync.dev/reposync/internal/commitlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/git"
	"reposync.dev/reposync/internal/messages"
	"reposync.dev/reposync/internal/refs"
)

// anonymousRemote is the name go-git requires for unnamed remotes
const anonymousRemote = "anonymous"

// libraryRefOrder prefers a tag over a head of the same name when the
// library backend resolves the requested branch
const libraryRefOrder = refs.CheckoutOrder

// LibraryHelper implements Helper in process with go-git. Merge and Commit
// are not supported.
type LibraryHelper struct {
	base
}

var _ Helper = (*LibraryHelper)(nil)

// NewLibraryHelper creates a LibraryHelper
func NewLibraryHelper(opts Options) *LibraryHelper {
	return &LibraryHelper{base: newBase(opts, BackendLibrary)}
}

// Close is a no-op, the library backend holds no external resources
func (h *LibraryHelper) Close() error {
	return nil
}

func (h *LibraryHelper) create(_ context.Context, dir string) error {
	_, err := gogit.PlainInit(dir, false)
	return err
}

// openRepository opens the repository in dir. Alternates are resolved against
// the whole file system so a working copy can borrow objects from its cache.
func openRepository(dir string) (*gogit.Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	st := filesystem.NewStorageWithOptions(
		osfs.New(filepath.Join(abs, ".git")),
		cache.NewObjectLRUDefault(),
		filesystem.Options{AlternatesFS: osfs.New("/", osfs.WithBoundOS())},
	)
	repo, err := gogit.Open(st, osfs.New(abs))
	if err != nil {
		return nil, reposyncerrors.NewRepositoryStateError(dir, "cannot open repository", err)
	}
	return repo, nil
}

// withTimeout bounds a network operation by the command timeout
func (h *LibraryHelper) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.data.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.data.CommandTimeout)
}

func (h *LibraryHelper) progress() (*git.HandlerWriter, func()) {
	if !h.data.VerboseLogs {
		return nil, func() {}
	}
	w := git.NewHandlerWriter(git.NewLoggingHandler(h.log))
	return w, w.Flush
}

// advertised lists the refs of remote. A symbolic HEAD is recorded with the
// id of its target.
func advertised(ctx context.Context, remote *gogit.Remote, auth transport.AuthMethod) (refs.Set, error) {
	list, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: auth})
	if err != nil {
		return nil, err
	}
	set := refs.Set{}
	var headTarget plumbing.ReferenceName
	for _, ref := range list {
		switch ref.Type() {
		case plumbing.HashReference:
			set[ref.Name().String()] = ref.Hash().String()
		case plumbing.SymbolicReference:
			if ref.Name() == plumbing.HEAD {
				headTarget = ref.Target()
			}
		}
	}
	if id, ok := set[headTarget.String()]; ok && headTarget != "" {
		set[refs.Head] = id
	}
	return set, nil
}

// localRefs lists the heads and tags stored in repo
func localRefs(repo *gogit.Repository) (refs.Set, error) {
	iter, err := repo.References()
	if err != nil {
		return nil, err
	}
	set := refs.Set{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		id := ref.Hash()
		if ref.Name().IsTag() {
			// annotated tags point at their commit
			if tag, err := repo.TagObject(id); err == nil {
				id = tag.Target
			}
		}
		set[ref.Name().String()] = id.String()
		return nil
	})
	return set, err
}

// Fetch fetches the configured branch into dir, creating the repository if needed
func (h *LibraryHelper) Fetch(ctx context.Context, dir string, shallow bool) (err error) {
	defer h.observe("fetch", time.Now(), &err)

	description := "(unresolved) " + h.data.Branch
	failed := func(err error) error {
		return h.fail(err, messages.FetchingFailed, h.data.ObfuscatedURL(), description, dir)
	}

	if err := h.initialize(ctx, dir, "", h.create); err != nil {
		return failed(err)
	}
	repo, err := openRepository(dir)
	if err != nil {
		return failed(err)
	}
	auth, err := authMethod(h.data)
	if err != nil {
		return failed(err)
	}
	cfg, err := h.remoteConfig(h.data)
	if err != nil {
		return failed(err)
	}
	remote, err := repo.CreateRemoteAnonymous(cfg)
	if err != nil {
		return failed(reposyncerrors.NewTransportError(h.data.ObfuscatedURL(), h.text(messages.InvalidURI, h.data.ObfuscatedURL()), err))
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	resolved := h.data.Branch
	if !refs.IsFullyQualified(resolved) {
		set, err := advertised(ctx, remote, auth)
		if err != nil {
			return failed(err)
		}
		if resolved, err = resolveFetchRef(h.data.Branch, libraryRefOrder, set); err != nil {
			return failed(err)
		}
	}
	description = resolved

	msg := h.text(messages.FetchingBranch, resolved, h.data.ObfuscatedURL())
	if shallow {
		msg += " " + h.text(messages.DoingShallowFetch)
	}
	h.log.Info("%s", msg)

	opts := &gogit.FetchOptions{
		RemoteName: anonymousRemote,
		RefSpecs:   []config.RefSpec{config.RefSpec("+" + resolved + ":" + resolved)},
		Auth:       auth,
		Force:      true,
		Tags:       gogit.TagFollowing,
	}
	deepen := !shallow && IsShallow(dir)
	switch {
	case shallow:
		opts.Depth = 1
	case deepen:
		h.log.Info("%s", h.text(messages.DeepeningRepository))
		opts.Depth = git.UnlimitedDepth
	}
	progress, flush := h.progress()
	if progress != nil {
		opts.Progress = progress
	}
	defer flush()

	if err := remote.FetchContext(ctx, opts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return failed(err)
	}
	if deepen {
		if err := pruneShallows(repo); err != nil {
			return failed(err)
		}
	}

	if strings.HasPrefix(resolved, refs.HeadsPrefix) {
		head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(resolved))
		if err := repo.Storer.SetReference(head); err != nil {
			return failed(err)
		}
	}
	return nil
}

// pruneShallows drops shallow markers of commits whose parents are now present.
// go-git only ever adds to the shallow list.
func pruneShallows(repo *gogit.Repository) error {
	shallows, err := repo.Storer.Shallow()
	if err != nil || len(shallows) == 0 {
		return err
	}
	var kept []plumbing.Hash
	for _, id := range shallows {
		c, err := object.GetCommit(repo.Storer, id)
		if err != nil {
			kept = append(kept, id)
			continue
		}
		for _, parent := range c.ParentHashes {
			if repo.Storer.HasEncodedObject(parent) != nil {
				kept = append(kept, id)
				break
			}
		}
	}
	if len(kept) == len(shallows) {
		return nil
	}
	return repo.Storer.SetShallow(kept)
}

// Checkout checks out targetRevision in dir, seeding a new repository from
// cacheDir. HEAD is attached to the configured branch when that branch points
// at the target, otherwise it stays detached.
func (h *LibraryHelper) Checkout(ctx context.Context, cacheDir, dir, targetRevision, previousRevision string) (revision string, err error) {
	defer h.observe("checkout", time.Now(), &err)

	h.log.Info("%s", h.text(messages.CheckingOutRevision, targetRevision))
	h.log.Debug("Previous revision of %s was %q, state %s", dir, previousRevision, Inspect(dir))
	failed := func(err error) error {
		return h.fail(err, messages.CheckoutFailed, targetRevision)
	}

	if err := h.initialize(ctx, dir, cacheDir, h.create); err != nil {
		return "", failed(err)
	}
	removeIndexLock(dir)

	repo, err := openRepository(dir)
	if err != nil {
		return "", failed(err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(targetRevision))
	if err != nil {
		msg := h.text(messages.CheckoutFailedMissingObj, targetRevision)
		h.log.Error("%s", msg)
		return "", reposyncerrors.NewRepositoryStateError(dir, msg, err)
	}

	link := plumbing.ReferenceName(h.data.Branch)
	if strings.TrimSpace(h.data.Branch) == "" {
		if head, err := repo.Storer.Reference(plumbing.HEAD); err == nil && head.Type() == plumbing.SymbolicReference {
			link = head.Target()
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", failed(err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", failed(err)
	}
	h.attachHead(repo, link.String(), *hash)

	if h.data.UseSubmodules {
		if err := h.updateSubmodules(ctx, wt); err != nil {
			h.log.Warn("%s %v", h.text(messages.SubmodulesNotSupported), err)
		}
	}
	return hash.String(), nil
}

// attachHead points HEAD at the head ref name resolves to when it holds hash.
// Resolution failures leave HEAD detached.
func (h *LibraryHelper) attachHead(repo *gogit.Repository, name string, hash plumbing.Hash) {
	local, err := localRefs(repo)
	if err != nil {
		h.log.Debug("Cannot list local refs: %v", err)
		return
	}
	resolved, err := refs.Resolve(name, refs.CheckoutOrder, local)
	if err != nil || !strings.HasPrefix(resolved, refs.HeadsPrefix) || local[resolved] != hash.String() {
		return
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(resolved))
	if err := repo.Storer.SetReference(head); err != nil {
		h.log.Warn("Cannot attach HEAD to %s: %v", resolved, err)
	}
}

func (h *LibraryHelper) updateSubmodules(ctx context.Context, wt *gogit.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	auth, err := authMethod(h.data)
	if err != nil {
		return err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return subs.UpdateContext(ctx, &gogit.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: gogit.DefaultSubmoduleRecursionDepth,
		Auth:              auth,
	})
}

// Merge is not supported by the library backend
func (h *LibraryHelper) Merge(_ context.Context, dir, targetRevision string, _ git.Identity) (_ bool, err error) {
	defer h.observe("merge", time.Now(), &err)
	return false, h.fail(reposyncerrors.NewUnsupportedOperationError(BackendLibrary, "merge"), messages.MergeFailed, targetRevision, dir)
}

// Commit is not supported by the library backend
func (h *LibraryHelper) Commit(_ context.Context, dir, _ string, _ git.Identity) (_ string, err error) {
	defer h.observe("commit", time.Now(), &err)
	return "", h.fail(reposyncerrors.NewUnsupportedOperationError(BackendLibrary, "commit"), messages.CommitFailed, dir)
}

// PushRevision force pushes the branch whose tip is revision to the remote
func (h *LibraryHelper) PushRevision(ctx context.Context, dir, revision string) (err error) {
	defer h.observe("push", time.Now(), &err)
	failed := func(err error) error {
		return h.fail(err, messages.PushFailed, revision, h.data.ObfuscatedURL())
	}

	repo, err := openRepository(dir)
	if err != nil {
		return failed(err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return failed(err)
	}
	branch, err := branchFor(repo, *hash)
	if err != nil {
		return failed(err)
	}
	if branch == "" {
		msg := h.text(messages.CannotGuessBranch, revision)
		h.log.Error("%s", msg)
		return reposyncerrors.NewRepositoryStateError(dir, msg, nil)
	}

	auth, err := authMethod(h.data)
	if err != nil {
		return failed(err)
	}
	cfg, err := h.remoteConfig(h.data)
	if err != nil {
		return failed(err)
	}
	remote, err := repo.CreateRemoteAnonymous(cfg)
	if err != nil {
		return failed(err)
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	progress, flush := h.progress()
	defer flush()

	opts := &gogit.PushOptions{
		RemoteName: anonymousRemote,
		RefSpecs:   []config.RefSpec{config.RefSpec("+" + branch + ":" + branch)},
		Auth:       auth,
	}
	if progress != nil {
		opts.Progress = progress
	}
	if err := remote.PushContext(ctx, opts); err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return failed(err)
	}
	return nil
}

// branchFor returns the head ref pointing at hash, preferring the one HEAD
// is attached to
func branchFor(repo *gogit.Repository, hash plumbing.Hash) (string, error) {
	if head, err := repo.Storer.Reference(plumbing.HEAD); err == nil && head.Type() == plumbing.SymbolicReference {
		if ref, err := repo.Reference(head.Target(), true); err == nil && ref.Hash() == hash {
			return head.Target().String(), nil
		}
	}
	local, err := localRefs(repo)
	if err != nil {
		return "", err
	}
	for _, name := range local.Heads() {
		if local[refs.HeadsPrefix+name] == hash.String() {
			return refs.HeadsPrefix + name, nil
		}
	}
	return "", nil
}

// walk visits the commits reachable from target but not from previous,
// newest first by committer time. Shallow boundaries end the walk.
func walk(repo *gogit.Repository, previous, target string, visit func(*object.Commit) error) error {
	targetHash, err := repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return err
	}
	tip, err := repo.CommitObject(*targetHash)
	if err != nil {
		return err
	}

	ignore, err := missingParents(repo)
	if err != nil {
		return err
	}

	seen := map[plumbing.Hash]bool{}
	if previous != "" {
		prevHash, err := repo.ResolveRevision(plumbing.Revision(previous))
		if err != nil {
			return err
		}
		prev, err := repo.CommitObject(*prevHash)
		if err != nil {
			return err
		}
		err = object.NewCommitIterCTime(prev, nil, ignore).ForEach(func(c *object.Commit) error {
			seen[c.Hash] = true
			return nil
		})
		if err != nil {
			return err
		}
	}
	return object.NewCommitIterCTime(tip, seen, ignore).ForEach(visit)
}

// missingParents returns the parents of shallow commits absent from the store
func missingParents(repo *gogit.Repository) ([]plumbing.Hash, error) {
	shallows, err := repo.Storer.Shallow()
	if err != nil {
		return nil, err
	}
	var missing []plumbing.Hash
	for _, id := range shallows {
		c, err := object.GetCommit(repo.Storer, id)
		if err != nil {
			continue
		}
		for _, parent := range c.ParentHashes {
			if repo.Storer.HasEncodedObject(parent) != nil {
				missing = append(missing, parent)
			}
		}
	}
	return missing, nil
}

// describe converts c to a change set. Merge commits and shallow boundary
// commits carry no file list.
func describe(c *object.Commit, shallows commitlog.ShallowSet) (commitlog.Commit, error) {
	out := commitlog.Commit{
		ID:      c.Hash.String(),
		Author:  commitlog.Author{Name: c.Committer.Name, Email: c.Committer.Email},
		Date:    time.Unix(c.Committer.When.Unix(), 0),
		Message: strings.TrimRight(c.Message, "\n"),
	}
	if out.Author.Name == "" {
		out.Author.Name = commitlog.UnknownAuthorName
	}
	if c.NumParents() > 1 || shallows.Contains(out.ID) {
		return out, nil
	}

	tree, err := c.Tree()
	if err != nil {
		return out, err
	}
	var parentTree *object.Tree
	if c.NumParents() == 1 {
		parent, err := c.Parent(0)
		if err != nil {
			return out, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return out, err
		}
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return out, err
	}
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		out.Files = append(out.Files, name)
	}
	return out, nil
}

func shallowSet(repo *gogit.Repository) commitlog.ShallowSet {
	set := commitlog.ShallowSet{}
	shallows, err := repo.Storer.Shallow()
	if err != nil {
		return set
	}
	for _, id := range shallows {
		set[id.String()] = struct{}{}
	}
	return set
}

// ExtractCommits lists the change sets reachable from targetRevision but not
// from previousRevision
func (h *LibraryHelper) ExtractCommits(_ context.Context, dir, previousRevision, targetRevision string) (changes *Changes, err error) {
	defer h.observe("extract", time.Now(), &err)
	failed := func(err error) error {
		return h.fail(err, messages.ExtractingChangesetsError, previousRevision, targetRevision, dir)
	}

	repo, err := openRepository(dir)
	if err != nil {
		return nil, failed(err)
	}
	shallows := shallowSet(repo)

	var commits []commitlog.Commit
	skipped := 0
	err = walk(repo, previousRevision, targetRevision, func(c *object.Commit) error {
		if h.limit > 0 && len(commits) >= h.limit {
			skipped++
			return nil
		}
		commit, err := describe(c, shallows)
		if err != nil {
			return err
		}
		commits = append(commits, commit)
		return nil
	})
	if err != nil {
		return nil, failed(err)
	}
	return h.changes(targetRevision, commits, skipped), nil
}

// GetCommit returns the metadata and changed files of revision
func (h *LibraryHelper) GetCommit(_ context.Context, dir, revision string) (_ *commitlog.Commit, err error) {
	defer masked(&err)

	repo, err := openRepository(dir)
	if err != nil {
		return nil, h.fail(err, messages.CommitNotFound, revision)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, h.fail(reposyncerrors.NewRepositoryStateError(dir, "unknown revision", err), messages.CommitNotFound, revision)
	}
	c, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, h.fail(err, messages.CommitNotFound, revision)
	}
	commit, err := describe(c, shallowSet(repo))
	if err != nil {
		return nil, h.fail(err, messages.CommitNotFound, revision)
	}
	return &commit, nil
}

// CurrentRevision returns the commit HEAD points at
func (h *LibraryHelper) CurrentRevision(_ context.Context, dir string) (_ string, err error) {
	defer masked(&err)

	if Inspect(dir) == Absent {
		return "", reposyncerrors.NewRepositoryStateError(dir, "no git repository", nil)
	}
	repo, err := openRepository(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", reposyncerrors.NewRepositoryStateError(dir, h.text(messages.CannotDetermineRevision, refs.Head, dir), err)
	}
	return head.Hash().String(), nil
}

// RevisionIfExists resolves revision in dir, reporting false when it cannot
func (h *LibraryHelper) RevisionIfExists(_ context.Context, dir, revision string) (string, bool) {
	if Inspect(dir) == Absent {
		return "", false
	}
	repo, err := openRepository(dir)
	if err != nil {
		return "", false
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return "", false
	}
	return hash.String(), true
}

// RevisionExistsInCache reports whether revision names a commit in the cache
// repository in dir
func (h *LibraryHelper) RevisionExistsInCache(ctx context.Context, dir, revision string) (_ bool, err error) {
	defer masked(&err)

	if Inspect(dir) == Absent {
		return false, reposyncerrors.NewRepositoryStateError(dir, "no git repository", nil)
	}
	hash, ok := h.RevisionIfExists(ctx, dir, revision)
	return ok && hash == revision, nil
}

// remoteConfig describes the anonymous remote for data. The URL is checked
// here so that a malformed one fails as a transport error.
func (h *LibraryHelper) remoteConfig(data *access.Data) (*config.RemoteConfig, error) {
	if _, err := transport.NewEndpoint(data.RepositoryURL); err != nil {
		return nil, reposyncerrors.NewTransportError(data.ObfuscatedURL(), h.text(messages.InvalidURI, data.ObfuscatedURL()), err)
	}
	return &config.RemoteConfig{
		Name: anonymousRemote,
		URLs: []string{data.RepositoryURL},
	}, nil
}

// remoteRefs lists the refs advertised for data without a local repository
func (h *LibraryHelper) remoteRefs(ctx context.Context, data *access.Data) (refs.Set, error) {
	auth, err := authMethod(data)
	if err != nil {
		return nil, err
	}
	cfg, err := h.remoteConfig(data)
	if err != nil {
		return nil, err
	}
	remote := gogit.NewRemote(memory.NewStorage(), cfg)
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return advertised(ctx, remote, auth)
}

// LatestRevision returns the id of the configured branch on the remote
func (h *LibraryHelper) LatestRevision(ctx context.Context) (revision string, err error) {
	defer h.observe("latest", time.Now(), &err)
	failed := func(err error) error {
		return h.fail(err, messages.CannotDetermineHead, h.data.ObfuscatedURL(), h.data.Branch)
	}

	set, err := h.remoteRefs(ctx, h.data)
	if err != nil {
		return "", failed(err)
	}
	resolved, err := refs.Resolve(h.data.Branch, libraryRefOrder, set)
	if err != nil {
		return "", failed(err)
	}
	return set[resolved], nil
}

// OpenBranches lists the heads advertised by the remote of data, or of the
// helper's own access data when data is nil
func (h *LibraryHelper) OpenBranches(ctx context.Context, data *access.Data) (branches []Branch, err error) {
	defer h.observe("branches", time.Now(), &err)

	if data == nil {
		data = h.data
	}
	set, err := h.remoteRefs(ctx, data)
	if err != nil {
		return nil, h.fail(err, messages.FailedToOpenTransport, data.ObfuscatedURL())
	}
	return headsOf(set.Heads()), nil
}
