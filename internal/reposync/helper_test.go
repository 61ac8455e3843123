package reposync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/internal/access"
	"reposync.dev/reposync/internal/buildlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/reposync"
	"reposync.dev/reposync/testhelpers"
)

type backend struct {
	name string
	git  string
}

var backends = []backend{
	{name: reposync.BackendProcess, git: "git"},
	{name: reposync.BackendLibrary},
}

type helperOption func(*reposync.Options)

func withLimit(limit int) helperOption {
	return func(o *reposync.Options) { o.ChangesetLimit = limit }
}

func oldestFirst() helperOption {
	return func(o *reposync.Options) { o.OldestFirst = true }
}

func withLogger(log buildlog.Logger) helperOption {
	return func(o *reposync.Options) { o.Logger = log }
}

func newHelper(t *testing.T, b backend, data *access.Data, opts ...helperOption) reposync.Helper {
	t.Helper()
	options := reposync.Options{
		Access:        data,
		GitExecutable: b.git,
		TempDir:       t.TempDir(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	h, err := reposync.New(context.Background(), options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func sceneData(scene *testhelpers.Scene, branch string) *access.Data {
	return &access.Data{
		RepositoryURL: scene.URL(),
		Branch:        branch,
		AuthType:      access.AuthNone,
	}
}

func TestNew(t *testing.T) {
	t.Run("requires access data", func(t *testing.T) {
		_, err := reposync.New(context.Background(), reposync.Options{})
		require.Error(t, err)
	})

	t.Run("selects the backend", func(t *testing.T) {
		data := &access.Data{RepositoryURL: "file:///tmp/none"}

		h, err := reposync.New(context.Background(), reposync.Options{Access: data, GitExecutable: "git", TempDir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Close() })
		require.IsType(t, &reposync.ProcessHelper{}, h)

		h, err = reposync.New(context.Background(), reposync.Options{Access: data})
		require.NoError(t, err)
		require.IsType(t, &reposync.LibraryHelper{}, h)
	})

	t.Run("fails for a missing git executable", func(t *testing.T) {
		data := &access.Data{RepositoryURL: "file:///tmp/none"}
		_, err := reposync.New(context.Background(), reposync.Options{Access: data, GitExecutable: "/nonexistent/git", TempDir: t.TempDir()})
		require.Error(t, err)
	})
}

func TestFetchAndCheckout(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 5, nil)

			t.Run("shallow fetch of a short branch name", func(t *testing.T) {
				dir := scene.Path(b.name + "-shallow")
				h := newHelper(t, b, sceneData(scene, "main"))

				require.NoError(t, h.Fetch(ctx, dir, true))
				require.Equal(t, reposync.Fetched, reposync.Inspect(dir))
				require.True(t, reposync.IsShallow(dir))
				testhelpers.ExpectRefs(t, dir, []string{"refs/heads/main"})
				testhelpers.ExpectShallow(t, dir, []string{scene.Head()})

				revision, err := h.Checkout(ctx, "", dir, scene.Head(), "")
				require.NoError(t, err)
				require.Equal(t, scene.Head(), revision)
				require.Equal(t, reposync.CheckedOut, reposync.Inspect(dir))
				testhelpers.ExpectHead(t, dir, scene.Head())
				require.FileExists(t, dir+"/c5_test.txt")
			})

			t.Run("full fetch of the remote default branch", func(t *testing.T) {
				dir := scene.Path(b.name + "-full")
				h := newHelper(t, b, sceneData(scene, ""))

				require.NoError(t, h.Fetch(ctx, dir, false))
				require.False(t, reposync.IsShallow(dir))
				testhelpers.ExpectRefs(t, dir, []string{"refs/heads/main"})

				symref, err := testhelpers.GitOutput(dir, "symbolic-ref", "HEAD")
				require.NoError(t, err)
				require.Equal(t, "refs/heads/main", symref)
			})

			t.Run("checkout is repeatable and attaches HEAD to the branch", func(t *testing.T) {
				dir := scene.Path(b.name + "-repeat")
				h := newHelper(t, b, sceneData(scene, "main"))
				require.NoError(t, h.Fetch(ctx, dir, false))

				for range 2 {
					revision, err := h.Checkout(ctx, "", dir, scene.Head(), "")
					require.NoError(t, err)
					require.Equal(t, scene.Head(), revision)
					testhelpers.ExpectClean(t, dir)
				}

				symref, err := testhelpers.GitOutput(dir, "symbolic-ref", "HEAD")
				require.NoError(t, err)
				require.Equal(t, "refs/heads/main", symref)

				current, err := h.CurrentRevision(ctx, dir)
				require.NoError(t, err)
				require.Equal(t, scene.Head(), current)
			})

			t.Run("checkout of an older revision detaches HEAD", func(t *testing.T) {
				dir := scene.Path(b.name + "-older")
				h := newHelper(t, b, sceneData(scene, "main"))
				require.NoError(t, h.Fetch(ctx, dir, false))

				revision, err := h.Checkout(ctx, "", dir, scene.Revisions[1], "")
				require.NoError(t, err)
				require.Equal(t, scene.Revisions[1], revision)
				testhelpers.ExpectHead(t, dir, scene.Revisions[1])
				require.NoFileExists(t, dir+"/c3_test.txt")
			})

			t.Run("checkout of a missing revision fails", func(t *testing.T) {
				dir := scene.Path(b.name + "-missing")
				h := newHelper(t, b, sceneData(scene, "main"))
				require.NoError(t, h.Fetch(ctx, dir, false))

				_, err := h.Checkout(ctx, "", dir, "0123456789012345678901234567890123456789", "")
				require.Error(t, err)
				require.True(t, errors.Is(err, reposyncerrors.ErrRepositoryState))
			})

			t.Run("unknown branch is a ref not found error", func(t *testing.T) {
				dir := scene.Path(b.name + "-unknown")
				h := newHelper(t, b, sceneData(scene, "does-not-exist"))

				err := h.Fetch(ctx, dir, false)
				require.Error(t, err)
				require.True(t, errors.Is(err, reposyncerrors.ErrRefNotFound))
			})
		})
	}
}

func TestFetchTag(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 3, func(s *testhelpers.Scene) error {
				return s.Upstream.CreateTag("v1")
			})
			dir := scene.Path("tagged")
			h := newHelper(t, b, sceneData(scene, "v1"))

			require.NoError(t, h.Fetch(ctx, dir, false))
			revision, ok := h.RevisionIfExists(ctx, dir, "refs/tags/v1")
			require.True(t, ok)
			require.Equal(t, scene.Head(), revision)

			_, ok = h.RevisionIfExists(ctx, dir, "refs/heads/v1")
			require.False(t, ok)
		})
	}
}

func TestBranchAndTagWithTheSameName(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	var branchTip string
	scene := testhelpers.NewScene(t, 2, func(s *testhelpers.Scene) error {
		if err := s.Upstream.CreateTag("release"); err != nil {
			return err
		}
		if err := s.Upstream.CreateAndCheckoutBranch("release"); err != nil {
			return err
		}
		if err := s.Upstream.CreateChangeAndCommit("on the branch", "release"); err != nil {
			return err
		}
		tip, err := s.Upstream.GetRevision("refs/heads/release")
		if err != nil {
			return err
		}
		branchTip = tip
		return s.Upstream.CheckoutBranch("main")
	})

	// native git prefers the head, the library backend the tag
	want := map[string]string{"process": branchTip, "library": scene.Head()}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			h := newHelper(t, b, sceneData(scene, "release"))

			latest, err := h.LatestRevision(ctx)
			require.NoError(t, err)
			require.Equal(t, want[b.name], latest)

			dir := scene.Path("release-" + b.name)
			require.NoError(t, h.Fetch(ctx, dir, false))
			revision, err := h.Checkout(ctx, "", dir, latest, "")
			require.NoError(t, err)
			require.Equal(t, want[b.name], revision)
		})
	}
}

func TestDeepenShallowRepository(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()
	scene := testhelpers.NewScene(t, 4, nil)
	dir := scene.Path("deepen")

	rec := buildlog.NewRecorder()
	h := newHelper(t, backends[0], sceneData(scene, "main"), withLogger(rec))

	require.NoError(t, h.Fetch(ctx, dir, true))
	require.True(t, reposync.IsShallow(dir))

	require.NoError(t, h.Fetch(ctx, dir, false))
	require.False(t, reposync.IsShallow(dir))
	require.Contains(t, rec.String(), "fetching complete history")

	changes, err := h.ExtractCommits(ctx, dir, "", scene.Head())
	require.NoError(t, err)
	require.Len(t, changes.Commits, 4)
}

func TestCacheSeeding(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 3, nil)
			cache := scene.Path("cache")
			work := scene.Path("work")
			h := newHelper(t, b, sceneData(scene, "main"))

			require.NoError(t, h.Fetch(ctx, cache, false))

			exists, err := h.RevisionExistsInCache(ctx, cache, scene.Head())
			require.NoError(t, err)
			require.True(t, exists)

			revision, err := h.Checkout(ctx, cache, work, scene.Head(), "")
			require.NoError(t, err)
			require.Equal(t, scene.Head(), revision)

			require.FileExists(t, work+"/.git/objects/info/alternates")
			testhelpers.ExpectRefs(t, work, []string{"refs/heads/main"})
			testhelpers.ExpectHead(t, work, scene.Head())
			symref, err := testhelpers.GitOutput(work, "symbolic-ref", "HEAD")
			require.NoError(t, err)
			require.Equal(t, "refs/heads/main", symref)
		})
	}
}

func TestRevisionQueries(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 2, nil)
			dir := scene.Path("queries")
			h := newHelper(t, b, sceneData(scene, "main"))

			t.Run("absent repository", func(t *testing.T) {
				_, err := h.CurrentRevision(ctx, scene.Path("absent"))
				require.True(t, errors.Is(err, reposyncerrors.ErrRepositoryState))

				_, err = h.RevisionExistsInCache(ctx, scene.Path("absent"), scene.Head())
				require.True(t, errors.Is(err, reposyncerrors.ErrRepositoryState))

				_, ok := h.RevisionIfExists(ctx, scene.Path("absent"), scene.Head())
				require.False(t, ok)
			})

			require.NoError(t, h.Fetch(ctx, dir, false))

			t.Run("existing and unknown revisions", func(t *testing.T) {
				revision, ok := h.RevisionIfExists(ctx, dir, "refs/heads/main")
				require.True(t, ok)
				require.Equal(t, scene.Head(), revision)

				_, ok = h.RevisionIfExists(ctx, dir, "no-such-branch")
				require.False(t, ok)

				exists, err := h.RevisionExistsInCache(ctx, dir, "0123456789012345678901234567890123456789")
				require.NoError(t, err)
				require.False(t, exists)

				exists, err = h.RevisionExistsInCache(ctx, dir, scene.Revisions[0])
				require.NoError(t, err)
				require.True(t, exists)
			})
		})
	}
}

func TestLatestRevisionAndBranches(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 2, func(s *testhelpers.Scene) error {
				if err := s.Upstream.CreateAndCheckoutBranch("feature"); err != nil {
					return err
				}
				if _, err := s.Upstream.CreateCommits(1, "f"); err != nil {
					return err
				}
				return s.Upstream.CheckoutBranch("main")
			})
			feature, err := testhelpers.GitOutput(scene.Remote, "rev-parse", "refs/heads/feature")
			require.NoError(t, err)

			for _, tc := range []struct {
				branch   string
				expected string
			}{
				{branch: "", expected: scene.Head()},
				{branch: "main", expected: scene.Head()},
				{branch: "refs/heads/feature", expected: feature},
				{branch: "feature", expected: feature},
			} {
				latest, err := newHelper(t, b, sceneData(scene, tc.branch)).LatestRevision(ctx)
				require.NoError(t, err, "branch %q", tc.branch)
				require.Equal(t, tc.expected, latest, "branch %q", tc.branch)
			}

			_, err = newHelper(t, b, sceneData(scene, "gone")).LatestRevision(ctx)
			require.True(t, errors.Is(err, reposyncerrors.ErrRefNotFound))

			h := newHelper(t, b, sceneData(scene, "main"))
			branches, err := h.OpenBranches(ctx, nil)
			require.NoError(t, err)
			require.Equal(t, []reposync.Branch{{Name: "feature"}, {Name: "main"}}, branches)

			other := testhelpers.NewScene(t, 1, nil)
			branches, err = h.OpenBranches(ctx, sceneData(other, ""))
			require.NoError(t, err)
			require.Equal(t, []reposync.Branch{{Name: "main"}}, branches)
		})
	}
}
