package git_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/testhelpers"
)

func TestRunners(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	scene := testhelpers.NewScene(t, 3, nil)
	ctx := context.Background()
	e := newExecutor(t, nil)

	t.Run("shallow clone", func(t *testing.T) {
		dir := scene.Path("clone")
		require.NoError(t, e.Clone(ctx, scene.Dir, scene.URL(), dir, "main", true))

		head, err := e.RevisionHash(ctx, dir, "HEAD")
		require.NoError(t, err)
		require.Equal(t, scene.Head(), head)

		info, err := os.Stat(filepath.Join(dir, ".git", "shallow"))
		require.NoError(t, err)
		require.Positive(t, info.Size())

		require.True(t, e.ObjectExists(ctx, dir, head))
		require.False(t, e.ObjectExists(ctx, dir, scene.Revisions[0]))

		status, err := e.Status(ctx, dir)
		require.NoError(t, err)
		require.Empty(t, status)
	})

	t.Run("init and ls-remote", func(t *testing.T) {
		dir := scene.Path("init")
		require.NoError(t, e.Init(ctx, dir))
		_, err := os.Stat(filepath.Join(dir, ".git"))
		require.NoError(t, err)

		advertised, err := e.RemoteRefs(ctx, dir, scene.URL())
		require.NoError(t, err)
		require.Equal(t, scene.Head(), advertised["refs/heads/main"])
	})

	t.Run("remote branch hash needs the exact ref", func(t *testing.T) {
		hash, err := e.RemoteBranchHash(ctx, scene.Dir, scene.URL(), "refs/heads/main")
		require.NoError(t, err)
		require.Equal(t, scene.Head(), hash)

		// ls-remote matches "main" by suffix, that is not the ref that was asked for
		hash, err = e.RemoteBranchHash(ctx, scene.Dir, scene.URL(), "main")
		require.NoError(t, err)
		require.Empty(t, hash)
	})
}
