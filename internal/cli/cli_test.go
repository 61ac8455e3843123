package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/internal/cli"
	"reposync.dev/reposync/testhelpers"
)

// run executes the root command in process and returns its standard output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := cli.NewRootCmd("1.2.3", "abc123", "2024-01-01")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return strings.TrimSpace(out.String()), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Equal(t, "reposync 1.2.3 (commit abc123, built 2024-01-01)", out)
}

func TestSyncCommands(t *testing.T) {
	testhelpers.IsolateGitConfig(t)

	for _, backend := range []string{"process", "library"} {
		t.Run(backend, func(t *testing.T) {
			scene := testhelpers.NewScene(t, 3, nil)
			dir := scene.Path("work")
			common := []string{"--backend", backend, "--url", scene.URL(), "--branch", "main", "--dir", dir}

			out, err := run(t, append([]string{"state"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, "absent", out)

			out, err = run(t, append([]string{"latest"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, scene.Head(), out)

			out, err = run(t, append([]string{"branches"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, "main", out)

			out, err = run(t, append([]string{"fetch", "--shallow"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, scene.Head(), out)

			out, err = run(t, append([]string{"state"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, "fetched shallow", out)

			out, err = run(t, append([]string{"fetch"}, common...)...)
			require.NoError(t, err)
			require.Equal(t, scene.Head(), out)

			out, err = run(t, append([]string{"checkout", scene.Head()}, common...)...)
			require.NoError(t, err)
			require.Equal(t, scene.Head(), out)
			testhelpers.ExpectHead(t, dir, scene.Head())

			out, err = run(t, append([]string{"changes", scene.Head(), "--since", scene.Revisions[0], "--oldest-first"}, common...)...)
			require.NoError(t, err)
			require.Less(t, strings.Index(out, scene.Revisions[1]), strings.Index(out, scene.Revisions[2]))
			require.NotContains(t, out, "commit "+scene.Revisions[0])
			require.Contains(t, out, "c3_test.txt")

			out, err = run(t, append([]string{"commit-info", scene.Revisions[1]}, common...)...)
			require.NoError(t, err)
			require.Contains(t, out, "Author: Test User <test@example.com>")
			require.Contains(t, out, "commit c2")
		})
	}
}

func TestSyncFromRequestFiles(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	first := testhelpers.NewScene(t, 2, nil)
	second := testhelpers.NewScene(t, 3, nil)

	write := func(scene *testhelpers.Scene, name string) string {
		path := filepath.Join(scene.Dir, name+".yaml")
		content := "url: " + scene.URL() + "\n" +
			"branch: main\n" +
			"directory: " + scene.Path("work") + "\n" +
			"cache: " + scene.Path("cache") + "\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	metrics := filepath.Join(t.TempDir(), "metrics.prom")
	out, err := run(t, "sync", "--backend", "process", "--metrics-file", metrics, write(first, "first"), write(second, "second"))
	require.NoError(t, err)
	require.Contains(t, out, first.Path("work")+" "+first.Head())
	require.Contains(t, out, second.Path("work")+" "+second.Head())

	testhelpers.ExpectHead(t, first.Path("work"), first.Head())
	testhelpers.ExpectHead(t, second.Path("work"), second.Head())
	require.FileExists(t, second.Path("work")+"/.git/objects/info/alternates")
	require.NoFileExists(t, metrics)
}

func TestMetricsFile(t *testing.T) {
	testhelpers.IsolateGitConfig(t)
	scene := testhelpers.NewScene(t, 1, nil)
	metrics := filepath.Join(t.TempDir(), "metrics.prom")

	_, err := run(t, "latest", "--backend", "process", "--url", scene.URL(), "--metrics-file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(data), "reposync_git_command_total")
}

func TestCommandErrors(t *testing.T) {
	testhelpers.IsolateGitConfig(t)

	t.Run("missing url", func(t *testing.T) {
		_, err := run(t, "latest")
		require.Error(t, err)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := run(t, "fetch", "--url", "file:///nowhere")
		require.ErrorContains(t, err, "directory is required")
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := run(t, "latest", "--backend", "jgit", "--url", "file:///nowhere")
		require.ErrorContains(t, err, "unknown backend")
	})

	t.Run("merge is not available in the library backend", func(t *testing.T) {
		_, err := run(t, "merge", "HEAD", "--backend", "library", "--url", "file:///nowhere", "--dir", t.TempDir())
		require.ErrorContains(t, err, "please use native git")
	})
}
