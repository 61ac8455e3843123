package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		s, err := FromEnv(envOf(nil))
		require.NoError(t, err)
		require.Equal(t, "", s.GitExecutable)
		require.Equal(t, 600*time.Second, s.CommandTimeout)
		require.Equal(t, 100, s.ChangesetLimit)
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Parallel()
		s, err := FromEnv(envOf(map[string]string{
			EnvGitExecutable:  "/usr/bin/git",
			EnvSSHCommand:     "ssh -i key",
			EnvTimeout:        "30",
			EnvChangesetLimit: "3",
			EnvLogFile:        "/tmp/reposync.log",
		}))
		require.NoError(t, err)
		require.Equal(t, "/usr/bin/git", s.GitExecutable)
		require.Equal(t, "ssh -i key", s.SSHCommand)
		require.Equal(t, 30*time.Second, s.CommandTimeout)
		require.Equal(t, 3, s.ChangesetLimit)
		require.Equal(t, "/tmp/reposync.log", s.LogFile)
	})

	t.Run("prefers the namespaced timeout", func(t *testing.T) {
		t.Parallel()
		s, err := FromEnv(envOf(map[string]string{
			EnvTimeout:       "10",
			EnvLegacyTimeout: "20",
		}))
		require.NoError(t, err)
		require.Equal(t, 10*time.Second, s.CommandTimeout)
	})

	t.Run("falls back to the legacy timeout", func(t *testing.T) {
		t.Parallel()
		s, err := FromEnv(envOf(map[string]string{EnvLegacyTimeout: "20"}))
		require.NoError(t, err)
		require.Equal(t, 20*time.Second, s.CommandTimeout)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Parallel()
		_, err := FromEnv(envOf(map[string]string{EnvTimeout: "soon"}))
		require.ErrorContains(t, err, EnvTimeout)

		_, err = FromEnv(envOf(map[string]string{EnvTimeout: "-1"}))
		require.Error(t, err)

		_, err = FromEnv(envOf(map[string]string{EnvChangesetLimit: "many"}))
		require.ErrorContains(t, err, EnvChangesetLimit)
	})
}

func TestLoadIsStable(t *testing.T) {
	first, err := Load()
	require.NoError(t, err)

	t.Setenv(EnvChangesetLimit, "7")
	second, err := Load()
	require.NoError(t, err)
	require.Equal(t, first, second)
}
