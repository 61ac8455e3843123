package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/internal/access"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	req, err := ParseRequest([]byte(`
url: https://example.com/team/app.git
branch: main
directory: /tmp/app
shallow: true
submodules: true
timeout: 90s
auth:
  type: password
  username: builder
  password: hunter2
`))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/team/app.git", req.URL)
	require.Equal(t, "main", req.Branch)
	require.Equal(t, "/tmp/app", req.Directory)
	require.True(t, req.Shallow)
	require.True(t, req.Submodules)
	require.Equal(t, 90*time.Second, req.Timeout)
	require.Equal(t, "password", req.Auth.Type)

	data, err := req.AccessData(Settings{CommandTimeout: time.Minute})
	require.NoError(t, err)
	require.Equal(t, access.AuthPassword, data.AuthType)
	require.Equal(t, "builder", data.Username)
	require.Equal(t, "hunter2", data.Password)
	require.Equal(t, 90*time.Second, data.CommandTimeout)
	require.True(t, data.UseShallowClones)
	require.Nil(t, data.Proxy)
}

func TestParseRequestRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := ParseRequest([]byte("url: x\nbrnach: main\n"))
	require.Error(t, err)
}

func TestRequestAccessData(t *testing.T) {
	t.Parallel()

	t.Run("uses settings timeout when unset", func(t *testing.T) {
		t.Parallel()
		req := &Request{URL: "file:///srv/repo.git"}
		data, err := req.AccessData(Settings{CommandTimeout: 42 * time.Second})
		require.NoError(t, err)
		require.Equal(t, 42*time.Second, data.CommandTimeout)
		require.Equal(t, access.AuthNone, data.AuthType)
	})

	t.Run("requires a url", func(t *testing.T) {
		t.Parallel()
		_, err := (&Request{}).AccessData(Settings{})
		require.Error(t, err)
	})

	t.Run("rejects unknown auth types", func(t *testing.T) {
		t.Parallel()
		req := &Request{URL: "file:///srv/repo.git", Auth: Auth{Type: "token"}}
		_, err := req.AccessData(Settings{})
		require.Error(t, err)
	})

	t.Run("keypair requires a key", func(t *testing.T) {
		t.Parallel()
		req := &Request{URL: "ssh://git@example.com/app.git", Auth: Auth{Type: "ssh-keypair"}}
		_, err := req.AccessData(Settings{})
		require.ErrorContains(t, err, "ssh-key")
	})

	t.Run("reads the key file", func(t *testing.T) {
		t.Parallel()
		keyFile := filepath.Join(t.TempDir(), "id_test")
		require.NoError(t, os.WriteFile(keyFile, []byte("PRIVATE KEY"), 0600))

		req := &Request{
			URL:  "ssh://git@example.com/app.git",
			Auth: Auth{Type: "ssh-keypair", SSHKeyFile: keyFile, Passphrase: "pw"},
		}
		data, err := req.AccessData(Settings{})
		require.NoError(t, err)
		require.Equal(t, "PRIVATE KEY", data.SSHKey)
		require.Equal(t, "pw", data.SSHPassphrase)
	})
}

func TestReadRequest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: file:///srv/repo.git\nverbose: true\n"), 0600))

	req, err := ReadRequest(path)
	require.NoError(t, err)
	require.True(t, req.Verbose)

	_, err = ReadRequest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
