package reposync

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"reposync.dev/reposync/internal/access"
	reposyncerrors "reposync.dev/reposync/internal/errors"
)

const defaultSSHUser = "git"

// authMethod builds the go-git credentials for data. It returns nil when the
// remote needs none.
func authMethod(data *access.Data) (transport.AuthMethod, error) {
	user := access.ExtractUsername(data.RepositoryURL)
	if user == "" {
		user = data.Username
	}

	switch data.AuthType {
	case access.AuthSSHKeypair:
		if user == "" {
			user = defaultSSHUser
		}
		signer, err := parseKey(data.SSHKey, data.SSHPassphrase)
		if err != nil {
			return nil, reposyncerrors.NewTransportError(data.ObfuscatedURL(), "cannot parse private key", err)
		}
		return &gitssh.PublicKeys{
			User:   user,
			Signer: signer,
			HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
				HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			},
		}, nil

	case access.AuthPassword:
		if access.IsHTTP(data.RepositoryURL) {
			return &http.BasicAuth{Username: user, Password: data.Password}, nil
		}
		if user == "" {
			user = defaultSSHUser
		}
		return &gitssh.Password{
			User:     user,
			Password: data.Password,
			HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
				HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			},
		}, nil
	}
	return nil, nil
}

func parseKey(key, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	}
	return ssh.ParsePrivateKey([]byte(key))
}
