// Package access holds the repository access record consumed by the
// synchronization engine and rewrites repository URLs for the chosen transport.
package access

import (
	"fmt"
	"time"

	"reposync.dev/reposync/internal/git"
	"reposync.dev/reposync/internal/proxy"
)

// AuthType is the authentication kind of a repository
type AuthType string

const (
	AuthNone       AuthType = "none"
	AuthPassword   AuthType = "password"
	AuthSSHKeypair AuthType = "ssh-keypair"
)

// ParseAuthType converts a configuration value to an AuthType. Blank means none.
func ParseAuthType(s string) (AuthType, error) {
	switch AuthType(s) {
	case "", AuthNone:
		return AuthNone, nil
	case AuthPassword, AuthSSHKeypair:
		return AuthType(s), nil
	default:
		return "", fmt.Errorf("unknown authentication type %q", s)
	}
}

// Data is the access record of one synchronization request
type Data struct {
	RepositoryURL string
	// Branch may be blank for the remote default
	Branch   string
	AuthType AuthType

	Username      string
	Password      string
	SSHKey        string
	SSHPassphrase string

	CommandTimeout   time.Duration
	UseShallowClones bool
	UseSubmodules    bool
	VerboseLogs      bool

	// Proxy is set only on a copy routed through the ssh proxy
	Proxy *proxy.Registration
}

// Clone returns an independent copy
func (d *Data) Clone() *Data {
	out := *d
	return &out
}

// ObfuscatedURL returns the repository URL safe for logs and errors
func (d *Data) ObfuscatedURL() string {
	return git.ObfuscateURLs(d.RepositoryURL)
}

// TransportErr reports the proxy failure of a proxied copy, if any
func (d *Data) TransportErr() error {
	if d.Proxy == nil {
		return nil
	}
	return d.Proxy.Err()
}

// RunOptions returns the executor options for commands using this record
func (d *Data) RunOptions() []git.RunOption {
	opts := []git.RunOption{git.WithTimeout(d.CommandTimeout)}
	if d.Proxy != nil {
		opts = append(opts, git.WithTransport(d.Proxy))
	}
	return opts
}
