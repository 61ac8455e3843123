package access

import (
	"net/url"
	"strings"

	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/proxy"
)

// placeholderPassword stops git prompting when http auth has no password
const placeholderPassword = "none"

// Registrar opens proxy tunnels
type Registrar interface {
	Register(data proxy.ConnectionData) (*proxy.Registration, error)
}

// Adjust returns the access data to hand to git for data. Key-pair and
// ssh+password access is routed through a proxy registered with registrar;
// http password access gets its credentials embedded in the URL. The release
// func must be called once the network operation is over; it is never nil.
func Adjust(data *Data, registrar Registrar) (*Data, func(), error) {
	noop := func() {}

	sshKeypair := data.AuthType == AuthSSHKeypair
	sshWithPassword := IsSSH(data.RepositoryURL) && data.AuthType == AuthPassword
	if sshKeypair || sshWithPassword {
		proxied, err := viaProxy(data, registrar)
		if err != nil {
			return nil, noop, err
		}
		if proxied == nil {
			return data, noop, nil
		}
		reg := proxied.Proxy
		return proxied, func() { _ = reg.Close() }, nil
	}

	if data.AuthType == AuthPassword {
		wrapped, err := withCredentials(data)
		if err != nil {
			return nil, noop, err
		}
		return wrapped, noop, nil
	}
	return data, noop, nil
}

// viaProxy returns nil when the URL scheme cannot be proxied
func viaProxy(data *Data, registrar Registrar) (*Data, error) {
	uri, err := ParseScpAware(data.RepositoryURL)
	if err != nil {
		return nil, err
	}
	if uri.Scheme() != schemeGit && uri.Scheme() != schemeSSH {
		return nil, nil
	}
	if registrar == nil {
		return nil, reposyncerrors.NewTransportError(data.ObfuscatedURL(), "cannot create SSH proxy: no proxy service configured", nil)
	}

	out := data.Clone()
	if username := uri.User(); username != "" {
		out.Username = username
	}

	port := uri.Port()
	if port == -1 {
		port = proxy.DefaultSSHPort
	}
	conn := proxy.ConnectionData{
		Host: uri.Host(),
		Port: port,
		User: out.Username,
	}
	if uri.IsRelative() {
		conn.LocalPath = uri.AbsolutePath()
		conn.RemotePath = uri.RawPath()
	}
	switch data.AuthType {
	case AuthSSHKeypair:
		conn.PrivateKey = []byte(out.SSHKey)
		conn.Passphrase = out.SSHPassphrase
	case AuthPassword:
		conn.Password = out.Password
	}

	reg, err := registrar.Register(conn)
	if err != nil {
		return nil, reposyncerrors.NewTransportError(data.ObfuscatedURL(), "cannot create SSH proxy", err)
	}
	out.Proxy = reg
	out.RepositoryURL = uri.ViaProxy(reg.User(), reg.Host(), reg.Port())
	return out, nil
}

func withCredentials(data *Data) (*Data, error) {
	if HasScpSyntax(data.RepositoryURL) {
		return data, nil
	}
	u, err := url.Parse(data.RepositoryURL)
	if err != nil {
		return nil, reposyncerrors.NewTransportError(data.ObfuscatedURL(), "cannot parse remote URL", err)
	}

	out := data.Clone()
	u.User = authority(data)
	out.RepositoryURL = u.String()
	return out, nil
}

func authority(data *Data) *url.Userinfo {
	if data.Username == "" {
		return nil
	}
	if data.AuthType != AuthPassword || IsSSH(data.RepositoryURL) {
		return url.User(data.Username)
	}
	password := data.Password
	if IsHTTP(data.RepositoryURL) && strings.TrimSpace(password) == "" {
		password = placeholderPassword
	}
	if strings.TrimSpace(password) == "" {
		return url.User(data.Username)
	}
	return url.UserPassword(data.Username, password)
}
