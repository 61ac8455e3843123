package access

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/git"
)

const (
	schemeSSH       = "ssh"
	schemeGit       = "git"
	schemeDelimiter = "://"
)

// IsSSH reports whether url uses the ssh:// scheme
func IsSSH(raw string) bool {
	return strings.HasPrefix(raw, schemeSSH+schemeDelimiter)
}

// IsHTTP reports whether url uses http:// or https://
func IsHTTP(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// HasScpSyntax reports whether s is an scp-like [user@]host:path address
func HasScpSyntax(s string) bool {
	if strings.Contains(s, schemeDelimiter) {
		return false
	}
	if i := strings.Index(s, "/"); i != -1 {
		s = s[:i]
	}
	return strings.Contains(s, ":")
}

// ScpAwareURL is a repository URL where scp-like addresses are read as ssh URLs
type ScpAwareURL struct {
	u        *url.URL
	relative bool
}

// ParseScpAware parses raw. An scp-like address becomes ssh://; its path is
// relative unless a slash directly follows the colon.
func ParseScpAware(raw string) (*ScpAwareURL, error) {
	relative := false
	if HasScpSyntax(raw) {
		slash := strings.Index(raw, "/")
		colon := strings.Index(raw, ":")
		relative = slash == -1 || (colon < slash && colon+1 != slash)
		if relative {
			raw = raw[:colon] + "/" + raw[colon+1:]
		}
		raw = schemeSSH + schemeDelimiter + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, reposyncerrors.NewTransportError(git.ObfuscateURLs(raw), "remote repository URL invalid", err)
	}
	return &ScpAwareURL{u: u, relative: relative}, nil
}

// Scheme returns the URL scheme
func (s *ScpAwareURL) Scheme() string { return s.u.Scheme }

// Host returns the host name without port
func (s *ScpAwareURL) Host() string { return s.u.Hostname() }

// Port returns the port, or -1 when none is given
func (s *ScpAwareURL) Port() int {
	port, err := strconv.Atoi(s.u.Port())
	if err != nil {
		return -1
	}
	return port
}

// User returns the user name of the URL, if any
func (s *ScpAwareURL) User() string {
	if s.u.User == nil {
		return ""
	}
	return s.u.User.Username()
}

// IsRelative reports whether the scp path was relative to the login directory
func (s *ScpAwareURL) IsRelative() bool { return s.relative }

// RawPath returns the path as the remote side sees it
func (s *ScpAwareURL) RawPath() string {
	if s.relative {
		return strings.TrimPrefix(s.u.EscapedPath(), "/")
	}
	return s.u.EscapedPath()
}

// AbsolutePath returns the path as it appears in a URL with a scheme
func (s *ScpAwareURL) AbsolutePath() string {
	return s.u.EscapedPath()
}

// ViaProxy returns the URL routed through a local proxy endpoint
func (s *ScpAwareURL) ViaProxy(user, host string, port int) string {
	out := &url.URL{
		Scheme:   s.u.Scheme,
		User:     url.User(user),
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawPath:  s.AbsolutePath(),
		RawQuery: s.u.RawQuery,
		Fragment: s.u.Fragment,
	}
	out.Path, _ = url.PathUnescape(s.AbsolutePath())
	return out.String()
}

// ExtractUsername returns the user name embedded in a repository URL
func ExtractUsername(raw string) string {
	u, err := ParseScpAware(raw)
	if err != nil {
		return ""
	}
	return u.User()
}
