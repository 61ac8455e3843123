// Package proxy runs an in-process SSH endpoint that tunnels git traffic to an
// upstream SSH server using credentials the git client never sees.
//
// Each synchronization request registers its upstream connection data and gets
// back a Registration carrying a one-off user name. git connects to the local
// endpoint as that user (no client authentication); the service opens the
// upstream session with the registered key or password, rewrites the
// repository path and pumps the streams. Failures of the tunnel are reported
// through Registration.Err so the caller can tell them apart from git errors.
package proxy
