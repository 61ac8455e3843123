// Package git builds and runs external git commands for the synchronization engine.
//
// It provides:
//   - Command, a builder producing argument vectors in a fixed order
//   - Executor, which runs commands with a timeout, an ssh wrapper script and
//     line-oriented output capture
//   - Output handlers that accumulate text, collect lines or forward to the build log
//   - Credential obfuscation applied to every logged line and every returned error
//   - Specialised runners (fetch, checkout, merge, ls-remote, log, ...)
//
// This package should be the only place where the git binary is executed.
package git
