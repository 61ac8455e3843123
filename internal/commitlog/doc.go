// Package commitlog turns "git log" output into commit records.
//
// The log is requested with a Format whose field markers carry a random salt,
// so they cannot collide with commit messages or paths. A Parser consumes the
// output one line at a time; it implements the line handler interface of the
// git executor and can be fed directly from a running process.
package commitlog
