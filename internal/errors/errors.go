// Package errors provides sentinel errors and custom error types for the reposync engine.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrRefNotFound indicates that none of the candidate refs exist on the remote
	ErrRefNotFound = errors.New("ref not found")

	// ErrRepositoryState indicates that the local repository is missing or unusable
	ErrRepositoryState = errors.New("invalid repository state")

	// ErrTransport indicates a failure to set up or use the transport to the remote
	ErrTransport = errors.New("transport failure")

	// ErrUnsupported indicates an operation the selected backend does not implement
	ErrUnsupported = errors.New("unsupported operation")

	// ErrTimeout indicates that an external command ran past its deadline
	ErrTimeout = errors.New("command timed out")
)

// CommandError represents an error from an external git command execution.
// Command holds the already obfuscated command line.
type CommandError struct {
	Command  []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	if e.TimedOut {
		fmt.Fprintf(&sb, "command %v timed out", e.Command)
	} else {
		fmt.Fprintf(&sb, "command %v failed with code %d", e.Command, e.ExitCode)
	}
	fmt.Fprintf(&sb, ". Working directory was [%s]", e.Dir)
	if e.Stderr != "" {
		fmt.Fprintf(&sb, ", stderr:\n%s", e.Stderr)
	}
	if e.Stdout != "" && e.Stdout != e.Stderr {
		fmt.Fprintf(&sb, "\nstdout:\n%s", e.Stdout)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, "\n%v", e.Err)
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is returns true for ErrTimeout when the command was killed by its deadline
func (e *CommandError) Is(target error) bool {
	return e.TimedOut && target == ErrTimeout
}

// NewCommandError creates a new CommandError
func NewCommandError(command []string, dir string, exitCode int, stdout, stderr string, err error) *CommandError {
	return &CommandError{
		Command:  command,
		Dir:      dir,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Err:      err,
	}
}

// RefNotFoundError represents an exhausted ref resolution
type RefNotFoundError struct {
	Name       string
	Candidates []string
}

func (e *RefNotFoundError) Error() string {
	name := e.Name
	if name == "" {
		name = "(default)"
	}
	return fmt.Sprintf("cannot determine head for %s, tried %v", name, e.Candidates)
}

// Is returns true if the target error is ErrRefNotFound
func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrRefNotFound
}

// NewRefNotFoundError creates a new RefNotFoundError
func NewRefNotFoundError(name string, candidates []string) *RefNotFoundError {
	return &RefNotFoundError{Name: name, Candidates: candidates}
}

// RepositoryStateError represents a missing metadata directory or an unresolvable revision
type RepositoryStateError struct {
	Dir     string
	Message string
	Err     error
}

func (e *RepositoryStateError) Error() string {
	msg := fmt.Sprintf("repository %s: %s", e.Dir, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *RepositoryStateError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is ErrRepositoryState
func (e *RepositoryStateError) Is(target error) bool {
	return target == ErrRepositoryState
}

// NewRepositoryStateError creates a new RepositoryStateError
func NewRepositoryStateError(dir, message string, err error) *RepositoryStateError {
	return &RepositoryStateError{Dir: dir, Message: message, Err: err}
}

// TransportError represents a tunnel registration or URL parsing failure
type TransportError struct {
	URL     string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a new TransportError. Passwords in url, message
// and the cause are masked.
func NewTransportError(url, message string, err error) *TransportError {
	return &TransportError{
		URL:     ObfuscateURLs(url),
		Message: ObfuscateURLs(message),
		Err:     Obfuscate(err),
	}
}

// UnsupportedOperationError is returned by a backend that does not implement an operation
type UnsupportedOperationError struct {
	Operation string
	Backend   string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s implementation does not support %s, please use native git", e.Backend, e.Operation)
}

// Is returns true if the target error is ErrUnsupported
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}

// NewUnsupportedOperationError creates a new UnsupportedOperationError
func NewUnsupportedOperationError(backend, operation string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Backend: backend, Operation: operation}
}
