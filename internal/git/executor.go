package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"reposync.dev/reposync/internal/buildlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/metrics"
)

// DefaultCommandTimeout is the default timeout for git commands
const DefaultCommandTimeout = 10 * time.Minute

// waitDelay bounds how long Wait blocks on output pipes after the process is killed
const waitDelay = 5 * time.Second

// ProcessResult is the outcome of a single command
type ProcessResult struct {
	ExitCode int
	// Stdout holds stdout and stderr lines in arrival order
	Stdout string
	Stderr string
	// TransportErr is the error reported by the tunnel attached to the call, if any
	TransportErr error
}

// TransportErrorSource reports failures of a transport used by a command
type TransportErrorSource interface {
	Err() error
}

// Options configures an Executor
type Options struct {
	// Executable is the git binary, defaults to "git" on PATH
	Executable string
	// SSHCommand is a custom ssh invocation, empty for the system client
	SSHCommand string
	// Timeout applies to every command unless overridden per call
	Timeout time.Duration
	// TempDir is where the ssh wrapper script is written, defaults to os.TempDir()
	TempDir string
	// Verbose writes every command line to the build log instead of the debug log
	Verbose bool
	Logger  buildlog.Logger
	Metrics *metrics.Metrics
}

// Executor runs git commands
type Executor struct {
	opts Options

	scriptOnce sync.Once
	scriptPath string
	scriptDir  string
	scriptErr  error
}

// NewExecutor creates a new Executor
func NewExecutor(opts Options) *Executor {
	if opts.Executable == "" {
		opts.Executable = DefaultExecutable
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = buildlog.Discard
	}
	return &Executor{opts: opts}
}

// Executable returns the configured git binary
func (e *Executor) Executable() string {
	return e.opts.Executable
}

// Logger returns the build log used by the executor
func (e *Executor) Logger() buildlog.Logger {
	return e.opts.Logger
}

type runConfig struct {
	transport TransportErrorSource
	timeout   time.Duration
	quiet     bool
}

// RunOption customises a single Run call
type RunOption func(*runConfig)

// WithTransport attaches a transport whose error takes precedence over the process failure
func WithTransport(src TransportErrorSource) RunOption {
	return func(c *runConfig) {
		c.transport = src
	}
}

// WithTimeout overrides the executor timeout for one call
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Quiet logs a failure at debug level, for probes whose failure is an answer
func Quiet() RunOption {
	return func(c *runConfig) {
		c.quiet = true
	}
}

// SSHScript returns the GIT_SSH value, creating the wrapper script on first use
func (e *Executor) SSHScript() (string, error) {
	e.scriptOnce.Do(func() {
		e.scriptPath, e.scriptDir, e.scriptErr = writeSSHScript(e.opts.TempDir, e.opts.SSHCommand)
	})
	return e.scriptPath, e.scriptErr
}

// Close removes the ssh wrapper script
func (e *Executor) Close() error {
	if e.scriptDir == "" {
		return nil
	}
	dir := e.scriptDir
	e.scriptDir = ""
	return os.RemoveAll(dir)
}

// Run executes cmd in dir, creating dir if needed. Output lines from stdout are
// delivered to handler (which may be nil). A non-zero exit, a timeout or a
// transport failure is returned as *errors.CommandError with obfuscated fields.
func (e *Executor) Run(ctx context.Context, cmd *Command, dir string, handler OutputHandler, opts ...RunOption) (*ProcessResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := runConfig{timeout: e.opts.Timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if handler == nil {
		handler = &StringHandler{}
	}

	if cmd.executable == "" {
		cmd.executable = e.opts.Executable
	}
	args := cmd.Build()
	logged := ObfuscateArgs(args)

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, reposyncerrors.NewRepositoryStateError(dir, "failed to create working directory", err)
	}

	gitSSH, err := e.SSHScript()
	if err != nil {
		return nil, err
	}

	if e.opts.Verbose {
		e.opts.Logger.Info("%s", strings.Join(logged, " "))
	} else {
		e.opts.Logger.Debug("%s", strings.Join(logged, " "))
	}
	e.opts.Logger.Debug("Working directory: %s", dir)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	process := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built by Command
	process.Dir = dir
	process.Env = append(os.Environ(), "GIT_SSH="+gitSSH, "GIT_TERMINAL_PROMPT=0")
	process.Env = append(process.Env, cmd.env...)
	process.WaitDelay = waitDelay

	var (
		mu       sync.Mutex
		merged   strings.Builder
		stderrSb strings.Builder
	)
	stdout := &lineWriter{mu: &mu, deliver: func(line string) {
		merged.WriteString(line)
		merged.WriteByte('\n')
		handler.HandleLine(line)
	}}
	stderr := &lineWriter{mu: &mu, deliver: func(line string) {
		merged.WriteString(line)
		merged.WriteByte('\n')
		stderrSb.WriteString(line)
		stderrSb.WriteByte('\n')
		if h, ok := handler.(ErrorLineHandler); ok {
			h.HandleErrorLine(line)
		} else {
			e.opts.Logger.Debug("%s", ObfuscateURLs(line))
		}
	}}
	process.Stdout = stdout
	process.Stderr = stderr

	start := time.Now()
	runErr := process.Run()
	stdout.flush()
	stderr.flush()

	result := &ProcessResult{
		ExitCode: process.ProcessState.ExitCode(),
		Stdout:   merged.String(),
		Stderr:   stderrSb.String(),
	}
	if cfg.transport != nil {
		result.TransportErr = cfg.transport.Err()
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if runErr == nil && result.TransportErr == nil {
		e.opts.Metrics.CommandFinished(cmd.Verb(), start, nil)
		return result, nil
	}

	cause := runErr
	stderrText := result.Stderr
	if result.TransportErr != nil {
		cause = result.TransportErr
		stderrText = "SSH Proxy error: " + result.TransportErr.Error() + "\n" + stderrText
	}
	if timedOut {
		cause = fmt.Errorf("timed out after %s: %w", cfg.timeout, cause)
	}
	cmdErr := reposyncerrors.NewCommandError(
		logged,
		dir,
		result.ExitCode,
		ObfuscateURLs(result.Stdout),
		ObfuscateURLs(stderrText),
		reposyncerrors.Obfuscate(cause),
	)
	cmdErr.TimedOut = timedOut
	e.opts.Metrics.CommandFinished(cmd.Verb(), start, cmdErr)
	if cfg.quiet {
		e.opts.Logger.Debug("%s", cmdErr.Error())
	} else {
		e.opts.Logger.Error("%s", cmdErr.Error())
	}
	return result, cmdErr
}

// Output runs cmd and returns its stdout, trimmed
func (e *Executor) Output(ctx context.Context, cmd *Command, dir string, opts ...RunOption) (string, error) {
	handler := &StringHandler{}
	if _, err := e.Run(ctx, cmd, dir, handler, opts...); err != nil {
		return "", err
	}
	return strings.TrimSpace(handler.Output()), nil
}

// Lines runs cmd and returns its stdout lines
func (e *Executor) Lines(ctx context.Context, cmd *Command, dir string, opts ...RunOption) ([]string, error) {
	handler := &LinesHandler{}
	if _, err := e.Run(ctx, cmd, dir, handler, opts...); err != nil {
		return nil, err
	}
	return handler.Lines(), nil
}
