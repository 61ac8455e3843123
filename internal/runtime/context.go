package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"reposync.dev/reposync/internal/access"
	"reposync.dev/reposync/internal/buildlog"
	"reposync.dev/reposync/internal/config"
	"reposync.dev/reposync/internal/metrics"
	"reposync.dev/reposync/internal/reposync"
)

// Context provides access to the helper and its collaborators for commands
type Context struct {
	Settings config.Settings
	Request  *config.Request
	Access   *access.Data
	Splog    *buildlog.Splog
	Metrics  *metrics.Metrics
	Helper   reposync.Helper
	Out      io.Writer

	metricsFile string
}

// Options configures NewContext
type Options struct {
	Settings config.Settings
	Request  *config.Request
	// Backend forces reposync.BackendProcess or reposync.BackendLibrary,
	// blank selects by settings
	Backend        string
	ChangesetLimit int
	OldestFirst    bool
	MetricsFile    string
	Out            io.Writer
	Err            io.Writer
}

// IsTerminal reports whether w is attached to a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewContext builds the build log, metrics and helper for one request
func NewContext(ctx context.Context, opts Options) (*Context, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	data, err := opts.Request.AccessData(opts.Settings)
	if err != nil {
		return nil, err
	}
	var console []buildlog.SplogOption
	if !IsTerminal(opts.Err) {
		console = append(console, buildlog.WithTimestamps())
	}
	splog, err := buildlog.NewSplogWithFile(opts.Err, opts.Settings.LogFile, console...)
	if err != nil {
		return nil, err
	}

	executable, err := selectExecutable(opts.Backend, opts.Settings.GitExecutable)
	if err != nil {
		_ = splog.Close()
		return nil, err
	}

	limit := opts.ChangesetLimit
	if limit == 0 {
		limit = opts.Settings.ChangesetLimit
	}

	m := metrics.New()
	helper, err := reposync.New(ctx, reposync.Options{
		Access:         data,
		GitExecutable:  executable,
		SSHCommand:     opts.Settings.SSHCommand,
		ChangesetLimit: limit,
		OldestFirst:    opts.OldestFirst,
		Logger:         splog,
		Metrics:        m,
	})
	if err != nil {
		_ = splog.Close()
		return nil, err
	}

	return &Context{
		Settings:    opts.Settings,
		Request:     opts.Request,
		Access:      data,
		Splog:       splog,
		Metrics:     m,
		Helper:      helper,
		Out:         opts.Out,
		metricsFile: opts.MetricsFile,
	}, nil
}

func selectExecutable(backend, configured string) (string, error) {
	switch backend {
	case "":
		return configured, nil
	case reposync.BackendProcess:
		if configured == "" {
			return "git", nil
		}
		return configured, nil
	case reposync.BackendLibrary:
		return "", nil
	default:
		return "", fmt.Errorf("unknown backend %q, expected %s or %s", backend, reposync.BackendProcess, reposync.BackendLibrary)
	}
}

// Dir returns the request directory or fails when it is not set
func (c *Context) Dir() (string, error) {
	if c.Request.Directory == "" {
		return "", fmt.Errorf("a directory is required, use --dir or the request file")
	}
	return c.Request.Directory, nil
}

// Close releases the helper, writes the metrics file if one was requested
// and closes the build log file
func (c *Context) Close() error {
	err := c.Helper.Close()
	if c.metricsFile != "" {
		err = errors.Join(err, c.Metrics.WriteFile(c.metricsFile))
	}
	return errors.Join(err, c.Splog.Close())
}

type optionsKey struct{}

// WithOptions stores the options commands build their Context from
func WithOptions(ctx context.Context, opts Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

// OptionsFrom returns the options stored by WithOptions
func OptionsFrom(ctx context.Context) (Options, bool) {
	if ctx == nil {
		return Options{}, false
	}
	opts, ok := ctx.Value(optionsKey{}).(Options)
	return opts, ok
}

// GetContext builds a Context from the options stored in ctx
func GetContext(ctx context.Context) (*Context, error) {
	opts, ok := OptionsFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("command options are not initialized")
	}
	return NewContext(ctx, opts)
}
