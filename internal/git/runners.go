package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/refs"
)

// UnlimitedDepth is passed to --depth to turn a shallow repository into a full one
const UnlimitedDepth = 99999999

var versionPattern = regexp.MustCompile(`^git version (.*)`)

// CheckGitExists runs "git version" and returns the reported version
func (e *Executor) CheckGitExists(ctx context.Context, dir string) (string, error) {
	out, err := e.Output(ctx, NewCommand("version"), dir)
	if err != nil {
		return "", err
	}
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("unexpected output of %s version: %q", e.opts.Executable, out)
	}
	return strings.TrimSpace(m[1]), nil
}

// Init runs "git init" in dir
func (e *Executor) Init(ctx context.Context, dir string) error {
	_, err := e.Run(ctx, NewCommand("init"), dir, nil)
	return err
}

// Status returns the porcelain status lines of tracked files
func (e *Executor) Status(ctx context.Context, dir string, opts ...RunOption) ([]string, error) {
	lines, err := e.Lines(ctx, NewCommand("status", "--porcelain", "--untracked-files=no"), dir, opts...)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// FetchSpec describes a fetch of a single ref
type FetchSpec struct {
	URL string
	// Ref is fetched as both source and destination with a forced update
	Ref     string
	Shallow bool
	// Deepen converts a previously shallow repository into a complete one
	Deepen  bool
	Verbose bool
}

// Fetch runs "git fetch <url> +ref:ref --update-head-ok"
func (e *Executor) Fetch(ctx context.Context, dir string, spec FetchSpec, opts ...RunOption) error {
	cmd := NewCommand("fetch", spec.URL, "+"+spec.Ref+":"+spec.Ref, "--update-head-ok")
	if spec.Deepen && !spec.Shallow {
		cmd.Append(fmt.Sprintf("--depth=%d", UnlimitedDepth))
	}
	if spec.Verbose {
		cmd.Append("--progress").Verbose(true)
	}
	if spec.Shallow {
		cmd.Shallow()
	}
	_, err := e.Run(ctx, cmd, dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// Clone runs "git clone" of url into dir
func (e *Executor) Clone(ctx context.Context, parent, url, dir, branch string, shallow bool, opts ...RunOption) error {
	cmd := NewCommand("clone").Branch(branch).Source(url).Destination(dir)
	if shallow {
		cmd.Shallow()
	}
	_, err := e.Run(ctx, cmd, parent, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// Checkout runs "git checkout -f <ref>"
func (e *Executor) Checkout(ctx context.Context, dir, ref string, opts ...RunOption) error {
	_, err := e.Run(ctx, NewCommand("checkout", "-f", ref), dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// SubmoduleUpdate runs "git submodule update --init --recursive"
func (e *Executor) SubmoduleUpdate(ctx context.Context, dir string, opts ...RunOption) error {
	_, err := e.Run(ctx, NewCommand("submodule", "update", "--init", "--recursive"), dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// RevisionHash resolves rev to a commit id
func (e *Executor) RevisionHash(ctx context.Context, dir, rev string, opts ...RunOption) (string, error) {
	out, err := e.Output(ctx, NewCommand("log", "-1", "--format=%H", rev, "--"), dir, opts...)
	if err != nil {
		return "", reposyncerrors.NewRepositoryStateError(dir, fmt.Sprintf("cannot resolve revision %s", rev), err)
	}
	if out == "" {
		return "", reposyncerrors.NewRepositoryStateError(dir, fmt.Sprintf("cannot resolve revision %s", rev), nil)
	}
	return out, nil
}

// BranchForRevision returns the short name of a head pointing exactly at rev, or ""
func (e *Executor) BranchForRevision(ctx context.Context, dir, rev string, opts ...RunOption) (string, error) {
	out, err := e.Output(ctx, NewCommand("log", "-1", "--format=%d", "--decorate=full", rev, "--"), dir, opts...)
	if err != nil {
		return "", err
	}
	return refs.BranchFromDecoration(out), nil
}

// RemoteRefs lists the refs advertised by url
func (e *Executor) RemoteRefs(ctx context.Context, dir, url string, opts ...RunOption) (refs.Set, error) {
	lines, err := e.Lines(ctx, NewCommand("ls-remote", url), dir, opts...)
	if err != nil {
		return nil, err
	}
	return refs.ParseLsRemote(lines), nil
}

// RemoteBranchHash returns the id advertised by url for ref, or "" if absent
func (e *Executor) RemoteBranchHash(ctx context.Context, dir, url, ref string, opts ...RunOption) (string, error) {
	lines, err := e.Lines(ctx, NewCommand("ls-remote", url, ref), dir, opts...)
	if err != nil {
		return "", err
	}
	set := refs.ParseLsRemote(lines)
	return set[ref], nil
}

// Merge runs "git merge --no-commit <rev>" with the given identity
func (e *Executor) Merge(ctx context.Context, dir, rev string, id Identity, opts ...RunOption) error {
	cmd := NewCommand("merge", "--no-commit", rev).WithIdentity(id)
	_, err := e.Run(ctx, cmd, dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// Commit runs "git commit --all -m <message>" with the given identity
func (e *Executor) Commit(ctx context.Context, dir, message string, id Identity, opts ...RunOption) error {
	cmd := NewCommand("commit", "--all", "-m", message).WithIdentity(id)
	_, err := e.Run(ctx, cmd, dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// Push runs "git push <url> <refspec>"
func (e *Executor) Push(ctx context.Context, dir, url, refspec string, opts ...RunOption) error {
	_, err := e.Run(ctx, NewCommand("push", url, refspec), dir, NewLoggingHandler(e.opts.Logger), opts...)
	return err
}

// ExtractCommit streams "git log -1" of rev in the given format to handler
func (e *Executor) ExtractCommit(ctx context.Context, dir, rev, format string, handler OutputHandler, opts ...RunOption) error {
	cmd := NewCommand("log", "-1", "-p", "--name-only", "--format="+format, rev, "--")
	_, err := e.Run(ctx, cmd, dir, handler, opts...)
	return err
}

// Log runs "git log" with args, streaming output to handler
func (e *Executor) Log(ctx context.Context, dir string, handler OutputHandler, args []string, opts ...RunOption) error {
	_, err := e.Run(ctx, NewCommand("log").Append(args...), dir, handler, opts...)
	return err
}

// SymbolicRef points HEAD at ref
func (e *Executor) SymbolicRef(ctx context.Context, dir, ref string) error {
	_, err := e.Run(ctx, NewCommand("symbolic-ref", "HEAD", ref), dir, nil)
	return err
}

// ObjectExists reports whether rev names an existing commit in dir
func (e *Executor) ObjectExists(ctx context.Context, dir, rev string) bool {
	_, err := e.Run(ctx, NewCommand("cat-file", "-e", rev+"^{commit}"), dir, nil, Quiet())
	return err == nil
}
