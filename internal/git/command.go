package git

import "strings"

// DefaultExecutable is used when no git executable is configured
const DefaultExecutable = "git"

// Identity is the committer/author pair exported to commit and merge commands
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity is used when the caller does not supply a committer
var DefaultIdentity = Identity{Name: "reposync", Email: "reposync@localhost"}

func (id Identity) orDefault() Identity {
	if strings.TrimSpace(id.Name) == "" {
		id.Name = DefaultIdentity.Name
	}
	if strings.TrimSpace(id.Email) == "" {
		id.Email = DefaultIdentity.Email
	}
	return id
}

// Command describes a single git invocation
type Command struct {
	executable  string
	verbs       []string
	verbose     bool
	branch      string
	revision    string
	source      string
	destination string
	shallow     bool
	env         []string
}

// NewCommand creates a command for the given verb and its leading arguments
func NewCommand(verbs ...string) *Command {
	return &Command{verbs: append([]string(nil), verbs...)}
}

// Executable overrides the git executable for this command
func (c *Command) Executable(path string) *Command {
	c.executable = path
	return c
}

// Append adds arguments after the verbs
func (c *Command) Append(args ...string) *Command {
	c.verbs = append(c.verbs, args...)
	return c
}

// Verbose adds --verbose
func (c *Command) Verbose(verbose bool) *Command {
	c.verbose = verbose
	return c
}

// Branch adds --branch <name>
func (c *Command) Branch(name string) *Command {
	c.branch = name
	return c
}

// Revision adds --rev <revision>
func (c *Command) Revision(revision string) *Command {
	c.revision = revision
	return c
}

// Source sets the positional source argument
func (c *Command) Source(source string) *Command {
	c.source = source
	return c
}

// Destination sets the positional destination argument
func (c *Command) Destination(destination string) *Command {
	c.destination = destination
	return c
}

// Shallow adds --depth 1
func (c *Command) Shallow() *Command {
	c.shallow = true
	return c
}

// Env adds an environment variable for the process
func (c *Command) Env(key, value string) *Command {
	c.env = append(c.env, key+"="+value)
	return c
}

// WithIdentity exports committer and author name/email
func (c *Command) WithIdentity(id Identity) *Command {
	id = id.orDefault()
	return c.
		Env("GIT_COMMITTER_NAME", id.Name).
		Env("GIT_COMMITTER_EMAIL", id.Email).
		Env("GIT_AUTHOR_NAME", id.Name).
		Env("GIT_AUTHOR_EMAIL", id.Email)
}

// Verb returns the first verb, used to label metrics
func (c *Command) Verb() string {
	if len(c.verbs) == 0 {
		return ""
	}
	return c.verbs[0]
}

// Environment returns the extra KEY=VALUE pairs of the command
func (c *Command) Environment() []string {
	return append([]string(nil), c.env...)
}

// Build returns the argument vector. The order is fixed: executable, verbs,
// --verbose, --branch, --rev, source, destination, --depth 1.
func (c *Command) Build() []string {
	executable := c.executable
	if executable == "" {
		executable = DefaultExecutable
	}
	args := []string{executable}
	args = append(args, c.verbs...)
	if c.verbose {
		args = append(args, "--verbose")
	}
	if c.branch != "" {
		args = append(args, "--branch", c.branch)
	}
	if c.revision != "" {
		args = append(args, "--rev", c.revision)
	}
	if c.source != "" {
		args = append(args, c.source)
	}
	if c.destination != "" {
		args = append(args, c.destination)
	}
	if c.shallow {
		args = append(args, "--depth", "1")
	}
	return args
}

// String returns the obfuscated command line
func (c *Command) String() string {
	return strings.Join(ObfuscateArgs(c.Build()), " ")
}
