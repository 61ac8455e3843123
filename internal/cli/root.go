package cli

import (
	"time"

	"github.com/spf13/cobra"

	"reposync.dev/reposync/internal/config"
	"reposync.dev/reposync/internal/runtime"
)

// requestFlags are the persistent flags describing the request. Flags that
// are set override the values of the request file.
type requestFlags struct {
	requestFile string
	url         string
	branch      string
	dir         string
	cache       string
	shallow     bool
	submodules  bool
	verbose     bool
	timeout     time.Duration

	authType   string
	username   string
	password   string
	sshKeyFile string
	passphrase string

	backend     string
	limit       int
	oldestFirst bool
	logFile     string
	metricsFile string
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.requestFile, "request", "", "YAML request file")
	flags.StringVar(&f.url, "url", "", "Repository URL")
	flags.StringVarP(&f.branch, "branch", "b", "", "Branch or tag to synchronize, blank for the remote default")
	flags.StringVarP(&f.dir, "dir", "d", "", "Working directory")
	flags.StringVar(&f.cache, "cache", "", "Cache repository to seed the working directory from")
	flags.BoolVar(&f.shallow, "shallow", false, "Fetch only the tip commit")
	flags.BoolVar(&f.submodules, "submodules", false, "Update submodules after checkout")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Log git command lines and progress")
	flags.DurationVar(&f.timeout, "timeout", 0, "Timeout of each git command (default from REPOSYNC_GIT_TIMEOUT)")

	flags.StringVar(&f.authType, "auth", "", "Authentication type: none, password or ssh-keypair")
	flags.StringVar(&f.username, "username", "", "User name")
	flags.StringVar(&f.password, "password", "", "Password, prefer the request file")
	flags.StringVar(&f.sshKeyFile, "ssh-key-file", "", "Private key file for ssh-keypair authentication")
	flags.StringVar(&f.passphrase, "passphrase", "", "Passphrase of the private key")

	flags.StringVar(&f.backend, "backend", "", "Force the process or library backend")
	flags.IntVar(&f.limit, "changeset-limit", 0, "Maximum number of commits to extract, negative for no limit")
	flags.BoolVar(&f.oldestFirst, "oldest-first", false, "List extracted commits from oldest to newest")
	flags.StringVar(&f.logFile, "log-file", "", "Also write the build log to this rotating file")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write prometheus metrics to this file after the command")
}

// request merges the request file with the flags that were set
func (f *requestFlags) request(cmd *cobra.Command) (*config.Request, error) {
	req := &config.Request{}
	if f.requestFile != "" {
		loaded, err := config.ReadRequest(f.requestFile)
		if err != nil {
			return nil, err
		}
		req = loaded
	}

	changed := cmd.Flags().Changed
	overrideString := func(name string, dst *string, value string) {
		if changed(name) {
			*dst = value
		}
	}
	overrideBool := func(name string, dst *bool, value bool) {
		if changed(name) {
			*dst = value
		}
	}

	overrideString("url", &req.URL, f.url)
	overrideString("branch", &req.Branch, f.branch)
	overrideString("dir", &req.Directory, f.dir)
	overrideString("cache", &req.Cache, f.cache)
	overrideBool("shallow", &req.Shallow, f.shallow)
	overrideBool("submodules", &req.Submodules, f.submodules)
	overrideBool("verbose", &req.Verbose, f.verbose)
	if changed("timeout") {
		req.Timeout = f.timeout
	}
	overrideString("auth", &req.Auth.Type, f.authType)
	overrideString("username", &req.Auth.Username, f.username)
	overrideString("password", &req.Auth.Password, f.password)
	overrideString("ssh-key-file", &req.Auth.SSHKeyFile, f.sshKeyFile)
	overrideString("passphrase", &req.Auth.Passphrase, f.passphrase)
	return req, nil
}

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	f := &requestFlags{}

	rootCmd := &cobra.Command{
		Use:   "reposync",
		Short: "reposync keeps working directories in sync with remote git repositories",
		Long: `reposync keeps working directories in sync with remote git repositories.

It fetches a branch or tag into a directory, checks out revisions, lists the
change sets between two revisions and can merge, commit and push results back.
Set REPOSYNC_GIT_EXECUTABLE to use a native git binary, otherwise the built-in
implementation is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if f.logFile != "" {
				settings.LogFile = f.logFile
			}
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			cmd.SetContext(runtime.WithOptions(cmd.Context(), runtime.Options{
				Settings:       settings,
				Request:        req,
				Backend:        f.backend,
				ChangesetLimit: f.limit,
				OldestFirst:    f.oldestFirst,
				MetricsFile:    f.metricsFile,
				Out:            cmd.OutOrStdout(),
				Err:            cmd.ErrOrStderr(),
			}))
			return nil
		},
	}
	f.bind(rootCmd)

	rootCmd.AddCommand(
		newFetchCmd(),
		newCheckoutCmd(),
		newSyncCmd(),
		newChangesCmd(),
		newCommitInfoCmd(),
		newMergeCmd(),
		newCommitCmd(),
		newPushCmd(),
		newLatestCmd(),
		newBranchesCmd(),
		newStateCmd(),
		newVersionCmd(version, commit, date),
	)

	return rootCmd
}
