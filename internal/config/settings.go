package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCommandTimeout is used when no timeout variable is set
	DefaultCommandTimeout = 600 * time.Second
	// DefaultChangesetLimit caps the commits returned by one extraction
	DefaultChangesetLimit = 100
)

// Environment variables read by Load
const (
	EnvGitExecutable  = "REPOSYNC_GIT_EXECUTABLE"
	EnvSSHCommand     = "REPOSYNC_SSH_COMMAND"
	EnvTimeout        = "REPOSYNC_GIT_TIMEOUT"
	EnvLegacyTimeout  = "GIT_TIMEOUT"
	EnvChangesetLimit = "GIT_CHANGESET_LIMIT"
	EnvLogFile        = "REPOSYNC_LOG_FILE"
)

// Settings are the process-wide engine settings
type Settings struct {
	// GitExecutable selects the process backend when non-empty
	GitExecutable  string
	SSHCommand     string
	CommandTimeout time.Duration
	ChangesetLimit int
	LogFile        string
}

var (
	loadOnce sync.Once
	loaded   Settings
	loadErr  error
)

// Load reads the settings from the environment the first time it is called
// and returns the same values afterwards.
func Load() (Settings, error) {
	loadOnce.Do(func() {
		loaded, loadErr = FromEnv(os.Getenv)
	})
	return loaded, loadErr
}

// FromEnv builds settings from a lookup function
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Settings{
		GitExecutable:  strings.TrimSpace(getenv(EnvGitExecutable)),
		SSHCommand:     strings.TrimSpace(getenv(EnvSSHCommand)),
		CommandTimeout: DefaultCommandTimeout,
		ChangesetLimit: DefaultChangesetLimit,
		LogFile:        strings.TrimSpace(getenv(EnvLogFile)),
	}

	for _, key := range []string{EnvTimeout, EnvLegacyTimeout} {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			continue
		}
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Settings{}, fmt.Errorf("invalid %s %q: expected a positive number of seconds", key, raw)
		}
		s.CommandTimeout = time.Duration(seconds) * time.Second
		break
	}

	if raw := strings.TrimSpace(getenv(EnvChangesetLimit)); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvChangesetLimit, raw, err)
		}
		s.ChangesetLimit = limit
	}

	return s, nil
}
