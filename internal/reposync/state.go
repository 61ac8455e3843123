package reposync

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// State of a working directory, derived from its metadata directory
type State int

const (
	// Absent means there is no .git directory
	Absent State = iota
	// Initialized means .git exists but holds no heads or tags
	Initialized
	// Fetched means heads or tags exist but nothing is checked out
	Fetched
	// CheckedOut means an index exists next to fetched refs
	CheckedOut
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Initialized:
		return "initialized"
	case Fetched:
		return "fetched"
	case CheckedOut:
		return "checked-out"
	default:
		return "unknown"
	}
}

// Inspect derives the state of dir from the filesystem
func Inspect(dir string) State {
	gitDir := filepath.Join(dir, ".git")
	if !isDir(gitDir) {
		return Absent
	}
	if !hasRefs(gitDir) {
		return Initialized
	}
	if exists(filepath.Join(gitDir, "index")) {
		return CheckedOut
	}
	return Fetched
}

// IsShallow reports whether the repository in dir has a shallow boundary
func IsShallow(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git", "shallow"))
	return err == nil && info.Size() > 0
}

func hasRefs(gitDir string) bool {
	for _, sub := range []string{"refs/heads", "refs/tags"} {
		found := false
		_ = filepath.WalkDir(filepath.Join(gitDir, filepath.FromSlash(sub)), func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				found = true
				return fs.SkipAll
			}
			return nil
		})
		if found {
			return true
		}
	}
	return hasPackedRefs(gitDir)
}

func hasPackedRefs(gitDir string) bool {
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		if strings.Contains(line, " refs/heads/") || strings.Contains(line, " refs/tags/") {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
