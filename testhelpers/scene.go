package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
)

// Scene is a test fixture with an upstream working copy, a bare remote it
// pushes to and a scratch area for synchronized directories.
type Scene struct {
	Dir string
	// Upstream is where tests create commits
	Upstream *GitRepo
	// Remote is the bare repository path
	Remote string
	// Revisions lists the commits on main, oldest first
	Revisions []string
}

// SceneSetup is a function type for setting up a scene.
type SceneSetup func(*Scene) error

// NewScene creates a scene whose remote main branch holds commits commits.
// It automatically handles cleanup using t.TempDir().
func NewScene(t *testing.T, commits int, setup SceneSetup) *Scene {
	t.Helper()

	dir := t.TempDir()
	repo, err := NewGitRepo(filepath.Join(dir, "upstream"))
	if err != nil {
		t.Fatalf("Failed to create Git repo: %v", err)
	}

	remote := filepath.Join(dir, "remote.git")
	if err := NewBareRepo(remote); err != nil {
		t.Fatalf("Failed to create bare remote: %v", err)
	}
	if err := repo.AddRemote("origin", remote); err != nil {
		t.Fatalf("Failed to add remote: %v", err)
	}

	scene := &Scene{Dir: dir, Upstream: repo, Remote: remote}

	if commits > 0 {
		revisions, err := repo.CreateCommits(commits, "c")
		if err != nil {
			t.Fatalf("Failed to create commits: %v", err)
		}
		scene.Revisions = revisions
	}

	if setup != nil {
		if err := setup(scene); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}

	if commits > 0 || setup != nil {
		if err := repo.PushAll("origin"); err != nil {
			t.Fatalf("Failed to push fixture: %v", err)
		}
	}

	return scene
}

// URL is the file:// url of the bare remote. The file transport honours
// shallow fetches, plain paths do not.
func (s *Scene) URL() string {
	return "file://" + filepath.ToSlash(s.Remote)
}

// Path returns a fresh, not yet existing directory inside the scene.
func (s *Scene) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Head returns the newest fixture commit.
func (s *Scene) Head() string {
	if len(s.Revisions) == 0 {
		return ""
	}
	return s.Revisions[len(s.Revisions)-1]
}

// IsolateGitConfig points git at an empty global config for the duration of the test.
func IsolateGitConfig(t *testing.T) {
	t.Helper()
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
}
