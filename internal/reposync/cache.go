package reposync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reposync.dev/reposync/internal/messages"
)

const symrefPrefix = "ref: "

// createFunc creates an empty repository in dir
type createFunc func(ctx context.Context, dir string) error

// initialize makes sure dir holds a repository. With a usable cacheDir the
// repository borrows the cache's objects through an alternates file and gets
// copies of its heads, tags, shallow marker and symbolic HEAD.
func (b *base) initialize(ctx context.Context, dir, cacheDir string, create createFunc) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	gitDir := filepath.Join(dir, ".git")

	var cacheGitDir, alternate, headRef string
	if cacheDir != "" && !sameDir(cacheDir, dir) && isDir(cacheDir) {
		cacheGitDir = filepath.Join(cacheDir, ".git")
		objects := filepath.Join(cacheGitDir, "objects")
		if isDir(objects) {
			abs, err := filepath.Abs(objects)
			if err != nil {
				return err
			}
			alternate = abs
			head, err := os.ReadFile(filepath.Join(cacheGitDir, "HEAD"))
			if err != nil {
				return fmt.Errorf("failed to read HEAD of cache %s: %w", cacheDir, err)
			}
			headRef = string(head)
		}
	}

	if Inspect(dir) == Absent {
		b.log.Info("%s", b.text(messages.CreatingRepository, gitDir))
		if err := create(ctx, dir); err != nil {
			return err
		}
	}

	if alternate != "" {
		info := filepath.Join(gitDir, "objects", "info")
		if err := os.MkdirAll(info, 0750); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(info, "alternates"), []byte(alternate+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write alternates: %w", err)
		}
	}

	if cacheGitDir != "" && isDir(cacheGitDir) {
		b.log.Info("%s", b.text(messages.SeedingFromCache, cacheDir))
		for _, sub := range []string{"tags", "heads"} {
			if err := copyTree(filepath.Join(cacheGitDir, "refs", sub), filepath.Join(gitDir, "refs", sub)); err != nil {
				return fmt.Errorf("failed to copy refs/%s from cache: %w", sub, err)
			}
		}
		shallow := filepath.Join(cacheGitDir, "shallow")
		if exists(shallow) {
			if err := copyFile(shallow, filepath.Join(gitDir, "shallow")); err != nil {
				return fmt.Errorf("failed to copy shallow marker from cache: %w", err)
			}
		}
	}

	if strings.HasPrefix(headRef, symrefPrefix) {
		if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte(headRef), 0600); err != nil {
			return fmt.Errorf("failed to write HEAD: %w", err)
		}
	}
	return nil
}

// removeIndexLock deletes a lock left behind by an interrupted git process
func removeIndexLock(dir string) {
	_ = os.Remove(filepath.Join(dir, ".git", "index.lock"))
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// copyTree copies the files below src into dst, overwriting existing files.
// A missing src is not an error.
func copyTree(src, dst string) error {
	if !isDir(src) {
		return nil
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
