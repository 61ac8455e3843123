package commitlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UnknownAuthorName is used when the log carries no committer name
const UnknownAuthorName = "Unknown Author"

// Author identifies the committer of a change set
type Author struct {
	Name  string
	Email string
}

// UnknownAuthor is the placeholder author
var UnknownAuthor = Author{Name: UnknownAuthorName}

// String returns "Name <email>", or just the name without an email
func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Commit is a single change set read from the log
type Commit struct {
	ID      string
	Author  Author
	Date    time.Time
	Message string
	Files   []string
}

func (c *Commit) clone() Commit {
	out := *c
	out.Files = append([]string(nil), c.Files...)
	return out
}

// ShallowSet holds the ids at the shallow boundary of a repository
type ShallowSet map[string]struct{}

// NewShallowSet creates a ShallowSet from ids
func NewShallowSet(ids ...string) ShallowSet {
	set := ShallowSet{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is a shallow boundary commit
func (s ShallowSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// ReadShallowFile reads <gitDir>/shallow. A missing file yields an empty set.
func ReadShallowFile(gitDir string) (ShallowSet, error) {
	set := ShallowSet{}
	f, err := os.Open(filepath.Join(gitDir, "shallow"))
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			set[id] = struct{}{}
		}
	}
	return set, scanner.Err()
}
