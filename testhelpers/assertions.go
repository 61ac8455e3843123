// Package testhelpers provides testing utilities for reposync,
// including git fixture repositories, scenes and custom assertions.
package testhelpers

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Must is a generic helper function that panics if err is not nil,
// otherwise returns the value. This is useful for test setup code
// where errors are not expected and should halt execution immediately.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// ExpectRefs asserts the full set of refs of the repository in dir.
func ExpectRefs(t *testing.T, dir string, expected []string) {
	t.Helper()

	output, err := GitOutput(dir, "for-each-ref", "--format=%(refname)")
	require.NoError(t, err, "Failed to list refs")

	actual := splitLines(output)
	sort.Strings(actual)
	sorted := append([]string(nil), expected...)
	sort.Strings(sorted)

	require.Equal(t, sorted, actual, "Refs do not match")
}

// ExpectHead asserts the commit checked out in dir.
func ExpectHead(t *testing.T, dir, expected string) {
	t.Helper()

	output, err := GitOutput(dir, "rev-parse", "HEAD")
	require.NoError(t, err, "Failed to resolve HEAD")
	require.Equal(t, expected, output, "HEAD does not match")
}

// ExpectShallow asserts the commits listed in the shallow marker file of dir.
func ExpectShallow(t *testing.T, dir string, expected []string) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, ".git", "shallow"))
	require.NoError(t, err, "Failed to read shallow file")

	actual := splitLines(string(data))
	sort.Strings(actual)
	sorted := append([]string(nil), expected...)
	sort.Strings(sorted)

	require.Equal(t, sorted, actual, "Shallow boundary does not match")
}

// ExpectClean asserts that the working tree in dir has no tracked modifications.
func ExpectClean(t *testing.T, dir string) {
	t.Helper()

	output, err := GitOutput(dir, "status", "--porcelain", "--untracked-files=no")
	require.NoError(t, err, "Failed to read status")
	require.Empty(t, strings.TrimSpace(output), "Working tree is not clean")
}
