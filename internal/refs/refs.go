// Package refs resolves user supplied branch, tag and revision names against
// the refs advertised by a remote.
package refs

import (
	"sort"
	"strings"

	reposyncerrors "reposync.dev/reposync/internal/errors"
)

const (
	// DefaultBranch is tried first when no branch is configured
	DefaultBranch = "master"
	// Head is the symbolic ref tried after the default branch
	Head = "HEAD"

	HeadsPrefix = "refs/heads/"
	TagsPrefix  = "refs/tags/"
	RefsPrefix  = "refs/"
)

// Order selects the precedence of heads and tags for short names.
// The fetch and checkout paths expand short names differently.
type Order int

const (
	// FetchOrder tries the literal name, then refs/heads/, then refs/tags/
	FetchOrder Order = iota
	// CheckoutOrder tries the literal name, then refs/tags/, then refs/heads/
	CheckoutOrder
)

func (o Order) String() string {
	switch o {
	case FetchOrder:
		return "fetch"
	case CheckoutOrder:
		return "checkout"
	default:
		return "unknown"
	}
}

// IsFullyQualified reports whether name already carries a refs namespace
func IsFullyQualified(name string) bool {
	return strings.HasPrefix(name, HeadsPrefix) || strings.HasPrefix(name, RefsPrefix)
}

// ShortBranch strips refs/heads/ from a head ref
func ShortBranch(ref string) string {
	return strings.TrimPrefix(ref, HeadsPrefix)
}

// Candidates returns the refs to try for name, first match wins
func Candidates(name string, order Order) []string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return []string{HeadsPrefix + DefaultBranch, Head}
	case IsFullyQualified(name):
		return []string{name}
	case order == CheckoutOrder:
		return []string{name, TagsPrefix + name, HeadsPrefix + name}
	default:
		return []string{name, HeadsPrefix + name, TagsPrefix + name}
	}
}

// Resolve returns the first candidate for name advertised by the remote
func Resolve(name string, order Order, advertised Set) (string, error) {
	candidates := Candidates(name, order)
	for _, candidate := range candidates {
		if advertised.Contains(candidate) {
			return candidate, nil
		}
	}
	return "", reposyncerrors.NewRefNotFoundError(strings.TrimSpace(name), candidates)
}

// Set maps advertised ref names to their ids
type Set map[string]string

// Contains reports whether ref is advertised
func (s Set) Contains(ref string) bool {
	_, ok := s[ref]
	return ok
}

// Heads returns the short names of all advertised heads, sorted
func (s Set) Heads() []string {
	var heads []string
	for ref := range s {
		if strings.HasPrefix(ref, HeadsPrefix) {
			heads = append(heads, ShortBranch(ref))
		}
	}
	sort.Strings(heads)
	return heads
}

// HeadTarget returns the head ref with the same id as HEAD. The default branch
// wins a tie, then the lexically smallest name.
func (s Set) HeadTarget() (string, bool) {
	id, ok := s[Head]
	if !ok {
		return "", false
	}
	if s[HeadsPrefix+DefaultBranch] == id {
		return HeadsPrefix + DefaultBranch, true
	}
	for _, head := range s.Heads() {
		if s[HeadsPrefix+head] == id {
			return HeadsPrefix + head, true
		}
	}
	return "", false
}

// ParseLsRemote parses "git ls-remote" output. Peeled tag entries are ignored.
func ParseLsRemote(lines []string) Set {
	set := Set{}
	for _, line := range lines {
		if strings.Contains(line, "^{}") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		set[fields[1]] = fields[0]
	}
	return set
}

// BranchFromDecoration parses the output of
// "git log -1 --format=%d --decorate=full <rev>" and returns the short name of
// the first head decorating the commit, or "" when none does.
func BranchFromDecoration(decoration string) string {
	decoration = strings.TrimSpace(decoration)
	decoration = strings.TrimPrefix(decoration, "(")
	decoration = strings.TrimSuffix(decoration, ")")
	for _, entry := range strings.Split(decoration, ",") {
		entry = strings.TrimSpace(entry)
		entry = strings.TrimPrefix(entry, "HEAD -> ")
		if strings.HasPrefix(entry, HeadsPrefix) {
			return ShortBranch(entry)
		}
	}
	return ""
}
