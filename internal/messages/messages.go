// Package messages provides the text lookup used to build log entries and
// error strings. Lookups never affect control flow.
package messages

import "fmt"

// Key identifies a message
type Key string

const (
	CreatingRepository        Key = "creating-repository"
	FetchingBranch            Key = "fetching-branch"
	DoingShallowFetch         Key = "doing-shallow-fetch"
	FetchingFailed            Key = "fetching-failed"
	CheckingOutRevision       Key = "checking-out-revision"
	CheckoutFailed            Key = "checkout-failed"
	CheckoutFailedMissingObj  Key = "checkout-failed-missing-object"
	CannotDetermineHead       Key = "cannot-determine-head"
	CannotDetermineRevision   Key = "cannot-determine-revision"
	CannotGuessBranch         Key = "cannot-guess-branch"
	PushFailed                Key = "push-failed"
	MergeFailed               Key = "merge-failed"
	CommitFailed              Key = "commit-failed"
	ExtractingChangesetsError Key = "extracting-changesets-failed"
	CommitNotFound            Key = "commit-not-found"
	InvalidURI                Key = "invalid-uri"
	FailedToOpenTransport     Key = "failed-to-open-transport"
	ProtocolUnsupported       Key = "protocol-unsupported"
	SubmodulesNotSupported    Key = "submodules-not-supported"
	SeedingFromCache          Key = "seeding-from-cache"
	DeepeningRepository       Key = "deepening-repository"
	NothingToCommit           Key = "nothing-to-commit"
)

// Resolver turns a key and its arguments into text
type Resolver func(key Key, args ...any) string

var catalogue = map[Key]string{
	CreatingRepository:        "Creating local git repository in %s.",
	FetchingBranch:            "Fetching '%s' from '%s'.",
	DoingShallowFetch:         "Will try to do a shallow fetch.",
	FetchingFailed:            "Cannot fetch '%s', branch '%s' to source directory '%s'.",
	CheckingOutRevision:       "Checking out revision %s.",
	CheckoutFailed:            "Checkout to revision %s has failed.",
	CheckoutFailedMissingObj:  "Checkout to revision %s has failed, the object is missing from the local repository.",
	CannotDetermineHead:       "Cannot determine head revision of '%s' on branch '%s'.",
	CannotDetermineRevision:   "Cannot determine revision '%s' in '%s'.",
	CannotGuessBranch:         "Can't guess branch name for revision %s when trying to perform push.",
	PushFailed:                "Pushing revision %s to %s has failed.",
	MergeFailed:               "Merging revision %s in %s has failed.",
	CommitFailed:              "Committing changes in %s has failed.",
	ExtractingChangesetsError: "Cannot extract changesets between %s and %s from %s.",
	CommitNotFound:            "Could not find commit with revision %s.",
	InvalidURI:                "Repository URL '%s' is invalid.",
	FailedToOpenTransport:     "Failed to open a connection to %s.",
	ProtocolUnsupported:       "The protocol of '%s' is not supported.",
	SubmodulesNotSupported:    "Submodules are not supported by the built-in git implementation, skipping.",
	SeedingFromCache:          "Seeding repository from cache %s.",
	DeepeningRepository:       "Repository is shallow, fetching complete history.",
	NothingToCommit:           "Nothing to commit.",
}

// Default resolves keys from the built-in English catalogue. Unknown keys
// render as the key followed by its arguments.
func Default(key Key, args ...any) string {
	format, ok := catalogue[key]
	if !ok {
		if len(args) == 0 {
			return string(key)
		}
		return fmt.Sprintf("%s %v", key, args)
	}
	return fmt.Sprintf(format, args...)
}

// WithOverrides returns a Resolver that prefers overrides and falls back to next
func WithOverrides(overrides map[Key]string, next Resolver) Resolver {
	if next == nil {
		next = Default
	}
	return func(key Key, args ...any) string {
		if format, ok := overrides[key]; ok {
			return fmt.Sprintf(format, args...)
		}
		return next(key, args...)
	}
}
