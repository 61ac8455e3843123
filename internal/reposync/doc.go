// Package reposync keeps a local working directory in sync with a remote git
// repository on behalf of an unattended build pipeline.
//
// It is responsible for:
//   - Resolving the configured branch against the refs advertised by the remote
//   - Fetching (shallow or complete) and deepening previously shallow clones
//   - Seeding new repositories from a cache directory via alternates
//   - Checking out revisions without leaving a detached HEAD when a branch fits
//   - Extracting change sets between two revisions
//   - Merging, committing and pushing back
//
// Two backends implement Helper: ProcessHelper drives the git executable and
// LibraryHelper runs in-process on go-git. New picks one from the options.
// Repository state is never cached between calls; Inspect derives it from the
// filesystem at the start of each operation so that interrupted runs recover.
package reposync
