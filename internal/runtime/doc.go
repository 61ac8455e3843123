// Package runtime provides the execution context for reposync commands.
//
// It encapsulates the shared dependencies a command needs: the loaded
// settings, the request being served, the build log, metrics and the
// synchronization helper selected for the request.
package runtime
