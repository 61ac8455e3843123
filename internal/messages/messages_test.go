package messages_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/internal/messages"
)

func TestDefault(t *testing.T) {
	require.Equal(t, "Checking out revision abc.", messages.Default(messages.CheckingOutRevision, "abc"))
	require.Equal(t, "unknown-key", messages.Default("unknown-key"))
	require.Equal(t, "unknown-key [1 2]", messages.Default("unknown-key", 1, 2))
}

func TestWithOverrides(t *testing.T) {
	resolve := messages.WithOverrides(map[messages.Key]string{
		messages.CheckingOutRevision: "checkout %s",
	}, nil)
	require.Equal(t, "checkout abc", resolve(messages.CheckingOutRevision, "abc"))
	require.Equal(t, "Nothing to commit.", resolve(messages.NothingToCommit))
}
