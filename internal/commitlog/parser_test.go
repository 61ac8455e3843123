package commitlog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reposync.dev/reposync/internal/commitlog"
)

type logEntry struct {
	id, name, email, timestamp, message string
	files                               []string
}

// render produces output in the shape of git log -p --name-only --format=<f>
func render(f commitlog.Format, entries []logEntry) []string {
	var lines []string
	for _, e := range entries {
		lines = append(lines,
			f.Marker(commitlog.MarkerHash)+e.id,
			f.Marker(commitlog.MarkerCommitterName)+e.name,
			f.Marker(commitlog.MarkerCommitterEmail)+e.email,
			f.Marker(commitlog.MarkerTimestamp)+e.timestamp,
		)
		msg := strings.Split(e.message+"\n", "\n")
		lines = append(lines, f.Marker(commitlog.MarkerMessage)+msg[0])
		lines = append(lines, msg[1:]...)
		lines = append(lines, f.Marker(commitlog.MarkerFiles), "")
		lines = append(lines, e.files...)
	}
	return lines
}

func entries(n int) []logEntry {
	out := make([]logEntry, n)
	for i := range out {
		out[i] = logEntry{
			id:        fmt.Sprintf("%040d", i+1),
			name:      fmt.Sprintf("Dev %d", i),
			email:     fmt.Sprintf("dev%d@example.com", i),
			timestamp: fmt.Sprintf("%d", 1700000000+i),
			message:   fmt.Sprintf("change %d\n\nbody line %d", i, i),
			files:     []string{fmt.Sprintf("dir/file%d.txt", i)},
		}
	}
	return out
}

func feed(p *commitlog.Parser, lines []string) {
	for _, line := range lines {
		p.HandleLine(line)
	}
}

func TestFormat(t *testing.T) {
	f := commitlog.NewFormatWithSalt("SALT")
	require.Equal(t,
		"SALT[hash]%H%nSALT[committer_name]%cN%nSALT[committer_email]%ce%nSALT[timestamp]%ct%nSALT[message]%B%nSALT[files]",
		f.String())

	a, b := commitlog.NewFormat(), commitlog.NewFormat()
	require.NotEqual(t, a.Marker(commitlog.MarkerHash), b.Marker(commitlog.MarkerHash))
}

func TestParser(t *testing.T) {
	f := commitlog.NewFormat()

	t.Run("parses every well formed commit in order", func(t *testing.T) {
		for _, n := range []int{0, 1, 2, 7} {
			t.Run(fmt.Sprintf("%d commits", n), func(t *testing.T) {
				in := entries(n)
				p := f.NewParser(nil, 0)
				feed(p, render(f, in))

				commits := p.Commits()
				require.Len(t, commits, n)
				require.Equal(t, 0, p.Skipped())
				for i, c := range commits {
					require.Equal(t, in[i].id, c.ID)
					require.Equal(t, fmt.Sprintf("Dev %d <dev%d@example.com>", i, i), c.Author.String())
					require.Equal(t, int64(1700000000+i), c.Date.Unix())
					require.Equal(t, in[i].message, c.Message)
					require.Equal(t, in[i].files, c.Files)
				}
			})
		}
	})

	t.Run("stops recording at the limit and counts the rest", func(t *testing.T) {
		p := f.NewParser(nil, 3)
		feed(p, render(f, entries(5)))

		commits := p.Commits()
		require.Len(t, commits, 3)
		require.Equal(t, 2, p.Skipped())
		require.Equal(t, fmt.Sprintf("%040d", 3), commits[2].ID)
		require.Equal(t, []string{"dir/file2.txt"}, commits[2].Files)
	})

	t.Run("drops file lists of shallow commits", func(t *testing.T) {
		in := entries(2)
		in[1].files = []string{"a.txt", "b.txt", "c.txt"}
		p := f.NewParser(commitlog.NewShallowSet(in[1].id), 0)
		feed(p, render(f, in))

		commits := p.Commits()
		require.Len(t, commits, 2)
		require.Equal(t, []string{"dir/file0.txt"}, commits[0].Files)
		require.Empty(t, commits[1].Files)
		require.Equal(t, in[1].message, commits[1].Message)
	})

	t.Run("tolerates empty messages", func(t *testing.T) {
		in := entries(3)
		in[0].message = ""
		in[1].message = ""
		p := f.NewParser(nil, 0)
		feed(p, render(f, in))

		commits := p.Commits()
		require.Len(t, commits, 3)
		require.Empty(t, commits[0].Message)
		require.Empty(t, commits[1].Message)
		require.Equal(t, in[2].message, commits[2].Message)
	})

	t.Run("tolerates missing email and bad timestamp", func(t *testing.T) {
		p := f.NewParser(nil, 0)
		feed(p, []string{
			f.Marker(commitlog.MarkerHash) + "abc",
			f.Marker(commitlog.MarkerCommitterName) + "Jane",
			f.Marker(commitlog.MarkerTimestamp) + "yesterday",
			f.Marker(commitlog.MarkerMessage) + "subject",
			f.Marker(commitlog.MarkerFiles),
			"x.go",
		})
		commits := p.Commits()
		require.Len(t, commits, 1)
		require.Equal(t, "Jane", commits[0].Author.String())
		require.True(t, commits[0].Date.IsZero())
		require.Equal(t, []string{"x.go"}, commits[0].Files)
	})

	t.Run("keeps the unknown author when lines are out of order", func(t *testing.T) {
		p := f.NewParser(nil, 0)
		feed(p, []string{
			f.Marker(commitlog.MarkerCommitterEmail) + "orphan@example.com",
			"stray line",
			f.Marker(commitlog.MarkerHash) + "abc",
			f.Marker(commitlog.MarkerCommitterEmail) + "nobody@example.com",
			f.Marker(commitlog.MarkerMessage) + "subject",
			f.Marker(commitlog.MarkerFiles),
		})
		commits := p.Commits()
		require.Len(t, commits, 1)
		require.Equal(t, commitlog.UnknownAuthor, commits[0].Author)
		require.Equal(t, "subject", commits[0].Message)
	})

	t.Run("message lines that look like markers of another salt are kept", func(t *testing.T) {
		other := commitlog.NewFormat()
		p := f.NewParser(nil, 0)
		feed(p, []string{
			f.Marker(commitlog.MarkerHash) + "abc",
			f.Marker(commitlog.MarkerMessage) + "subject",
			other.Marker(commitlog.MarkerFiles),
			f.Marker(commitlog.MarkerFiles),
		})
		commits := p.Commits()
		require.Equal(t, "subject\n"+other.Marker(commitlog.MarkerFiles), commits[0].Message)
	})

	t.Run("returned commits are copies", func(t *testing.T) {
		p := f.NewParser(nil, 0)
		feed(p, render(f, entries(1)))
		first := p.Commits()
		first[0].Files[0] = "changed"
		require.Equal(t, "dir/file0.txt", p.Commits()[0].Files[0])
	})
}

func TestReadShallowFile(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		set, err := commitlog.ReadShallowFile(t.TempDir())
		require.NoError(t, err)
		require.Empty(t, set)
	})

	t.Run("reads ids", func(t *testing.T) {
		dir := t.TempDir()
		id := strings.Repeat("a", 40)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shallow"), []byte(id+"\n\n"), 0600))
		set, err := commitlog.ReadShallowFile(dir)
		require.NoError(t, err)
		require.True(t, set.Contains(id))
		require.Len(t, set, 1)
	})
}
