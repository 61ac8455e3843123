package buildlog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Entry is a single recorded build log line
type Entry struct {
	Level   slog.Level
	Message string
}

// Recorder keeps build log entries in memory
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level slog.Level, format string, args []any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
}

func (r *Recorder) Info(format string, args ...any)  { r.add(slog.LevelInfo, format, args) }
func (r *Recorder) Warn(format string, args ...any)  { r.add(slog.LevelWarn, format, args) }
func (r *Recorder) Error(format string, args ...any) { r.add(slog.LevelError, format, args) }
func (r *Recorder) Debug(format string, args ...any) { r.add(slog.LevelDebug, format, args) }

// Entries returns a copy of all recorded entries
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the recorded messages at or above the given level
func (r *Recorder) Messages(min slog.Level) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level >= min {
			out = append(out, e.Message)
		}
	}
	return out
}

// String joins every recorded message with newlines
func (r *Recorder) String() string {
	return strings.Join(r.Messages(slog.LevelDebug), "\n")
}
