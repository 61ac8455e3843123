package buildlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the sink for build log entries
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Debug(format string, args ...any)
}

// Discard is a Logger that drops everything
var Discard Logger = discard{}

type discard struct{}

func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
func (discard) Debug(string, ...any) {}

// simpleHandler writes messages without level prefixes, and without
// timestamps unless asked for
type simpleHandler struct {
	mu         *sync.Mutex
	writer     io.Writer
	debugMode  bool
	timestamps bool
}

func (h *simpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		return h.debugMode
	}
	return true
}

func (h *simpleHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timestamps {
		_, err := fmt.Fprintf(h.writer, "%s %s\n", record.Time.Format(time.TimeOnly), record.Message)
		return err
	}
	_, err := fmt.Fprintln(h.writer, record.Message)
	return err
}

func (h *simpleHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *simpleHandler) WithGroup(_ string) slog.Handler {
	return h
}

// multiHandler fans out log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// createLumberjackLogger creates a lumberjack logger with configuration from environment variables
func createLumberjackLogger(logFilePath string) *lumberjack.Logger {
	config := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   false,
	}

	if maxSizeStr := os.Getenv("REPOSYNC_LOG_MAX_SIZE"); maxSizeStr != "" {
		if maxSize, err := strconv.Atoi(maxSizeStr); err == nil && maxSize > 0 {
			config.MaxSize = maxSize
		}
	}

	if maxBackupsStr := os.Getenv("REPOSYNC_LOG_MAX_BACKUPS"); maxBackupsStr != "" {
		if maxBackups, err := strconv.Atoi(maxBackupsStr); err == nil && maxBackups >= 0 {
			config.MaxBackups = maxBackups
		}
	}

	if maxAgeStr := os.Getenv("REPOSYNC_LOG_MAX_AGE"); maxAgeStr != "" {
		if maxAge, err := strconv.Atoi(maxAgeStr); err == nil && maxAge > 0 {
			config.MaxAge = maxAge
		}
	}

	return config
}

// Splog is the console (and optional file) build log
type Splog struct {
	logger    *slog.Logger
	logWriter io.WriteCloser
}

// NewSplog creates a console-only build log writing to w.
// Debug entries are shown when the DEBUG environment variable is set.
func NewSplog(w io.Writer) *Splog {
	s, _ := NewSplogWithFile(w, "")
	return s
}

// SplogOption configures the console side of a Splog
type SplogOption func(*simpleHandler)

// WithTimestamps prefixes console lines with the time of day. Used when
// nobody watches the console live, e.g. in a build pipeline.
func WithTimestamps() SplogOption {
	return func(h *simpleHandler) {
		h.timestamps = true
	}
}

// NewSplogWithFile creates a build log writing to w and, if logFilePath is not empty,
// to a rotating log file with timestamps.
func NewSplogWithFile(w io.Writer, logFilePath string, opts ...SplogOption) (*Splog, error) {
	splog := &Splog{}

	console := &simpleHandler{
		mu:        &sync.Mutex{},
		writer:    w,
		debugMode: os.Getenv("DEBUG") != "",
	}
	for _, opt := range opts {
		opt(console)
	}
	handlers := []slog.Handler{console}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumberjackLogger := createLumberjackLogger(logFilePath)
		splog.logWriter = lumberjackLogger

		handlers = append(handlers, slog.NewTextHandler(lumberjackLogger, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
				}
				return a
			},
		}))
	}

	splog.logger = slog.New(&multiHandler{handlers: handlers})
	return splog, nil
}

func (s *Splog) log(level slog.Level, format string, args []any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s.logger.Log(context.Background(), level, msg)
}

// Info writes a build log entry
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Info(format string, args ...any) {
	s.log(slog.LevelInfo, format, args)
}

// Warn writes a warning entry
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Warn(format string, args ...any) {
	s.log(slog.LevelWarn, format, args)
}

// Error writes an error entry
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Error(format string, args ...any) {
	s.log(slog.LevelError, format, args)
}

// Debug writes a debug entry
// nolint // format string validation is handled internally via fmt.Sprintf
func (s *Splog) Debug(format string, args ...any) {
	s.log(slog.LevelDebug, format, args)
}

// Close closes the log file if one was opened
func (s *Splog) Close() error {
	if s.logWriter != nil {
		return s.logWriter.Close()
	}
	return nil
}
