package git

import (
	"bytes"
	"strings"
	"sync"

	"reposync.dev/reposync/internal/buildlog"
)

// OutputHandler consumes command output one line at a time
type OutputHandler interface {
	HandleLine(line string)
}

// ErrorLineHandler is implemented by handlers that also want stderr lines
type ErrorLineHandler interface {
	HandleErrorLine(line string)
}

// StringHandler accumulates the full output text
type StringHandler struct {
	sb strings.Builder
}

// HandleLine appends the line and a newline
func (h *StringHandler) HandleLine(line string) {
	h.sb.WriteString(line)
	h.sb.WriteByte('\n')
}

// Output returns everything received so far
func (h *StringHandler) Output() string {
	return h.sb.String()
}

// LinesHandler collects output lines in order
type LinesHandler struct {
	lines []string
}

// HandleLine records the line
func (h *LinesHandler) HandleLine(line string) {
	h.lines = append(h.lines, line)
}

// Lines returns the received lines
func (h *LinesHandler) Lines() []string {
	return h.lines
}

// LoggingHandler forwards each line to the build log and keeps it for error reporting
type LoggingHandler struct {
	StringHandler
	log buildlog.Logger
}

// NewLoggingHandler creates a LoggingHandler writing to log
func NewLoggingHandler(log buildlog.Logger) *LoggingHandler {
	if log == nil {
		log = buildlog.Discard
	}
	return &LoggingHandler{log: log}
}

// HandleLine logs the obfuscated line and accumulates it
func (h *LoggingHandler) HandleLine(line string) {
	h.log.Info("%s", ObfuscateURLs(line))
	h.StringHandler.HandleLine(line)
}

// HandleErrorLine treats stderr like stdout; git reports progress on stderr
func (h *LoggingHandler) HandleErrorLine(line string) {
	h.HandleLine(line)
}

// lineWriter splits a byte stream into lines. Writers sharing mu deliver
// lines to their sinks one at a time.
type lineWriter struct {
	mu      *sync.Mutex
	buf     bytes.Buffer
	deliver func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.deliver(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// flush delivers a trailing line without newline
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.deliver(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}

// HandlerWriter adapts an OutputHandler to an io.Writer, for progress
// streams of in-process transports. Flush delivers a trailing partial line.
type HandlerWriter struct {
	w lineWriter
}

// NewHandlerWriter creates a HandlerWriter delivering to handler
func NewHandlerWriter(handler OutputHandler) *HandlerWriter {
	return &HandlerWriter{w: lineWriter{mu: &sync.Mutex{}, deliver: handler.HandleLine}}
}

func (h *HandlerWriter) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// Flush delivers any buffered partial line
func (h *HandlerWriter) Flush() {
	h.w.flush()
}
