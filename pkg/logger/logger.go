package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Slog maps the level onto the slog scale.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel parses a string to LogLevel.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ERROR.String()
	case level >= slog.LevelWarn:
		return WARN.String()
	case level >= slog.LevelInfo:
		return INFO.String()
	default:
		return DEBUG.String()
	}
}

// Config contains logger configuration.
type Config struct {
	Level    LogLevel // Minimum log level to output
	Prefix   string   // Prefix for all log messages
	Console  bool     // Enable console output
	File     bool     // Enable file output
	FilePath string   // Path to log file
}

// sink is shared by every handler derived from the same logger.
type sink struct {
	mu            sync.Mutex
	consoleWriter io.Writer
	fileWriter    io.Writer
	consoleEnable bool
	fileEnable    bool
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consoleEnable && s.consoleWriter != nil {
		s.consoleWriter.Write(line)
	}
	if s.fileEnable && s.fileWriter != nil {
		s.fileWriter.Write(line)
	}
}

// Handler is a slog.Handler producing "<prefix><timestamp> [LEVEL] msg key=value" lines.
type Handler struct {
	sink   *sink
	level  *slog.LevelVar
	prefix string
	attrs  string
	group  string
}

// Logger is a thread-safe logger with level filtering and multiple outputs.
// It embeds the slog.Logger so components can accept a plain *slog.Logger.
type Logger struct {
	*slog.Logger
	handler *Handler
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg *Config) (*Logger, error) {
	s := &sink{
		consoleWriter: os.Stderr,
		consoleEnable: cfg.Console,
		fileEnable:    cfg.File,
	}

	// Setup file output if enabled
	if cfg.File && cfg.FilePath != "" {
		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.fileWriter = file
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Level.Slog())

	h := &Handler{sink: s, level: level, prefix: cfg.Prefix}
	return &Logger{Logger: slog.New(h), handler: h}, nil
}

// NewDefaultLogger creates a logger with default settings.
func NewDefaultLogger() *Logger {
	l, _ := NewLogger(&Config{
		Level:   INFO,
		Prefix:  "[hostbridge] ",
		Console: true,
	})
	return l
}

// NewWriterLogger creates a logger that writes every line to w. Used by tests
// and by callers that already own an output stream.
func NewWriterLogger(w io.Writer, level LogLevel) *Logger {
	l, _ := NewLogger(&Config{Level: level, Console: true})
	l.handler.sink.consoleWriter = w
	return l
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	l, _ := NewLogger(&Config{Level: ERROR})
	return l.Logger
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.handler.level.Set(level.Slog())
}

// GetLevel returns the current minimum log level.
func (l *Logger) GetLevel() LogLevel {
	switch l.handler.level.Level() {
	case slog.LevelDebug:
		return DEBUG
	case slog.LevelWarn:
		return WARN
	case slog.LevelError:
		return ERROR
	default:
		return INFO
	}
}

// SetConsoleEnabled enables or disables console output.
func (l *Logger) SetConsoleEnabled(enabled bool) {
	l.handler.sink.mu.Lock()
	defer l.handler.sink.mu.Unlock()
	l.handler.sink.consoleEnable = enabled
}

// SetFileEnabled enables or disables file output.
func (l *Logger) SetFileEnabled(enabled bool) {
	l.handler.sink.mu.Lock()
	defer l.handler.sink.mu.Unlock()
	l.handler.sink.fileEnable = enabled
}

// Close closes any open file handles.
func (l *Logger) Close() error {
	l.handler.sink.mu.Lock()
	defer l.handler.sink.mu.Unlock()

	if l.handler.sink.fileWriter != nil {
		if closer, ok := l.handler.sink.fileWriter.(io.Closer); ok {
			return closer.Close()
		}
	}
	return nil
}

// WithPrefix returns a new logger with the given prefix sharing the same outputs.
func (l *Logger) WithPrefix(prefix string) *Logger {
	h := l.handler.clone()
	h.prefix = prefix
	return &Logger{Logger: slog.New(h), handler: h}
}

func (h *Handler) clone() *Handler {
	c := *h
	return &c
}

// Enabled reports whether records at level are written.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes one record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.prefix)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.sink.write([]byte(b.String()))
	return nil
}

// WithAttrs returns a handler that appends attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	c.attrs = b.String()
	return c
}

// WithGroup qualifies subsequent attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	c := h.clone()
	if c.group == "" {
		c.group = name
	} else {
		c.group = c.group + "." + name
	}
	return c
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
