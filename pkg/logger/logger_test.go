package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("DefaultLogger", func(t *testing.T) {
		l := NewDefaultLogger()
		if l == nil {
			t.Fatal("NewDefaultLogger returned nil")
		}

		if l.GetLevel() != INFO {
			t.Errorf("Expected level INFO, got %v", l.GetLevel())
		}

		if !l.handler.sink.consoleEnable {
			t.Error("Console should be enabled by default")
		}

		l.Close()
	})

	t.Run("CustomLogger", func(t *testing.T) {
		cfg := &Config{
			Level:   DEBUG,
			Prefix:  "[test] ",
			Console: false,
			File:    false,
		}

		l, err := NewLogger(cfg)
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		if l.GetLevel() != DEBUG {
			t.Errorf("Expected level DEBUG, got %v", l.GetLevel())
		}

		if l.handler.sink.consoleEnable {
			t.Error("Console should be disabled")
		}

		l.Close()
	})
}

func TestLogLevel(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		tests := []struct {
			level    LogLevel
			expected string
		}{
			{DEBUG, "DEBUG"},
			{INFO, "INFO"},
			{WARN, "WARN"},
			{ERROR, "ERROR"},
		}

		for _, tt := range tests {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
			}
		}
	})

	t.Run("ParseLogLevel", func(t *testing.T) {
		tests := []struct {
			input    string
			expected LogLevel
		}{
			{"debug", DEBUG},
			{"DEBUG", DEBUG},
			{"info", INFO},
			{"warn", WARN},
			{"error", ERROR},
			{"invalid", INFO}, // Default to INFO
		}

		for _, tt := range tests {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLogLevel(%q): expected %v, got %v", tt.input, tt.expected, got)
			}
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, WARN)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("DEBUG message should be filtered")
	}
	if strings.Contains(output, "info message") {
		t.Error("INFO message should be filtered")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("WARN message should appear")
	}
	if !strings.Contains(output, "error message") {
		t.Error("ERROR message should appear")
	}
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, INFO).WithPrefix("[test] ")

	l.Info("test message", "conn", "abc", "error", errors.New("boom here"))

	output := buf.String()

	if !strings.HasPrefix(output, "[test] ") {
		t.Errorf("Output should start with prefix, got %q", output)
	}
	if !strings.Contains(output, "[INFO]") {
		t.Error("Output should contain level")
	}
	if !strings.Contains(output, "test message") {
		t.Error("Output should contain message")
	}
	if !strings.Contains(output, `conn=abc`) {
		t.Errorf("Output should contain attributes, got %q", output)
	}
	if !strings.Contains(output, `error="boom here"`) {
		t.Errorf("Errors with spaces should be quoted, got %q", output)
	}
	if !matchesTimestamp(output) {
		t.Error("Output should contain timestamp in format YYYY-MM-DD HH:MM:SS")
	}
}

func TestWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, DEBUG)

	l.With("component", "cmdserver").WithGroup("conn").Debug("accepted", "id", "42")

	output := buf.String()
	if !strings.Contains(output, "component=cmdserver") {
		t.Errorf("missing With attribute: %q", output)
	}
	if !strings.Contains(output, "conn.id=42") {
		t.Errorf("missing grouped attribute: %q", output)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, INFO)
	child := l.With("component", "child")

	l.SetLevel(ERROR)
	if l.GetLevel() != ERROR {
		t.Error("GetLevel should return ERROR")
	}

	child.Warn("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("derived loggers should follow the shared level, got %q", buf.String())
	}
}

func TestConsoleEnable(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, INFO)

	l.SetConsoleEnabled(false)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Error("Console should be disabled")
	}

	l.SetConsoleEnabled(true)
	l.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Console should be enabled")
	}
}

func TestFileLogging(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "logs", "hostbridge.log")

	cfg := &Config{
		Level:    INFO,
		Prefix:   "[test] ",
		Console:  false,
		File:     true,
		FilePath: tempFile,
	}

	l, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	l.Info("test message to file")
	l.Close()

	data, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if !strings.Contains(string(data), "test message to file") {
		t.Error("Log file should contain the message")
	}
}

func TestWithPrefix(t *testing.T) {
	l := NewDefaultLogger()

	l2 := l.WithPrefix("[custom] ")
	if l2.handler.prefix != "[custom] " {
		t.Errorf("Expected prefix '[custom] ', got '%s'", l2.handler.prefix)
	}

	if l.handler.prefix != "[hostbridge] " {
		t.Errorf("Original prefix should be unchanged")
	}
}

// matchesTimestamp checks for "<prefix>YYYY-MM-DD HH:MM:SS [LEVEL]".
func matchesTimestamp(output string) bool {
	prefixEnd := strings.Index(output, "] ")
	if prefixEnd == -1 {
		return false
	}
	afterPrefix := output[prefixEnd+2:]

	levelStart := strings.Index(afterPrefix, " [")
	if levelStart == -1 {
		return false
	}

	parts := strings.Split(afterPrefix[:levelStart], " ")
	if len(parts) != 2 {
		return false
	}
	return len(strings.Split(parts[0], "-")) == 3 && len(strings.Split(parts[1], ":")) == 3
}
