package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newFileLogger(t *testing.T, cfg Config) (*DefaultLogger, string) {
	t.Helper()
	if cfg.LogFilePath == "" {
		cfg.LogFilePath = filepath.Join(t.TempDir(), "test.log")
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	l, err := NewDefaultLogger(&cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, cfg.LogFilePath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(data)
}

func TestNewDefaultLoggerCreatesFileAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.log")
	newFileLogger(t, Config{LogFilePath: path})

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestConsoleOnlyLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewDefaultLogger(&Config{EnableConsole: true, Console: &buf, Level: LevelDebug})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Close()

	l.Info("page rebuilt", Int("page", 3))
	if !strings.Contains(buf.String(), "[INFO] page rebuilt page=3") {
		t.Errorf("unexpected console output: %q", buf.String())
	}
}

func TestLogLevelFiltering(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: LevelWarn})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message", errors.New("boom"))

	content := readLog(t, path)
	for _, unwanted := range []string{"debug message", "info message"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("Log should not contain %q", unwanted)
		}
	}
	for _, wanted := range []string{"[WARN] warn message", "[ERROR] error message", `error=boom`} {
		if !strings.Contains(content, wanted) {
			t.Errorf("Log should contain %q, got:\n%s", wanted, content)
		}
	}
}

func TestSetLevelAppliesToChildren(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: LevelError})
	child := l.With(String("job", "abc"))

	child.Info("before")
	l.SetLevel(LevelDebug)
	child.Debug("after")

	content := readLog(t, path)
	if strings.Contains(content, "before") {
		t.Error("info entry should have been filtered")
	}
	if !strings.Contains(content, "[DEBUG] after job=abc") {
		t.Errorf("expected child entry with its fields, got:\n%s", content)
	}
}

func TestFieldFormatting(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: LevelDebug})

	l.Info("fields",
		String("plain", "value"),
		String("spaced", "two words"),
		String("empty", ""),
		Int("count", 42),
		Float64("size", 10.5),
		Bool("ok", true),
		Duration("took", 1500*time.Millisecond),
		Err(nil))

	content := readLog(t, path)
	for _, want := range []string{
		"plain=value",
		`spaced="two words"`,
		`empty=""`,
		"count=42",
		"size=10.5",
		"ok=true",
		"took=1.5s",
		"error=<nil>",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %s in %q", want, content)
		}
	}
}

func TestErrorStackTrace(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		l, path := newFileLogger(t, Config{StackTraces: true})
		l.Error("failed", errors.New("x"))
		if !strings.Contains(readLog(t, path), "Stack trace:") {
			t.Error("expected a stack trace")
		}
	})
	t.Run("disabled", func(t *testing.T) {
		l, path := newFileLogger(t, Config{})
		l.Error("failed", errors.New("x"))
		if strings.Contains(readLog(t, path), "Stack trace:") {
			t.Error("unexpected stack trace")
		}
	})
}

func TestLogRotation(t *testing.T) {
	l, path := newFileLogger(t, Config{MaxFileSize: 200, MaxBackups: 2})

	for i := 0; i < 20; i++ {
		l.Info("a line long enough to force rotation quickly", Int("i", i))
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected first backup: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("expected second backup: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backups beyond MaxBackups must be removed")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("live log missing: %v", err)
	}
	if info.Size() > 200 {
		t.Errorf("live log exceeds limit: %d", info.Size())
	}
}

func TestGlobalLogger(t *testing.T) {
	defer Close()

	// Before Init every call is a no-op.
	Info("ignored")
	With(String("k", "v")).Warn("ignored")

	path := filepath.Join(t.TempDir(), "global.log")
	if err := Init(&Config{LogFilePath: path, MaxFileSize: 1 << 20, Level: LevelDebug}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("e"))
	With(String("job", "j1")).Info("scoped")

	content := readLog(t, path)
	for _, want := range []string{"global debug", "global info", "global warn", "global error", "scoped job=j1"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in global log", want)
		}
	}
	if strings.Contains(content, "ignored") {
		t.Error("entries logged before Init must be dropped")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected info level, got %v", cfg.Level)
	}
	if cfg.MaxFileSize != 10<<20 || cfg.MaxBackups != 5 {
		t.Errorf("unexpected rotation defaults: %+v", cfg)
	}
}

func TestLevelString(t *testing.T) {
	tests := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	}
	for level, want := range tests {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %s, want %s", level, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{" INFO ", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
