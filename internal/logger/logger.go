// Package logger provides levelled, structured logging for the PDF translator.
// Entries are single logfmt-style lines written to a size-rotated file and,
// optionally, to the console.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the string representation of the log level
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a level name such as "debug" or "WARN" to a Level.
// Unknown names yield LevelInfo and false.
func ParseLevel(name string) (Level, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "WARNING" {
		n = "WARN"
	}
	for i, s := range levelNames {
		if s == n {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a field holding the duration in its string form
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger defines the logging interface
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
	SetLevel(level Level)
	Close() error
}

// Config holds the configuration for the logger
type Config struct {
	// LogFilePath is the log file. Empty means console only.
	LogFilePath string
	// MaxFileSize is the size in bytes at which the file is rotated.
	MaxFileSize int64
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	Level      Level
	// EnableConsole mirrors entries to Console, or stderr when Console is nil.
	EnableConsole bool
	Console       io.Writer
	// StackTraces appends the caller stack to error entries.
	StackTraces bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		LogFilePath:   "pdf-translator.log",
		MaxFileSize:   10 << 20,
		MaxBackups:    5,
		Level:         LevelInfo,
		EnableConsole: false,
		StackTraces:   true,
	}
}

// sink is the shared output of a logger and its children.
type sink struct {
	cfg   Config
	mu    sync.Mutex
	level Level
	file  *os.File
	size  int64
}

func (s *sink) open() error {
	f, err := os.OpenFile(s.cfg.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	s.file, s.size = f, info.Size()
	return nil
}

func (s *sink) write(level Level, entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	if s.file != nil {
		if s.cfg.MaxFileSize > 0 && s.size+int64(len(entry)) > s.cfg.MaxFileSize {
			if err := s.rotate(); err != nil {
				fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
			}
		}
		if s.file != nil {
			n, _ := io.WriteString(s.file, entry)
			s.size += int64(n)
		}
	}
	if s.cfg.EnableConsole {
		w := s.cfg.Console
		if w == nil {
			w = os.Stderr
		}
		io.WriteString(w, entry)
	}
}

// rotate shifts path.N to path.N+1, the live file to path.1, and drops
// anything beyond MaxBackups.
func (s *sink) rotate() error {
	path := s.cfg.LogFilePath
	s.file.Close()
	s.file = nil

	backup := func(i int) string { return path + "." + strconv.Itoa(i) }
	os.Remove(backup(s.cfg.MaxBackups))
	for i := s.cfg.MaxBackups - 1; i >= 1; i-- {
		os.Rename(backup(i), backup(i+1))
	}
	if s.cfg.MaxBackups > 0 {
		os.Rename(path, backup(1))
	} else {
		os.Remove(path)
	}
	return s.open()
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// DefaultLogger is the default implementation of the Logger interface
type DefaultLogger struct {
	out    *sink
	fields []Field
}

// NewDefaultLogger creates a new DefaultLogger with the given configuration
func NewDefaultLogger(config *Config) (*DefaultLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	s := &sink{cfg: *config, level: config.Level}

	if config.LogFilePath != "" {
		if dir := filepath.Dir(config.LogFilePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		if err := s.open(); err != nil {
			return nil, err
		}
	}
	return &DefaultLogger{out: s}, nil
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, nil, fields)
}

// Info logs an informational message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, nil, fields)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, nil, fields)
}

// Error logs err with the message; a stack trace follows when enabled.
func (l *DefaultLogger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields)
}

// With returns a child logger sharing this logger's output.
func (l *DefaultLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &DefaultLogger{out: l.out, fields: merged}
}

// SetLevel sets the minimum level of this logger and all its children.
func (l *DefaultLogger) SetLevel(level Level) {
	l.out.mu.Lock()
	l.out.level = level
	l.out.mu.Unlock()
}

// Close closes the log file.
func (l *DefaultLogger) Close() error {
	return l.out.close()
}

func (l *DefaultLogger) log(level Level, msg string, err error, fields []Field) {
	l.out.mu.Lock()
	enabled := level >= l.out.level
	l.out.mu.Unlock()
	if !enabled {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)
	if err != nil {
		writeField(&sb, "error", err.Error())
	}
	for _, f := range l.fields {
		writeField(&sb, f.Key, f.Value)
	}
	for _, f := range fields {
		writeField(&sb, f.Key, f.Value)
	}
	sb.WriteByte('\n')
	if level == LevelError && l.out.cfg.StackTraces {
		sb.WriteString(stackTrace(4))
	}
	l.out.write(level, sb.String())
}

// writeField appends key=value, quoting values that contain spaces, quotes
// or line breaks.
func writeField(sb *strings.Builder, key string, value interface{}) {
	v := fmt.Sprintf("%v", value)
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	if v == "" || strings.ContainsAny(v, " \t\n\r\"=") {
		v = strconv.Quote(v)
	}
	sb.WriteString(v)
}

func stackTrace(skip int) string {
	const depth = 10
	var sb strings.Builder
	sb.WriteString("Stack trace:\n")
	pcs := make([]uintptr, depth+8)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	n := 0
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") && !strings.HasPrefix(fr.Function, "testing.") {
			fmt.Fprintf(&sb, "  %s:%d %s\n", fr.File, fr.Line, fr.Function)
			if n++; n >= depth {
				sb.WriteString("  ... (truncated)\n")
				break
			}
		}
		if !more {
			break
		}
	}
	return sb.String()
}

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// Init initializes the global logger with the given configuration
func Init(config *Config) error {
	l, err := NewDefaultLogger(config)
	if err != nil {
		return err
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = l
	return nil
}

// GetLogger returns the global logger, or a no-op logger before Init.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return noopLogger{}
	}
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// Close closes the global logger
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		return nil
	}
	err := globalLogger.Close()
	globalLogger = nil
	return err
}

// Debug logs a debug message using the global logger
func Debug(msg string, fields ...Field) {
	GetLogger().Debug(msg, fields...)
}

// Info logs an informational message using the global logger
func Info(msg string, fields ...Field) {
	GetLogger().Info(msg, fields...)
}

// Warn logs a warning message using the global logger
func Warn(msg string, fields ...Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message using the global logger
func Error(msg string, err error, fields ...Field) {
	GetLogger().Error(msg, err, fields...)
}

// With returns a child of the global logger.
func With(fields ...Field) Logger { return GetLogger().With(fields...) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field) {}
func (noopLogger) Warn(string, ...Field) {}
func (noopLogger) Error(string, error, ...Field) {}
func (n noopLogger) With(...Field) Logger { return n }
func (noopLogger) SetLevel(Level) {}
func (noopLogger) Close() error { return nil }
