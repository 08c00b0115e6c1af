package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(slog.LevelDebug)
	LevelInfo  LogLevel = LogLevel(slog.LevelInfo)
	LevelWarn  LogLevel = LogLevel(slog.LevelWarn)
	LevelError LogLevel = LogLevel(slog.LevelError)
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  LogLevel `json:"level"`
	Format string   `json:"format"` // "json" or "text"
	Output string   `json:"output"` // "stdout", "stderr", or file path
}

// DefaultLogConfig returns the configuration used when nothing is set.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  LevelInfo,
		Format: "json",
		Output: "stdout",
	}
}

type ctxKey string

const (
	requestIDKey      ctxKey = "request_id"
	verificationIDKey ctxKey = "verification_id"
)

// Logger provides structured logging with context support
type Logger struct {
	mu      sync.RWMutex
	level   *slog.LevelVar
	slogger *slog.Logger
	file    *os.File
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns the process-wide logger, writing JSON to stdout until
// SetDefault replaces it.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger, _ = NewLogger(DefaultLogConfig())
		}
	})
	return defaultLogger
}

// SetDefault swaps the process-wide logger.
func SetDefault(l *Logger) {
	defaultOnce.Do(func() {})
	defaultLogger = l
}

// NewLogger creates a new structured logger
func NewLogger(config LogConfig) (*Logger, error) {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(slog.Level(config.Level))

	var writer io.Writer
	switch config.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(config.Output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		writer = f
	}

	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	l.slogger = slog.New(handler)
	return l, nil
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	l := &Logger{level: new(slog.LevelVar)}
	l.slogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: l.level}))
	return l
}

// SetLevel changes the minimum level at runtime (config hot-reload).
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(slog.Level(level))
}

// ParseLevel maps LOG_LEVEL values to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ContextWithRequestID stores a request id for WithContext loggers.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithVerificationID stores a verification id for WithContext loggers.
func ContextWithVerificationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, verificationIDKey, id)
}

// RequestIDFrom returns the request id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger that attaches request and verification ids
// found in ctx.
func (l *Logger) WithContext(ctx context.Context) *ComponentLogger {
	var fields []Field
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, String("request_id", id))
	}
	if id, ok := ctx.Value(verificationIDKey).(string); ok && id != "" {
		fields = append(fields, String("verification_id", id))
	}
	return &ComponentLogger{logger: l, fields: fields}
}

// WithComponent returns a logger with component information
func (l *Logger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{logger: l, fields: []Field{String("component", component)}}
}

// ComponentLogger carries a fixed set of fields on every entry.
type ComponentLogger struct {
	logger *Logger
	fields []Field
}

// With returns a copy carrying extra fields.
func (cl *ComponentLogger) With(fields ...Field) *ComponentLogger {
	merged := make([]Field, 0, len(cl.fields)+len(fields))
	merged = append(merged, cl.fields...)
	merged = append(merged, fields...)
	return &ComponentLogger{logger: cl.logger, fields: merged}
}

func (cl *ComponentLogger) Debug(msg string, fields ...Field) {
	cl.logger.log(LevelDebug, msg, nil, append(fields, cl.fields...)...)
}

func (cl *ComponentLogger) Info(msg string, fields ...Field) {
	cl.logger.log(LevelInfo, msg, nil, append(fields, cl.fields...)...)
}

func (cl *ComponentLogger) Warn(msg string, fields ...Field) {
	cl.logger.log(LevelWarn, msg, nil, append(fields, cl.fields...)...)
}

func (cl *ComponentLogger) Error(msg string, err error, fields ...Field) {
	cl.logger.log(LevelError, msg, err, append(fields, cl.fields...)...)
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, nil, fields...)
}

// Info logs at info level
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, nil, fields...)
}

// Warn logs at warning level
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, nil, fields...)
}

// Error logs at error level
func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields...)
}

// Fatal logs at error level and exits
func (l *Logger) Fatal(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields...)
	_ = l.Close()
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string, err error, fields ...Field) {
	ctx := context.Background()
	if !l.slogger.Enabled(ctx, slog.Level(level)) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+2)
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if level >= LevelWarn {
		if _, file, line, ok := runtime.Caller(2); ok {
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
		}
	}
	l.slogger.LogAttrs(ctx, slog.Level(level), msg, attrs...)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}
