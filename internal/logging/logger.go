// Package logging provides the structured logger every Vault component
// writes through: JSON-by-default entries carrying a trace ID, a
// component tag, and caller location, with any field whose value looks
// like stored chunk content truncated before it reaches the log sink —
// a Vault's whole purpose is holding conversation content, so a logger
// that faithfully dumps every field would leak it into ops tooling.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging interface every component logs through.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ContextKey namespaces values this package stores in a context.Context.
type ContextKey string

const TraceIDKey ContextKey = "trace_id"

// maxFieldValueLen caps how much of a single string field value is logged
// verbatim. Vault fields regularly carry stored chunk content (a search
// hit's Content, a buffer dump) that can run to kilobytes; logging it in
// full would both blow up log volume and put tenant content in plaintext
// ops tooling that isn't subject to the same access controls as the vault
// itself.
const maxFieldValueLen = 256

// StructuredLogger is the default Logger: JSON (or, if VAULT_LOG_JSON=0,
// plain text) lines to stdout.
type StructuredLogger struct {
	level     LogLevel
	traceID   string
	component string
	useJSON   bool
}

// LogLevel is a logging verbosity threshold.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// NewLogger creates a logger at level, honoring VAULT_LOG_JSON for output
// format (defaults to JSON).
func NewLogger(level LogLevel) Logger {
	return &StructuredLogger{level: level, useJSON: getEnvBool("VAULT_LOG_JSON", true)}
}

// NewLoggerWithTrace creates a logger pre-bound to traceID.
func NewLoggerWithTrace(level LogLevel, traceID string) Logger {
	return &StructuredLogger{level: level, traceID: traceID, useJSON: getEnvBool("VAULT_LOG_JSON", true)}
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithTraceID returns a logger bound to traceID, leaving the receiver
// unchanged.
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	return &StructuredLogger{level: l.level, traceID: traceID, component: l.component, useJSON: l.useJSON}
}

// WithComponent returns a logger tagged with component, leaving the
// receiver unchanged.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{level: l.level, traceID: l.traceID, component: component, useJSON: l.useJSON}
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, "", fields...)
	}
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, l.extractTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, "", fields...)
	}
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, l.extractTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, "", fields...)
	}
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, l.extractTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, "", fields...)
	}
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, l.extractTraceID(ctx), fields...)
	}
}

// Fatal logs at FATAL and exits the process — reserved for startup failures
// (bad config, an unopenable data directory), never for a single request's
// failure.
func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.logEntry("FATAL", msg, "", fields...)
	os.Exit(1)
}

func (l *StructuredLogger) logEntry(level, msg, contextTraceID string, fields ...interface{}) {
	traceID := l.traceID
	if contextTraceID != "" {
		traceID = contextTraceID
	}

	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	fieldMap := make(map[string]interface{}, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			fieldMap[fmt.Sprintf("field_%d", i)] = truncateFieldValue(fields[i])
			continue
		}
		key := fmt.Sprintf("%v", fields[i])
		fieldMap[key] = truncateFieldValue(fields[i+1])
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.useJSON {
		l.outputJSON(entry)
	} else {
		l.outputText(entry)
	}
}

// truncateFieldValue shortens an overlong string value so stored chunk
// content never lands in a log line unbounded. Non-string values pass
// through untouched.
func truncateFieldValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || len(s) <= maxFieldValueLen {
		return v
	}
	return s[:maxFieldValueLen] + fmt.Sprintf("...(truncated, %d bytes total)", len(s))
}

func (l *StructuredLogger) outputJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: failed to marshal entry: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func (l *StructuredLogger) outputText(entry LogEntry) {
	var parts []string
	parts = append(parts, entry.Timestamp, fmt.Sprintf("[%s]", entry.Level))

	if entry.TraceID != "" {
		parts = append(parts, fmt.Sprintf("trace:%s", entry.TraceID[:8]))
	}
	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", entry.Component))
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	fmt.Println(strings.Join(parts, " "))
}

func (l *StructuredLogger) extractTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// defaultLogger backs the package-level convenience functions; its level
// comes from VAULT_LOG_LEVEL (INFO if unset or unrecognized).
var defaultLogger = NewLogger(ParseLogLevel(os.Getenv("VAULT_LOG_LEVEL")))

func Info(msg string, fields ...interface{})  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { defaultLogger.Fatal(msg, fields...) }

func InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.InfoContext(ctx, msg, fields...)
}

func WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.WarnContext(ctx, msg, fields...)
}

func ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.ErrorContext(ctx, msg, fields...)
}

func DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.DebugContext(ctx, msg, fields...)
}

// GenerateTraceID returns a fresh random trace ID for a request that
// didn't arrive with one.
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches traceID to ctx, generating one if traceID is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the trace ID ctx was tagged with, or "" if none.
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithComponent tags the package default logger with component.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLogLevel maps a level name (case-insensitive) to a LogLevel,
// defaulting to INFO for anything unrecognized or empty.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetDefaultLogger overrides the package default logger (for example with
// a NoOpLogger).
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}
