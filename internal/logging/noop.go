package logging

import (
	"context"
	"sync/atomic"
)

// NoOpLogger discards every log call. SetDefaultLogger can install it as
// the default logger so a noisy dependency (a flapping circuit breaker, a
// replica retry storm) produces no output.
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards everything.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (n *NoOpLogger) Error(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (n *NoOpLogger) Fatal(msg string, fields ...interface{}) {}

func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}
func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}

func (n *NoOpLogger) WithTraceID(traceID string) Logger  { return n }
func (n *NoOpLogger) WithComponent(component string) Logger { return n }

// CountingLogger discards output like NoOpLogger but tallies how many
// times each level fired, so a test can assert "the breaker logged exactly
// one warning" without scraping stdout.
type CountingLogger struct {
	warns, errors, infos int64
}

// NewCountingLogger creates a counting no-op logger.
func NewCountingLogger() *CountingLogger {
	return &CountingLogger{}
}

func (c *CountingLogger) Info(msg string, fields ...interface{})  { atomic.AddInt64(&c.infos, 1) }
func (c *CountingLogger) Warn(msg string, fields ...interface{})  { atomic.AddInt64(&c.warns, 1) }
func (c *CountingLogger) Error(msg string, fields ...interface{}) { atomic.AddInt64(&c.errors, 1) }
func (c *CountingLogger) Debug(msg string, fields ...interface{}) {}
func (c *CountingLogger) Fatal(msg string, fields ...interface{}) {}

func (c *CountingLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	c.Info(msg, fields...)
}
func (c *CountingLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	c.Warn(msg, fields...)
}
func (c *CountingLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	c.Error(msg, fields...)
}
func (c *CountingLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}

func (c *CountingLogger) WithTraceID(traceID string) Logger     { return c }
func (c *CountingLogger) WithComponent(component string) Logger { return c }

// Warns returns the number of Warn/WarnContext calls seen so far.
func (c *CountingLogger) Warns() int64 { return atomic.LoadInt64(&c.warns) }

// Errors returns the number of Error/ErrorContext calls seen so far.
func (c *CountingLogger) Errors() int64 { return atomic.LoadInt64(&c.errors) }

// Infos returns the number of Info/InfoContext calls seen so far.
func (c *CountingLogger) Infos() int64 { return atomic.LoadInt64(&c.infos) }
