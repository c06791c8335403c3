// Package logger defines the logging contract shared by all presbridge
// packages and provides a log/slog based implementation.
//
// Components receive a Logger through their configuration; the package-level
// functions operate on a process-wide default logger for code that has no
// configuration of its own (e.g. early startup).
package logger

// Level indicates the logging severity level.
type Level = int8

const (
	// DebugLevel logs are voluminous and usually disabled in production.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs flag potential issues that don't need individual review.
	WarnLevel
	// ErrorLevel logs are high-priority failures.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// Logger is the common structured-logging interface used throughout
// presbridge. Messages carry alternating key/value pairs.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel and then calls os.Exit(1),
	// even if logging at FatalLevel is disabled.
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger with the given structured context attached.
	// Key/values added to the child don't affect the parent.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
