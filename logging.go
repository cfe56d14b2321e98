package analytics

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// defaultStderrLogger is used as a fallback when no logger is configured.
// This ensures async delivery failures are never silently dropped.
var defaultStderrLogger = log.New(os.Stderr, "analytics: ", log.LstdFlags)

// Logger is a minimal printf-style logging interface, compatible with the
// standard library log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// StructuredLogger provides leveled, structured logging. It is compatible
// with log/slog via NewSlogAdapter and with zerolog via NewZerologAdapter.
type StructuredLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards all log messages.
type NopLogger struct{}

// Printf implements Logger.
func (NopLogger) Printf(format string, v ...any) {}

// Debug implements StructuredLogger.
func (NopLogger) Debug(msg string, args ...any) {}

// Info implements StructuredLogger.
func (NopLogger) Info(msg string, args ...any) {}

// Warn implements StructuredLogger.
func (NopLogger) Warn(msg string, args ...any) {}

// Error implements StructuredLogger.
func (NopLogger) Error(msg string, args ...any) {}

var (
	_ Logger           = NopLogger{}
	_ StructuredLogger = NopLogger{}
)

// formatArgs formats structured logging arguments as a string for
// printf-style loggers.
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	result := " |"
	for i := 0; i < len(args)-1; i += 2 {
		result += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return result
}

// printfLoggerWrapper adapts a printf-style Logger to StructuredLogger.
type printfLoggerWrapper struct {
	logger Logger
}

// WrapPrintfLogger wraps a printf-style Logger (like *log.Logger) so it can
// be used where a StructuredLogger is expected. All levels are logged with a
// level prefix and formatted key-value pairs appended.
func WrapPrintfLogger(l Logger) StructuredLogger {
	return &printfLoggerWrapper{logger: l}
}

func (w *printfLoggerWrapper) Debug(msg string, args ...any) {
	w.logger.Printf("[DEBUG] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Info(msg string, args ...any) {
	w.logger.Printf("[INFO] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Warn(msg string, args ...any) {
	w.logger.Printf("[WARN] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Error(msg string, args ...any) {
	w.logger.Printf("[ERROR] " + msg + formatArgs(args))
}

var _ StructuredLogger = (*printfLoggerWrapper)(nil)

// SlogAdapter adapts a slog.Logger to the StructuredLogger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Debug implements StructuredLogger.
func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }

// Info implements StructuredLogger.
func (a *SlogAdapter) Info(msg string, args ...any) { a.logger.Info(msg, args...) }

// Warn implements StructuredLogger.
func (a *SlogAdapter) Warn(msg string, args ...any) { a.logger.Warn(msg, args...) }

// Error implements StructuredLogger.
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

// ZerologAdapter adapts a zerolog.Logger to the StructuredLogger interface.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a ZerologAdapter wrapping the given logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Debug implements StructuredLogger.
func (a *ZerologAdapter) Debug(msg string, args ...any) {
	a.emit(a.logger.Debug(), msg, args)
}

// Info implements StructuredLogger.
func (a *ZerologAdapter) Info(msg string, args ...any) {
	a.emit(a.logger.Info(), msg, args)
}

// Warn implements StructuredLogger.
func (a *ZerologAdapter) Warn(msg string, args ...any) {
	a.emit(a.logger.Warn(), msg, args)
}

// Error implements StructuredLogger.
func (a *ZerologAdapter) Error(msg string, args ...any) {
	a.emit(a.logger.Error(), msg, args)
}

func (a *ZerologAdapter) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}

var (
	_ StructuredLogger = (*SlogAdapter)(nil)
	_ StructuredLogger = (*ZerologAdapter)(nil)
)

// stderrFallbackLogger is the logger used when none is configured. It drops
// debug and info output but keeps warnings and errors on stderr so async
// delivery failures are never silent.
type stderrFallbackLogger struct{}

func (stderrFallbackLogger) Debug(msg string, args ...any) {}
func (stderrFallbackLogger) Info(msg string, args ...any)  {}

func (stderrFallbackLogger) Warn(msg string, args ...any) {
	defaultStderrLogger.Printf("[WARN] " + msg + formatArgs(args))
}

func (stderrFallbackLogger) Error(msg string, args ...any) {
	defaultStderrLogger.Printf("[ERROR] " + msg + formatArgs(args))
}

var _ StructuredLogger = stderrFallbackLogger{}
