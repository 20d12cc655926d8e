// Package logger provides a process-wide structured logging singleton for
// tool-gating-mcp. New code should prefer injecting *slog.Logger directly;
// use Get to obtain the underlying logger for that purpose.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/viper"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(newLogger(false, false))
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the singleton logger. Intended for tests that need to
// capture log output; production code should use Initialize instead.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) { get().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(msg string, args ...any) { get().Debug(fmt.Sprintf(msg, args...)) }

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) { get().Debug(msg, keysAndValues...) }

// Info logs a message at info level using the singleton logger.
func Info(msg string) { get().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) { get().Info(fmt.Sprintf(msg, args...)) }

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) { get().Info(msg, keysAndValues...) }

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) { get().Warn(msg) }

// Warnf logs a formatted message at warning level.
func Warnf(msg string, args ...any) { get().Warn(fmt.Sprintf(msg, args...)) }

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) { get().Warn(msg, keysAndValues...) }

// Error logs a message at error level using the singleton logger.
func Error(msg string) { get().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) { get().Error(fmt.Sprintf(msg, args...)) }

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) { get().Error(msg, keysAndValues...) }

// Fatal logs a message at error level and exits the process.
func Fatal(msg string) {
	get().Error(msg)
	os.Exit(1)
}

// Fatalf logs a formatted message at error level and exits the process.
func Fatalf(msg string, args ...any) {
	get().Error(fmt.Sprintf(msg, args...))
	os.Exit(1)
}

// Initialize creates and configures the singleton logger from viper-bound
// flags. "debug" raises the level to slog.LevelDebug; "log.format" selects
// "text" or "json" (default "json").
func Initialize() {
	debug := viper.GetBool("debug")
	textFormat := viper.GetString("log.format") == "text"
	singleton.Store(newLogger(debug, textFormat))
}

func newLogger(debug, textFormat bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if textFormat {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
