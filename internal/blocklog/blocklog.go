// Package blocklog provides the leveled, structured logging used across the
// storage stack. It wraps log/slog with a five-level severity scheme (trace,
// debug, info, warning, error) and a selectable text/JSON handler, following
// the severity model of the teacher's internal/logger package.
package blocklog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// levelTrace sits below slog's built-in Debug so that per-sector eviction
// and allocation chatter can be filtered out even in debug builds.
const levelTrace = slog.Level(-8)

var severityNames = map[slog.Level]string{
	levelTrace:      "TRACE",
	slog.LevelDebug: "DEBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARNING",
	slog.LevelError: "ERROR",
}

var levelVar = new(slog.LevelVar)

var defaultLogger = slog.New(newHandler(os.Stderr, "text"))

func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl, _ := a.Value.Any().(slog.Level)
				name, ok := severityNames[lvl]
				if !ok {
					name = lvl.String()
				}
				a.Key = "severity"
				a.Value = slog.StringValue(name)
			}
			return a
		},
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Configure points the package logger at the given severity, encoding, and
// optional rotated log file. An empty filePath keeps logging on stderr.
func Configure(severity, format, filePath string) error {
	SetSeverity(severity)

	var w io.Writer = os.Stderr
	if filePath != "" {
		w = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}

	defaultLogger = slog.New(newHandler(w, format))
	return nil
}

// SetSeverity adjusts the minimum severity logged by the package logger.
func SetSeverity(severity string) {
	switch severity {
	case "trace":
		levelVar.Set(levelTrace)
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warning", "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), levelTrace, sfmt(format, args...))
}

func Debugf(format string, args ...any) { defaultLogger.Debug(sfmt(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(sfmt(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(sfmt(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(sfmt(format, args...)) }

// Fatalf logs at error severity and then panics, matching the storage
// stack's "device I/O errors are fatal" contract (spec error taxonomy:
// fatal conditions panic rather than return a value).
func Fatalf(format string, args ...any) {
	msg := sfmt(format, args...)
	defaultLogger.Error(msg)
	panic(msg)
}

func sfmt(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
