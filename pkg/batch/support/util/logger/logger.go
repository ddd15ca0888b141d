// Package logger provides the process-wide logger for chunkflow.
// It keeps a printf-style package API on top of a zap SugaredLogger so that call sites
// stay short while output remains structured.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	raw   = newLogger(level)
	base  = raw.WithOptions(zap.AddCallerSkip(1)).Sugar()
)

func newLogger(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller())
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR" and "FATAL" (case-insensitive).
// Unknown values fall back to INFO.
func SetLogLevel(lvl string) {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "DEBUG":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO", "":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN", "WARNING":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", lvl)
	}
}

// GetLogLevel returns the current level name in upper case.
func GetLogLevel() string {
	return strings.ToUpper(level.Level().String())
}

// ReplaceLogger swaps the underlying zap logger and returns a function restoring the previous one.
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prevRaw, prevBase := raw, base
	raw = l
	base = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		raw, base = prevRaw, prevBase
		mu.Unlock()
	}
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return raw.Sugar().With(keysAndValues...)
}

// Debugf logs a DEBUG level message.
func Debugf(format string, v ...interface{}) { sugar().Debugf(format, v...) }

// Infof logs an INFO level message.
func Infof(format string, v ...interface{}) { sugar().Infof(format, v...) }

// Warnf logs a WARN level message.
func Warnf(format string, v ...interface{}) { sugar().Warnf(format, v...) }

// Errorf logs an ERROR level message.
func Errorf(format string, v ...interface{}) { sugar().Errorf(format, v...) }

// Fatalf logs a FATAL level message and exits the process.
func Fatalf(format string, v ...interface{}) { sugar().Fatalf(format, v...) }

// Sync flushes any buffered log entries.
func Sync() error {
	return sugar().Sync()
}
