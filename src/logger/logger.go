package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------

// Logger provides named, printf-style logging on top of zap.
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// LevelProvider is implemented by configs that carry a log level.
type LevelProvider interface {
	GetLogLevel() string
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance.
// config may be nil or anything implementing LevelProvider.
func NewLogger(config interface{}, name string) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if lp, ok := config.(LevelProvider); ok {
		level.SetLevel(ParseLevel(lp.GetLogLevel()))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(name)
	return &Logger{
		name:  name,
		sugar: base.Sugar(),
		level: level,
	}
}

// -----------------------------------------------------------------------------

// NewNop returns a Logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{
		name:  "nop",
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// -----------------------------------------------------------------------------

// ParseLevel maps the config spelling (DEBUG, INFO, WARNING, ERROR) to zap.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "CRITICAL", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the same level.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:  l.name + "." + name,
		sugar: l.sugar.Named(name),
		level: l.level,
	}
}

// -----------------------------------------------------------------------------

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

// -----------------------------------------------------------------------------

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs warning messages
func (l *Logger) Warning(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Errorf("CRITICAL: %s", fmt.Sprintf(format, args...))
	_ = l.sugar.Sync()
	os.Exit(1)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.sugar == nil {
		return nil
	}
	return l.sugar.Sync()
}
