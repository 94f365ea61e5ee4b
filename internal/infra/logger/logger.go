package logger

import (
	"io"
	"os"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger implements waLog.Logger on top of a zap core.
type Logger struct {
	module string
	level  Level
	sugar  *zap.SugaredLogger
}

// New creates a new Logger writing colored console output to stderr.
func New(module string, level string) *Logger {
	return NewWithWriter(module, level, os.Stderr)
}

// NewWithWriter creates a Logger writing to w. Color is only used for terminals.
func NewWithWriter(module string, level string, w io.Writer) *Logger {
	lvl := parseLevel(level)

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "T"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.NameKey = "M"
	// zap joins Named segments with "."; print them like Module() does.
	encCfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + strings.ReplaceAll(name, ".", "/") + "]")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zapLevel(lvl),
	)

	z := zap.New(core)
	if module != "" {
		z = z.Named(module)
	}

	return &Logger{
		module: module,
		level:  lvl,
		sugar:  z.Sugar(),
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{level: LevelError + 1, sugar: zap.NewNop().Sugar()}
}

// parseLevel converts string level to Level.
func parseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Sub creates a sub-logger with a new module name.
func (l *Logger) Sub(module string) waLog.Logger {
	newModule := module
	if l.module != "" {
		newModule = l.module + "/" + module
	}
	return &Logger{
		module: newModule,
		level:  l.level,
		sugar:  l.sugar.Named(module),
	}
}

// Module returns the full module path of this logger.
func (l *Logger) Module() string {
	return l.module
}

// Debugf logs a debug message.
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.sugar.Debugf(msg, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}

// Warnf logs a warning message.
func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.sugar.Errorf(msg, args...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Ensure Logger implements waLog.Logger.
var _ waLog.Logger = (*Logger)(nil)
