package log

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// field helpers so callers don't need to import zap themselves
var (
	Skip       = zap.Skip
	Binary     = zap.Binary
	Bool       = zap.Bool
	Duration   = zap.Duration
	Float64    = zap.Float64
	Int        = zap.Int
	Int32      = zap.Int32
	Int64      = zap.Int64
	String     = zap.String
	Stringer   = zap.Stringer
	Time       = zap.Time
	Uint       = zap.Uint
	Uint8      = zap.Uint8
	Uint32     = zap.Uint32
	Uint64     = zap.Uint64
	Any        = zap.Any
	ErrorField = zap.Error

	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip
)

// Logger wraps zap.Logger. Use New or DevLogger to create instances,
// ResetDefault to install one as the package default.
type Logger struct {
	l     *zap.Logger
	level Level
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), level: l.level}
}

func (l *Logger) WithOptions(opts ...Option) *Logger {
	return &Logger{l: l.l.WithOptions(opts...), level: l.level}
}

func (l *Logger) Sugar() *zap.SugaredLogger { return l.l.Sugar() }
func (l *Logger) Sync() error               { return l.l.Sync() }

// New creates a Logger with JSON output (production format).
func New(writer io.Writer, level Level, opts ...Option) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.AddSync(writer),
		level)
	return &Logger{l: zap.New(core, opts...), level: level}
}

// DevLogger creates a Logger with console output for local development.
func DevLogger(writer io.Writer, level Level, opts ...Option) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.StampMilli)
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(writer),
		level)
	return &Logger{l: zap.New(core, opts...), level: level}
}

// ApplyFilter returns a Logger whose output is restricted by zapfilter rules,
// for example "debug:racing.* info:*". Invalid rules are reported as error.
func ApplyFilter(l *Logger, rules string) (*Logger, error) {
	filter, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	filtered := l.l.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapfilter.NewFilteringCore(core, filter)
	}))
	return &Logger{l: filtered, level: l.level}, nil
}

func ParseLevel(text string) (Level, error) {
	return zapcore.ParseLevel(text)
}

var std = DevLogger(os.Stderr, InfoLevel)

func Default() *Logger { return std }

// ResetDefault replaces the package-level default logger.
func ResetDefault(l *Logger) {
	std = l
}

func Debug(msg string, fields ...Field) { std.l.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { std.l.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { std.l.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { std.l.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { std.l.Fatal(msg, fields...) }
