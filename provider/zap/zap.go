package zap

import (
	"context"
	"fmt"

	logpkg "github.com/hsharp/lib-dbprovider/provider/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment selects a logger profile.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

type profile struct {
	base         func() zap.Config
	defaultLevel logpkg.Level
}

var profiles = map[Environment]profile{
	EnvironmentProduction:  {base: zap.NewProductionConfig, defaultLevel: logpkg.LevelInfo},
	EnvironmentDevelopment: {base: zap.NewDevelopmentConfig, defaultLevel: logpkg.LevelDebug},
	EnvironmentLocal:       {base: zap.NewDevelopmentConfig, defaultLevel: logpkg.LevelDebug},
}

// zapLevels maps provider levels onto zap levels.
var zapLevels = map[logpkg.Level]zapcore.Level{
	logpkg.LevelError: zapcore.ErrorLevel,
	logpkg.LevelWarn:  zapcore.WarnLevel,
	logpkg.LevelInfo:  zapcore.InfoLevel,
	logpkg.LevelDebug: zapcore.DebugLevel,
}

// Config selects the environment profile and, optionally, a level name
// understood by log.ParseLevel. An empty Level uses the profile default.
type Config struct {
	Environment Environment
	Level       string
}

// Logger writes provider log entries as JSON through zap.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

var _ logpkg.Logger = (*Logger)(nil)

// New builds a JSON logger from cfg.
func New(cfg Config) (*Logger, error) {
	p, ok := profiles[cfg.Environment]
	if !ok {
		return nil, fmt.Errorf("invalid zap config: unknown environment %q", cfg.Environment)
	}

	level := p.defaultLevel

	if cfg.Level != "" {
		parsed, err := logpkg.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid zap config: %w", err)
		}

		level = parsed
	}

	zc := p.base()
	zc.Encoding = "json"
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.Level = zap.NewAtomicLevelAt(zapLevel(level))
	zc.DisableStacktrace = true

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{zl: zl, level: zc.Level}, nil
}

// NewWithCore wraps core, for tests and custom sinks.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{zl: zap.New(core)}
}

func zapLevel(level logpkg.Level) zapcore.Level {
	if zl, ok := zapLevels[level]; ok {
		return zl
	}

	return zapcore.InfoLevel
}

func (l *Logger) logger() *zap.Logger {
	if l == nil || l.zl == nil {
		return zap.NewNop()
	}

	return l.zl
}

// Log writes one entry. A valid span in ctx adds trace_id and span_id.
func (l *Logger) Log(ctx context.Context, level logpkg.Level, msg string, fields ...logpkg.Field) {
	entry := l.logger().Check(zapLevel(level), msg)
	if entry == nil {
		return
	}

	zfs := toZapFields(fields)

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zfs = append(zfs,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()))
		}
	}

	entry.Write(zfs...)
}

//nolint:ireturn
func (l *Logger) With(fields ...logpkg.Field) logpkg.Logger {
	return l.derive(l.logger().With(toZapFields(fields)...))
}

// WithGroup nests the fields of later entries under name.
//
//nolint:ireturn
func (l *Logger) WithGroup(name string) logpkg.Logger {
	return l.derive(l.logger().With(zap.Namespace(name)))
}

func (l *Logger) derive(zl *zap.Logger) *Logger {
	child := &Logger{zl: zl}
	if l != nil {
		child.level = l.level
	}

	return child
}

func (l *Logger) Enabled(level logpkg.Level) bool {
	return l.logger().Core().Enabled(zapLevel(level))
}

// Sync flushes buffered entries unless ctx is already done.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.logger().Sync()
}

// Level returns the adjustable level of a logger built by New.
func (l *Logger) Level() zap.AtomicLevel {
	if l == nil {
		return zap.AtomicLevel{}
	}

	return l.level
}

func toZapFields(fields []logpkg.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))

	for _, f := range fields {
		if err, ok := f.Value.(error); ok && f.Key == "error" {
			out = append(out, zap.Error(err))
			continue
		}

		out = append(out, zap.Any(f.Key, f.Value))
	}

	return out
}
