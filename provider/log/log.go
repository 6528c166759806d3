package log

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is implemented by every logging backend the provider can write to.
// Implementations must be safe for concurrent use.
type Logger interface {
	Log(ctx context.Context, level Level, msg string, fields ...Field)
	With(fields ...Field) Logger
	WithGroup(name string) Logger
	Enabled(level Level) bool
	Sync(ctx context.Context) error
}

// Level is a log severity. Smaller values are more severe, and a logger set
// to a level also emits every more severe level.
type Level uint8

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{
	LevelError: "error",
	LevelWarn:  "warn",
	LevelInfo:  "info",
	LevelDebug: "debug",
}

func (level Level) String() string {
	if int(level) < len(levelNames) {
		return levelNames[level]
	}

	return "unknown"
}

// ParseLevel maps a level name, case-insensitively, to its Level.
// "warning" is accepted for LevelWarn.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return LevelWarn, nil
	}

	for level, known := range levelNames {
		if name == known {
			return Level(level), nil
		}
	}

	return LevelError, fmt.Errorf("unknown log level %q", name)
}

// Field is one key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// String builds a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Duration builds a duration field.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err attaches err under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// NewNop returns a Logger that drops everything.
//
//nolint:ireturn
func NewNop() Logger { return nop{} }

type nop struct{}

func (nop) Log(context.Context, Level, string, ...Field) {}

//nolint:ireturn
func (n nop) With(...Field) Logger { return n }

//nolint:ireturn
func (n nop) WithGroup(string) Logger { return n }

func (nop) Enabled(Level) bool { return false }

func (nop) Sync(context.Context) error { return nil }
