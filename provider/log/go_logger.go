package log

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
)

// logControlCharReplacer escapes control characters that can be used for log injection (CWE-117).
var logControlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitizeLogString(s string) string {
	return logControlCharReplacer.Replace(s)
}

// GoLogger is the Go built-in (log) implementation of Logger.
//
// Messages and string field values are sanitized to prevent log injection.
type GoLogger struct {
	Level  Level
	out    *stdlog.Logger
	fields []Field
	group  string
}

// NewGoLogger creates a GoLogger writing to w at the given level.
// A nil writer falls back to os.Stderr.
func NewGoLogger(w io.Writer, level Level) *GoLogger {
	if w == nil {
		w = os.Stderr
	}

	return &GoLogger{
		Level: level,
		out:   stdlog.New(w, "", stdlog.LstdFlags),
	}
}

// Log implements Logger.
func (l *GoLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}

	l.printer().Print(l.hydrate(level, msg, fields))
}

// With returns a child logger carrying the extra fields.
//
//nolint:ireturn
func (l *GoLogger) With(fields ...Field) Logger {
	if l == nil {
		return &GoLogger{}
	}

	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)

	return &GoLogger{Level: l.Level, out: l.out, fields: merged, group: l.group}
}

// WithGroup returns a child logger that prefixes subsequent field keys with name.
//
//nolint:ireturn
func (l *GoLogger) WithGroup(name string) Logger {
	if l == nil {
		return &GoLogger{}
	}

	group := name
	if l.group != "" && name != "" {
		group = l.group + "." + name
	} else if name == "" {
		group = l.group
	}

	return &GoLogger{Level: l.Level, out: l.out, fields: l.fields, group: group}
}

// Enabled reports whether level is within the logger verbosity.
func (l *GoLogger) Enabled(level Level) bool {
	if l == nil {
		return false
	}

	return l.Level >= level
}

// Sync is a no-op; the standard logger writes synchronously.
func (l *GoLogger) Sync(_ context.Context) error { return nil }

func (l *GoLogger) printer() *stdlog.Logger {
	if l.out == nil {
		return stdlog.Default()
	}

	return l.out
}

func (l *GoLogger) hydrate(level Level, msg string, fields []Field) string {
	parts := make([]string, 0, 2+len(l.fields)+len(fields))
	parts = append(parts, fmt.Sprintf("[%s]", level.String()), sanitizeLogString(msg))

	for _, f := range l.fields {
		parts = append(parts, l.renderField(f))
	}

	for _, f := range fields {
		parts = append(parts, l.renderField(f))
	}

	return strings.Join(parts, " ")
}

func (l *GoLogger) renderField(f Field) string {
	key := f.Key
	if l.group != "" {
		key = l.group + "." + key
	}

	return fmt.Sprintf("%s=%s", sanitizeLogString(key), sanitizeLogString(fmt.Sprint(f.Value)))
}
