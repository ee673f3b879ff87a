package logging

import (
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Logger writes one `level=... msg="..." key="value"` line per entry, tagged
// with Tag, and mirrors entries into an optional LogBuffer.
type Logger struct {
	buffer   *LogBuffer
	output   *log.Logger
	minRank  int
	baseline map[string]string
}

// NewLogger writes to stderr.
func NewLogger(minLevel Level) *Logger {
	return NewLoggerWithOutput(nil, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		buffer:  buffer,
		output:  log.New(output, Tag+" ", 0),
		minRank: rankOf(minLevel),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLoggerWithOutput(nil, LevelError, io.Discard)
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.baseline = mergeFields(l.baseline, fields)
	return &child
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.write(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.write(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.write(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.write(LevelError, message, fields)
}

func (l *Logger) write(level Level, message string, fields map[string]string) {
	if l == nil || rankOf(level) < l.minRank {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.baseline, fields),
	}
	l.buffer.Add(entry)
	l.output.Print(entry.line())
}

// ParseLevel accepts the level names case-insensitively, plus "warn".
func ParseLevel(value string) (Level, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "warn" {
		return LevelWarning, true
	}
	level := Level(normalized)
	if _, ok := levelRanks[level]; !ok {
		return "", false
	}
	return level, true
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

func (entry LogEntry) line() string {
	var builder strings.Builder
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteString(" " + key + "=")
		builder.WriteString(strconv.Quote(entry.Context[key]))
	}
	return builder.String()
}
