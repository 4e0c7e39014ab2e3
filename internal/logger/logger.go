package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

var levelColors = map[Level]string{
	DebugLevel: "\033[35m",
	InfoLevel:  "\033[32m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
	FatalLevel: "\033[91m",
}

const colorReset = "\033[0m"

// Format selects the wire format of log output.
type Format int

const (
	ConsoleFormat Format = iota
	JSONFormat
)

// Field is a single structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	UseColors  bool
	TimeFormat string
}

// Logger is a leveled, structured logger. All subsystems receive a *Logger
// by injection; there is no package-global instance.
type Logger struct {
	mu         sync.Mutex
	level      Level
	format     Format
	writer     io.Writer
	name       string
	fields     []Field
	useColors  bool
	timeFormat string
}

// New creates a logger from config.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05.000"
	}
	return &Logger{
		level:      cfg.Level,
		format:     cfg.Format,
		writer:     cfg.Output,
		useColors:  cfg.UseColors,
		timeFormat: cfg.TimeFormat,
	}
}

// NewConsole creates a colored console logger at the given level.
func NewConsole(level Level) *Logger {
	return New(Config{Level: level, Format: ConsoleFormat, UseColors: true})
}

// Discard returns a logger that writes nothing. Handy for tests.
func Discard() *Logger {
	return New(Config{Level: FatalLevel, Output: io.Discard})
}

// With returns a child logger carrying extra fields.
func (l *Logger) With(fields ...Field) *Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{
		level:      l.level,
		format:     l.format,
		writer:     l.writer,
		name:       l.name,
		fields:     merged,
		useColors:  l.useColors,
		timeFormat: l.timeFormat,
	}
}

// WithName returns a child logger with a component name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:      l.level,
		format:     l.format,
		writer:     l.writer,
		name:       name,
		fields:     l.fields,
		useColors:  l.useColors,
		timeFormat: l.timeFormat,
	}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if !l.enabled(level) {
		return
	}

	all := append(append([]Field{}, l.fields...), fields...)

	var line string
	switch l.format {
	case JSONFormat:
		line = l.formatJSON(level, msg, all)
	default:
		line = l.formatConsole(level, msg, all)
	}

	l.mu.Lock()
	fmt.Fprintln(l.writer, line)
	l.mu.Unlock()

	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *Logger) formatConsole(level Level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString(" ")

	name := levelNames[level]
	if l.useColors {
		b.WriteString(levelColors[level])
		fmt.Fprintf(&b, "%-5s", name)
		b.WriteString(colorReset)
	} else {
		fmt.Fprintf(&b, "%-5s", name)
	}
	b.WriteString(" ")

	if l.name != "" {
		fmt.Fprintf(&b, "[%s] ", l.name)
	}
	b.WriteString(msg)

	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
		}
		b.WriteString("}")
	}
	return b.String()
}

func (l *Logger) formatJSON(level Level, msg string, fields []Field) string {
	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"level":     levelNames[level],
		"message":   msg,
	}
	if l.name != "" {
		entry["logger"] = l.name
	}
	for _, f := range fields {
		entry[f.Key] = f.Value
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"message":%q}`, levelNames[level], msg)
	}
	return string(data)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.enabled(DebugLevel) {
		l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
	}
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.enabled(InfoLevel) {
		l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
	}
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.enabled(WarnLevel) {
		l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
	}
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.enabled(ErrorLevel) {
		l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
	}
}

// Field constructors.

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// ParseLevel parses a level name as found in config files.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", s)
	}
}
