// Package logger is a small leveled logger. Every line carries a module tag
// and, for lines emitted inside a playback run, the run id.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a log line
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	SILENT
)

var levels = [...]struct {
	name  string
	color string
}{
	DEBUG:  {"DEBUG", "\033[36m"},
	INFO:   {"INFO", "\033[32m"},
	WARN:   {"WARN", "\033[33m"},
	ERROR:  {"ERROR", "\033[31m"},
	SILENT: {"SILENT", ""},
}

const reset = "\033[0m"

func (l Level) String() string {
	if l < DEBUG || l > SILENT {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel accepts the level names case-insensitively, plus "warning" and "none"
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	}
	return INFO, fmt.Errorf("invalid log level: %s", s)
}

// Logger writes leveled, module-tagged lines to one writer
type Logger struct {
	mu    sync.Mutex
	level Level
	color bool
	out   *log.Logger
}

// New creates a logger. A nil writer means stderr.
func New(level Level, w io.Writer, color bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		level: level,
		color: color,
		out:   log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// SetLevel changes the minimum level written
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Level returns the minimum level written
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Enabled reports whether lines at level are written
func (l *Logger) Enabled(level Level) bool {
	return level != SILENT && level >= l.Level()
}

func (l *Logger) write(level Level, module, run, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	var b strings.Builder
	if l.color {
		b.WriteString(levels[level].color)
	}
	b.WriteString("[" + levels[level].name + "]")
	if l.color {
		b.WriteString(reset)
	}
	if module != "" {
		b.WriteString(" [" + module + "]")
	}
	if run != "" {
		b.WriteString(" run=" + run)
	}
	b.WriteByte(' ')
	fmt.Fprintf(&b, format, args...)
	l.out.Print(b.String())
}

// Debug logs at DEBUG
func (l *Logger) Debug(module, format string, args ...any) { l.write(DEBUG, module, "", format, args...) }

// Info logs at INFO
func (l *Logger) Info(module, format string, args ...any) { l.write(INFO, module, "", format, args...) }

// Warn logs at WARN
func (l *Logger) Warn(module, format string, args ...any) { l.write(WARN, module, "", format, args...) }

// Error logs at ERROR
func (l *Logger) Error(module, format string, args ...any) { l.write(ERROR, module, "", format, args...) }

// Run is a logger bound to one module and one run id
type Run struct {
	l      *Logger
	module string
	id     string
}

// ForRun binds module and run id. A nil receiver falls back to the default logger.
func (l *Logger) ForRun(module, id string) Run {
	return Run{l: l, module: module, id: id}
}

func (r Run) logger() *Logger {
	if r.l != nil {
		return r.l
	}
	return Default()
}

func (r Run) Debug(format string, args ...any) { r.logger().write(DEBUG, r.module, r.id, format, args...) }
func (r Run) Info(format string, args ...any)  { r.logger().write(INFO, r.module, r.id, format, args...) }
func (r Run) Warn(format string, args ...any)  { r.logger().write(WARN, r.module, r.id, format, args...) }
func (r Run) Error(format string, args ...any) { r.logger().write(ERROR, r.module, r.id, format, args...) }

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(INFO, os.Stderr, false)
)

// Init replaces the process-wide logger. Call once at startup.
func Init(level Level, w io.Writer, color bool) {
	SetDefault(New(level, w, color))
}

// SetDefault installs l as the process-wide logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// ForRun binds module and run id on the default logger
func ForRun(module, id string) Run {
	return Run{module: module, id: id}
}

func Debug(module, format string, args ...any) { Default().Debug(module, format, args...) }
func Info(module, format string, args ...any)  { Default().Info(module, format, args...) }
func Warn(module, format string, args ...any)  { Default().Warn(module, format, args...) }
func Error(module, format string, args ...any) { Default().Error(module, format, args...) }
