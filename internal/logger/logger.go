package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger is a leveled wrapper around the standard logger.
type Logger struct {
	level   Level
	logger  *log.Logger
	enabled bool
}

var (
	mu           sync.RWMutex
	globalLogger = &Logger{level: Info, logger: log.New(os.Stdout, "", 0), enabled: true}
)

// Init replaces the process logger. With a file set, lines go to the file and,
// if console is true, to stdout as well.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		setGlobal(&Logger{enabled: false})
		return nil
	}

	var writers []io.Writer
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}
	if console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	setGlobal(New(io.MultiWriter(writers...), ParseLevel(levelStr)))
	return nil
}

// New builds a logger writing to w. Tests use it with SetDefault.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, logger: log.New(w, "", 0), enabled: true}
}

// SetDefault installs l as the process logger.
func SetDefault(l *Logger) {
	setGlobal(l)
}

func setGlobal(l *Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// ParseLevel maps a level name to a Level, defaulting to Info.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func logf(level Level, format string, args ...interface{}) {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil || !l.enabled || l.level > level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf("[%s] [%s] %s", ts, level, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) { logf(Debug, format, args...) }

// Infof logs an info message.
func Infof(format string, args ...interface{}) { logf(Info, format, args...) }

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) { logf(Warn, format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) { logf(Error, format, args...) }

// Throttle lets a per-packet code path log at most once per interval.
type Throttle struct {
	s rate.Sometimes
}

// NewThrottle returns a Throttle that fires on the first call and then at most once per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{s: rate.Sometimes{First: 1, Interval: interval}}
}

// Warnf logs a warning unless one was logged within the interval.
func (t *Throttle) Warnf(format string, args ...interface{}) {
	t.s.Do(func() { logf(Warn, format, args...) })
}
