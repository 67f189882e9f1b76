package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger configures the global logger to write JSON lines to stdout and,
// when file is set, to a size-rotated log file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if file != "" {
		if dir := filepath.Dir(file); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		}
		out = zerolog.MultiLevelWriter(os.Stdout, rotator)
	}

	l := zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))

	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLogLevel changes the minimum level of the global logger. Unknown levels fall back to info.
func SetLogLevel(level string) {
	mu.Lock()
	logger = logger.Level(parseLevel(level))
	mu.Unlock()
}

// SetLoggerForTest swaps the global logger, typically for one writing into a buffer.
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs a message with alternating key/value pairs.
func Debug(msg string, kv ...any) {
	l := current()
	withFields(l.Debug(), kv).Msg(msg)
}

// Info logs a message with alternating key/value pairs.
func Info(msg string, kv ...any) {
	l := current()
	withFields(l.Info(), kv).Msg(msg)
}

// Warn logs a message with alternating key/value pairs.
func Warn(msg string, kv ...any) {
	l := current()
	withFields(l.Warn(), kv).Msg(msg)
}

// Error logs a message with alternating key/value pairs.
func Error(msg string, kv ...any) {
	l := current()
	withFields(l.Error(), kv).Msg(msg)
}

func withFields(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.Str(key, v.Error())
		default:
			ev = ev.Interface(key, v)
		}
	}
	// dangling key: log it as a flag
	if len(kv)%2 == 1 {
		if key, ok := kv[len(kv)-1].(string); ok {
			ev = ev.Bool(key, true)
		}
	}
	return ev
}
