package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, false)
)

func newLogger(w io.Writer, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Setup replaces the global logger. jsonOutput switches from the console
// writer to one JSON object per line.
func Setup(w io.Writer, level Level, jsonOutput bool) {
	if w == nil {
		w = os.Stderr
	}
	l := newLogger(w, jsonOutput).Level(toZerolog(level))
	mu.Lock()
	logger = l
	mu.Unlock()
}

func SetLevel(l Level) {
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps config strings ("debug", "info", "error") to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LevelDebug):
		return LevelDebug
	case string(LevelError):
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger returns the underlying zerolog logger for components that take one.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Info(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	l := Logger()
	withKVs(l.Error().Err(err), kv).Msg(msg)
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// withKVs attaches key/value pairs as fields. Non-string keys are skipped and
// a trailing key without a value is ignored.
func withKVs(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
