// Package logging provides a leveled, structured logger that is safe to
// call from any component before the daemon has loaded its configuration.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zerolog.Logger behind an atomic pointer so Init can be
// called concurrently with logging calls without tearing.
type Logger struct {
	ptr atomic.Pointer[zerolog.Logger]
}

var global = newNop()

func newNop() *Logger {
	l := &Logger{}
	nop := zerolog.Nop()
	l.ptr.Store(&nop)
	return l
}

// L returns the process-wide logger. Before Init is ever called it is a
// silent no-op — every call site in this codebase may log unconditionally,
// including during config load, without risking a crash.
func L() *Logger {
	return global
}

// Init (re)configures the process-wide logger at the given level, writing
// to stderr and, if logDir is non-empty, to a rotating file within it.
// Supervisor calls this twice: once with "info" before anything else is
// constructed, and again once configuration has been loaded.
func Init(level string, logDir string) {
	global.configure(level, logDir)
}

func (l *Logger) configure(level string, logDir string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !isTerminal(os.Stderr)})
	if logDir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "adapter.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	zl := zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	l.ptr.Store(&zl)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func (l *Logger) current() *zerolog.Logger {
	if l == nil {
		return global.current()
	}
	if zl := l.ptr.Load(); zl != nil {
		return zl
	}
	nop := zerolog.Nop()
	return &nop
}

// Debug logs at debug level with an optional flat key/value tail.
func (l *Logger) Debug(msg string, kv ...any) { l.log(zerolog.DebugLevel, msg, kv) }

// Info logs at info level with an optional flat key/value tail.
func (l *Logger) Info(msg string, kv ...any) { l.log(zerolog.InfoLevel, msg, kv) }

// Warn logs at warn level with an optional flat key/value tail.
func (l *Logger) Warn(msg string, kv ...any) { l.log(zerolog.WarnLevel, msg, kv) }

// Error logs at error level with an optional flat key/value tail.
func (l *Logger) Error(msg string, kv ...any) { l.log(zerolog.ErrorLevel, msg, kv) }

func (l *Logger) log(level zerolog.Level, msg string, kv []any) {
	// Logging failures are swallowed everywhere in this package: a log
	// call must never be the reason the daemon aborts.
	defer func() { _ = recover() }()

	ev := l.current().WithLevel(level).Caller(2)
	if ev == nil {
		return
	}
	fields(ev, kv)
	ev.Msg(msg)
}

// fields attaches a flat k1, v1, k2, v2, ... tail to ev. An odd-length tail
// is wrapped as a single "data" field rather than dropping the trailing
// value, per the logger's contract.
func fields(ev *zerolog.Event, kv []any) {
	if len(kv)%2 != 0 {
		ev.Interface("data", kv[len(kv)-1])
		kv = kv[:len(kv)-1]
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev.Interface(key, kv[i+1])
	}
}
