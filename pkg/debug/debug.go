// Package debug provides conditional debug logging for bw.
//
// Debug logging is enabled by setting the BW_DEBUG environment variable:
//
//	BW_DEBUG=1 bw split 3 2 7.5
//
// When enabled, debug messages are written to stderr with timestamps and
// the [BW_DEBUG] prefix. When disabled (default), every function here is a
// no-op.
//
// Usage:
//
//	func (m *Manager) Undo(ctx context.Context, id int64) (*Result, error) {
//	    defer debug.LogEnterExit(fmt.Sprintf("session.Undo(%d)", id))()
//	    // ...
//	    debug.Log("session %d: restored version %d", id, v)
//	}
package debug

import (
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

const prefix = "[BW_DEBUG] "

var (
	enabled atomic.Bool
	logger  atomic.Pointer[log.Logger]
)

func init() {
	logger.Store(log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds))
	enabled.Store(os.Getenv("BW_DEBUG") != "")
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of debug logging, e.g. from a
// --debug flag.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// SetOutput redirects debug output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	logger.Store(log.New(w, prefix, log.Ltime|log.Lmicroseconds))
}

// Log writes a printf-style debug message if debug logging is enabled.
func Log(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	logger.Load().Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	logger.Load().Printf("%s took %v", name, d)
}

// LogEnterExit logs entry now and exit with timing when the returned
// function runs:
//
//	defer debug.LogEnterExit("session.Merge(3)")()
func LogEnterExit(name string) func() {
	if !enabled.Load() {
		return func() {}
	}
	l := logger.Load()
	l.Printf("-> %s", name)
	start := time.Now()
	return func() {
		l.Printf("<- %s (%v)", name, time.Since(start))
	}
}

// Section logs a header separating phases of a longer command.
func Section(name string) {
	if !enabled.Load() {
		return
	}
	logger.Load().Printf("=== %s ===", name)
}
