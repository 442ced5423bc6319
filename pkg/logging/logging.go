// Package logging wraps zerolog with the redaction and async-writer
// behavior the proxy needs: frame conversion on the hot path must never
// block on a slow log sink, and bearer tokens must never reach a log
// line unredacted.
package logging

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

var (
	reAuthHeader = regexp.MustCompile(`(?i)(authorization["']?\s*[:=]\s*["']?)(Bearer\s+\S+|\S+)`)
	reBearer     = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)
	reAPIKey     = regexp.MustCompile(`(?i)(api[_-]?key["']?\s*[:=]\s*["']?)([A-Za-z0-9._~+/=-]{8,})`)
)

// Redact scrubs bearer tokens, Authorization header values, and api-key
// style values out of a string before it is logged.
func Redact(s string) string {
	s = reAuthHeader.ReplaceAllString(s, "${1}[redacted]")
	s = reBearer.ReplaceAllString(s, "Bearer [redacted]")
	s = reAPIKey.ReplaceAllString(s, "${1}[redacted]")
	return s
}

// Options configures the logger.
type Options struct {
	// Level is the minimum level to emit. DefaultOptions sets info; the
	// zero value is zerolog's debug level.
	Level zerolog.Level

	// Writer is the underlying sink. Defaults to os.Stderr.
	Writer io.Writer

	// Async wraps Writer in a lock-free ring buffer (via diode) so a
	// slow sink can never stall frame conversion. DefaultOptions sets
	// true; the zero value writes synchronously.
	Async bool

	// AsyncBufferSize is the diode ring buffer size. Defaults to 4096.
	AsyncBufferSize int
}

// DefaultOptions returns Options with an async stderr writer at info
// level.
func DefaultOptions() Options {
	return Options{
		Level:           zerolog.InfoLevel,
		Writer:          os.Stderr,
		Async:           true,
		AsyncBufferSize: 4096,
	}
}

// New builds a zerolog.Logger per opts. When Async is set, writes go
// through a diode.Writer so a blocked or slow sink drops rather than
// backpressures the caller.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.Async {
		size := opts.AsyncBufferSize
		if size <= 0 {
			size = 4096
		}
		w = diode.NewWriter(w, size, 10*time.Millisecond, func(missed int) {})
	}

	return zerolog.New(w).Level(opts.Level).With().Timestamp().Logger()
}
