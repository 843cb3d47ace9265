// Package logging wires the node's narrow corelog.Logger facade to a
// concrete structured-logging backend, keeping the core package itself
// free of any hard dependency on a particular logging library (spec.md
// §2.1's ambient logging stack).
package logging

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/mtcore/mtcore/internal/corelog"
)

// SlogLogger adapts a logiface.Logger backed by logiface-slog (and so,
// transitively, any slog.Handler) to corelog.Logger.
type SlogLogger struct {
	l *logiface.Logger[*islog.Event]
}

var _ corelog.Logger = (*SlogLogger)(nil)

// NewSlogLogger builds a corelog.Logger that writes through handler.
// Passing slog.NewJSONHandler(os.Stdout, nil) gives structured JSON
// logs on stdout; passing slog.NewTextHandler gives the human-readable
// form used in examples and local runs.
func NewSlogLogger(handler slog.Handler) *SlogLogger {
	return &SlogLogger{l: islog.L.New(islog.L.WithSlogHandler(handler))}
}

func (s *SlogLogger) Debug(msg string, kv ...any) { s.log(s.l.Debug(), msg, kv) }
func (s *SlogLogger) Info(msg string, kv ...any)  { s.log(s.l.Info(), msg, kv) }
func (s *SlogLogger) Warn(msg string, kv ...any)  { s.log(s.l.Warning(), msg, kv) }
func (s *SlogLogger) Error(msg string, kv ...any) { s.log(s.l.Err(), msg, kv) }

// log attaches kv as alternating key/value pairs, dropping an odd
// trailing key (and any pair whose key is not a string) rather than
// panicking — a logging call should never be able to crash the caller.
func (s *SlogLogger) log(b *logiface.Builder[*islog.Event], msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b = b.Any(key, kv[i+1])
	}
	b.Log(msg)
}
