// Package logging adds ledger vocabulary to slog loggers.
package logging

import (
	"log/slog"
	"strconv"
)

// Logger is a slog.Logger whose With helpers name ledger concepts.
// All slog methods are available directly.
type Logger struct {
	*slog.Logger
}

// New wraps base. A nil base means slog.Default().
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{Logger: base}
}

func (l *Logger) with(attr slog.Attr) *Logger {
	return &Logger{Logger: l.Logger.With(attr)}
}

// WithComponent tags records with the emitting subsystem.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with(slog.String("component", name))
}

// WithLedger tags records with a ledger id.
func (l *Logger) WithLedger(id string) *Logger {
	return l.with(slog.String("ledger", id))
}

// WithPrincipal tags records with a principal under the given role key,
// for example "caller" or "receiver".
func (l *Logger) WithPrincipal(role, principal string) *Logger {
	return l.with(slog.String(role, principal))
}

// WithProposal tags records with a swap proposal id.
func (l *Logger) WithProposal(id uint64) *Logger {
	return l.with(slog.String("proposal", strconv.FormatUint(id, 10)))
}

// WithError tags records with err's message.
func (l *Logger) WithError(err error) *Logger {
	return l.with(slog.String("error", err.Error()))
}

// Slog returns the underlying logger.
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}

// FormatHash shortens a hex digest to its first 16 characters for display.
func FormatHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "..."
}
