// Package logging builds the charmbracelet loggers used by the CLI and the
// render runner, and carries them through context.Context.
package logging

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New creates a logger with "HH:MM:SS.ms" timestamps that filters messages
// below level.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Progress logs completion of an operation together with its elapsed time.
// It is meant for a single goroutine.
type Progress struct {
	logger *log.Logger
	start  time.Time
}

// NewProgress starts a progress timer
func NewProgress(l *log.Logger) *Progress {
	return &Progress{logger: l, start: time.Now()}
}

// Done logs msg with the elapsed time rounded to the millisecond, e.g.
// "Rendered 64 tiles (1.234s)".
func (p *Progress) Done(msg string, keyvals ...any) {
	p.logger.Info(msg+" ("+time.Since(p.start).Round(time.Millisecond).String()+")", keyvals...)
}

type ctxKey int

const loggerKey ctxKey = 0

// WithLogger returns a copy of ctx carrying l
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, or log.Default()
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
