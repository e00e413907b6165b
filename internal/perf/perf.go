// Package perf provides the optional benchmark instrumentation of the
// processing core. A Tracer is passed explicitly to each stage; the zero
// value is disabled and records nothing.
package perf

import (
	"fmt"
	"log/slog"
	"time"
)

// Tracer emits one timing record per traced operation when enabled.
type Tracer struct {
	log *slog.Logger
}

// New returns an enabled tracer writing to l. A nil logger yields a
// disabled tracer.
func New(l *slog.Logger) Tracer {
	return Tracer{log: l}
}

// Enabled reports whether spans will be logged.
func (t Tracer) Enabled() bool { return t.log != nil }

// Span times one operation over a width x height image.
type Span struct {
	t      Tracer
	op     string
	pixels int64
	start  time.Time
}

// Start begins timing op. On a disabled tracer it does not read the clock.
func (t Tracer) Start(op string, width, height int) Span {
	if t.log == nil {
		return Span{}
	}
	return Span{t: t, op: op, pixels: int64(width) * int64(height), start: time.Now()}
}

// End logs the elapsed time and throughput of the span.
func (s Span) End() {
	if s.t.log == nil {
		return
	}
	d := time.Since(s.start)
	rate := 0.0
	if d > 0 {
		rate = float64(s.pixels) / d.Seconds()
	}
	s.t.log.Info("benchmark",
		slog.String("op", s.op),
		slog.String("elapsed", FormatDuration(d)),
		slog.Int64("pixels", s.pixels),
		slog.String("rate", fmt.Sprintf("%.2f Mpixel/s", rate/1e6)),
	)
}

// FormatDuration renders d with two decimals and an n, µ, m or no prefix,
// e.g. "1.25 ms".
func FormatDuration(d time.Duration) string {
	ns := d.Nanoseconds()
	if ns < 0 {
		ns = 0
	}
	divisor, prefix := int64(1), "n"
	switch {
	case ns >= 1e9:
		divisor, prefix = 1e9, ""
	case ns >= 1e6:
		divisor, prefix = 1e6, "m"
	case ns >= 1e3:
		divisor, prefix = 1e3, "µ"
	}
	whole := ns / divisor
	part := (ns % divisor) * 100 / divisor
	return fmt.Sprintf("%d.%02d %ss", whole, part, prefix)
}
