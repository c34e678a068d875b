package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is a zerolog.Logger carrying the logging configuration it was built
// from. Child loggers share the configuration.
type Logger struct {
	zlog zerolog.Logger
	cfg  LoggingConfig
}

type loggerContextKey struct{}

// NewLogger opens the configured output and returns a logger writing to it.
// Output is "stdout", "stderr" (the default) or a file path opened for append.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	w, err := openOutput(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", cfg.Output, err)
	}
	return NewLoggerWithWriter(cfg, w), nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// NewLoggerWithWriter builds a logger on w, ignoring cfg.Output.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *Logger {
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zctx := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	return &Logger{zlog: zctx.Logger(), cfg: cfg}
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	default:
		return time.RFC3339
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying logger for packages that take a
// zerolog.Logger directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zlog: fn(l.zlog.With()).Logger(), cfg: l.cfg}
}

// WithOperation tags every entry with an operation name and, when span is
// recording, its trace and span ids.
func (l *Logger) WithOperation(operation string, span trace.Span) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context {
		c = c.Str("operation", operation)
		if span != nil && span.SpanContext().IsValid() {
			sc := span.SpanContext()
			c = c.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		return c
	})
}

// Debug starts a debug entry.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Info starts an info entry.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Warn starts a warning entry.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error starts an error entry.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// WithContext stores the logger in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in ctx, or Nop.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}

// ParseLevel converts a level name to a zerolog.Level. Empty and unknown
// names map to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
