// Package logger builds the process logger: a zerolog backend exposed to the
// rest of the code as a *slog.Logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the level and output format.
type Config struct {
	Level  string
	Format string // "json" or "console"
}

type ctxKey string

const (
	ctxRunIDKey  ctxKey = "run_id"
	ctxTileIDKey ctxKey = "tile_id"
)

// WithRunID tags every record logged with ctx with the pipeline run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxRunIDKey, runID)
}

// WithTileID tags every record logged with ctx with a coarse tile id.
func WithTileID(ctx context.Context, tileID string) context.Context {
	if tileID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxTileIDKey, tileID)
}

// ParseLevel maps a level name to its zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Build returns the zerolog logger writing to out (stdout when nil).
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// New returns a slog logger backed by zerolog.
func New(cfg Config, out io.Writer) *slog.Logger {
	zl := Build(cfg, out)
	return NewSlog(&zl)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	zl := zerolog.Nop()
	return NewSlog(&zl)
}

// FromContext returns a child logger with the context fields applied.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.Nop()
	} else {
		base = *parent
	}
	if ctx == nil {
		return &base
	}
	w := base.With()
	if s, ok := ctx.Value(ctxRunIDKey).(string); ok && s != "" {
		w = w.Str("run_id", s)
	}
	if s, ok := ctx.Value(ctxTileIDKey).(string); ok && s != "" {
		w = w.Str("tile_id", s)
	}
	l := w.Logger()
	return &l
}
