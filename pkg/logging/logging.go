// Package logging provides the structured logger shared by every FogLAMP
// component: the Sending Process, the Purge Task, the Configuration Manager
// and the HTTP South listener all take a *slog.Logger by constructor
// injection rather than reaching for a package-level global.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugLevel mirrors the Sending Process command-line --debug_level values.
type DebugLevel int

const (
	LevelWarn DebugLevel = iota
	LevelInfo
	LevelDebug
	LevelDebugSource
)

// Config controls where and how log records are written.
type Config struct {
	Name       string // component name, attached as the "component" attribute
	Debug      DebugLevel
	JSON       bool // JSON handler when true, text handler otherwise
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *slog.Logger for Config. The component name is attached as a
// permanent attribute so audit/log correlation doesn't require callers to
// repeat it on every call site.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level(cfg.Debug),
		AddSource: cfg.Debug >= LevelDebugSource,
	}

	writer := writer(cfg)

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)
	if cfg.Name != "" {
		logger = logger.With("component", cfg.Name)
	}
	return logger
}

func level(d DebugLevel) slog.Level {
	switch d {
	case LevelDebug, LevelDebugSource:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func writer(cfg Config) io.Writer {
	if cfg.Filename == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

type streamIDKey struct{}

// WithStreamID returns a context carrying the owning stream id, so nested
// calls (storage client, plugin, audit) can attach it to their own log lines.
func WithStreamID(ctx context.Context, streamID int) context.Context {
	return context.WithValue(ctx, streamIDKey{}, streamID)
}

// StreamIDFrom extracts the stream id set by WithStreamID, if any.
func StreamIDFrom(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(streamIDKey{}).(int)
	return v, ok
}
