package pitgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pitgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContextID adds a context-ID field to the logger.
func (l *Logger) WithContextID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("context_id", id),
	}
}

// WithNode adds a node field to the logger.
func (l *Logger) WithNode(node string) *Logger {
	return &Logger{
		Logger: l.Logger.With("node", node),
	}
}

// LogOpen logs an open operation.
func (l *Logger) LogOpen(ctx context.Context, indices []string, shards int, keepAlive time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open reader context failed",
			"indices", indices,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "opened reader context",
			"indices", indices,
			"shards", shards,
			"keep_alive", keepAlive,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, totalShards, failedShards int, hits int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"shards", totalShards,
			"error", err,
		)
	} else if failedShards > 0 {
		l.WarnContext(ctx, "search completed with shard failures",
			"shards", totalShards,
			"failed", failedShards,
			"hits", hits,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"shards", totalShards,
			"hits", hits,
		)
	}
}

// LogClose logs a close operation.
func (l *Logger) LogClose(ctx context.Context, freed bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close reader context failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "closed reader context",
			"freed", freed,
		)
	}
}
