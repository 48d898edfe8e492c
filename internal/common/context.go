package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID      contextKey = "run_id"
	ContextKeyDocumentID contextKey = "document_id"
)

// WithRunID tags the context with the id of one pipeline run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithDocumentID tags the context with the document being processed.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, ContextKeyDocumentID, documentID)
}

// DocumentIDFromContext extracts the document ID from context
func DocumentIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyDocumentID).(string); ok {
		return id
	}
	return ""
}

// LoggerFrom decorates logger with the run and document ids carried by ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RunIDFromContext(ctx); id != "" {
		logger = logger.With("run_id", id)
	}
	if id := DocumentIDFromContext(ctx); id != "" {
		logger = logger.With("document_id", id)
	}
	return logger
}

// ParseLogLevel maps a config string onto a slog level; unknown values are info.
func ParseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
