// Package logger builds the JSON slog loggers used across the engine and
// carries request-scoped loggers through context.
package logger
