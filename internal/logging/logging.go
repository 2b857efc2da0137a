// Package logging provides structured logging for rowkeep's own
// internals (statement execution, schema synchronization, transaction
// boundaries) using Go's slog package. Unlike a request-scoped HTTP
// server, a Conn has no per-call identifier worth threading through
// context.Context — every log call here is keyed by what rowkeep
// itself did (which SQL, which table, which savepoint), not by who
// asked for it.
package logging

import (
	"log/slog"
	"os"
	"time"
)

var defaultLogger *slog.Logger

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// Level is a logging verbosity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects the slog.Handler InitLogger builds.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// InitLogger replaces the package-level logger with one at level,
// writing to os.Stdout in format. Timestamps are rendered RFC3339
// rather than slog's default.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the package-level logger InitLogger last built.
func GetLogger() *slog.Logger {
	return defaultLogger
}

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

// StatementExecuted logs one ExecContext call's SQL text, the
// table it targeted (empty if not attributable to a single table),
// and how long the native step took. Gated by ConnOptions.Verbose —
// every call site passes this through only under verbose logging, so
// it runs at Debug rather than Info.
func StatementExecuted(sql, table string, duration time.Duration, args ...any) {
	allArgs := append([]any{
		"sql", sql,
		"table", table,
		"duration_ms", duration.Milliseconds(),
	}, args...)
	defaultLogger.Debug("statement_executed", allArgs...)
}

// SchemaSynchronized logs one Synchronize pass against table and how
// many ALTER/CREATE statements it issued to reconcile it. It runs at
// Debug so the default Info-level logger stays silent.
func SchemaSynchronized(table string, ddlCount int, args ...any) {
	allArgs := append([]any{
		"table", table,
		"ddl_count", ddlCount,
	}, args...)
	defaultLogger.Debug("schema_synchronized", allArgs...)
}

// TransactionBoundary logs a BEGIN/SAVEPOINT, COMMIT/RELEASE, or
// ROLLBACK[ TO] issued by WithTransaction, including the nesting
// depth and, for a rollback, the error that triggered it.
func TransactionBoundary(sql string, depth int, err error) {
	args := []any{"sql", sql, "depth", depth}
	if err != nil {
		args = append(args, "error", err.Error())
		defaultLogger.Warn("transaction_boundary", args...)
		return
	}
	defaultLogger.Debug("transaction_boundary", args...)
}

// StatementEvicted logs a prepared statement leaving the statement
// cache — whether pushed out under MaxSize pressure, removed
// explicitly, or finalized in bulk by Conn.Close.
func StatementEvicted(sql string) {
	defaultLogger.Debug("statement_evicted", "sql", sql)
}
