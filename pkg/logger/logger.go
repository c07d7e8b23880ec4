package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	AdminIDKey   contextKey = "admin_id"
	ServiceKey   contextKey = "service"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(New(os.Stdout, "development", os.Getenv("LOG_LEVEL")))
}

// New builds a logger: JSON in production, human readable text otherwise.
func New(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init replaces the process-wide logger once the environment is known.
func Init(env string) {
	SetDefault(New(os.Stdout, env, os.Getenv("LOG_LEVEL")))
}

func SetDefault(l *slog.Logger) {
	defaultLogger.Store(l)
}

func Default() *slog.Logger {
	return defaultLogger.Load()
}

func WithContext(ctx context.Context) *slog.Logger {
	logger := Default()

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		logger = logger.With("request_id", requestID)
	}

	if adminID := ctx.Value(AdminIDKey); adminID != nil {
		logger = logger.With("admin_id", adminID)
	}

	if service := ctx.Value(ServiceKey); service != nil {
		logger = logger.With("service", service)
	}

	return logger
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}
