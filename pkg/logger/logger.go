// Package logger provides structured event logging for the backend.
// Events are single snake_case names with a flat field map, emitted as
// JSON via log/slog so they can be shipped to any log aggregator.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	log  *slog.Logger
	once sync.Once
)

// Init configures the process-wide logger. Safe to call more than once;
// only the first call takes effect.
func Init() {
	once.Do(func() {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: levelFromEnv(),
		})
		log = slog.New(handler)
		slog.SetDefault(log)
	})
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logger() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func attrs(fields map[string]interface{}) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func Info(event string, fields map[string]interface{}) {
	logger().Info(event, attrs(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	logger().Warn(event, attrs(fields)...)
}

func Error(event string, fields map[string]interface{}) {
	logger().Error(event, attrs(fields)...)
}

// InfoWithUser logs an informational event attributed to a user.
func InfoWithUser(userID, event string, fields map[string]interface{}) {
	args := append(attrs(fields), "user_id", userID)
	logger().Info(event, args...)
}
