package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	return newLogger(os.Stdout, component)
}

func newLogger(w io.Writer, component string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

// SetLevel changes the level shared by every logger from NewLogger. Unknown names fall back to info.
func SetLevel(name string) slog.Level {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	level.Set(l)
	return l
}

func WithJob(logger *slog.Logger, jobID string) *slog.Logger {
	if logger == nil || jobID == "" {
		return logger
	}
	return logger.With("job_id", jobID)
}

func WithRoot(logger *slog.Logger, rootID string) *slog.Logger {
	if logger == nil || rootID == "" {
		return logger
	}
	return logger.With("root_id", rootID)
}

func WithRequest(logger *slog.Logger, requestID string) *slog.Logger {
	if logger == nil || requestID == "" {
		return logger
	}
	return logger.With("request_id", requestID)
}
