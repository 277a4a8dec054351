package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init installs the process logger. format is "json" or "text".
func Init(level, format, service string) *slog.Logger {
	return InitWithWriter(os.Stdout, level, format, service)
}

func InitWithWriter(w io.Writer, level, format, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", service)}))

	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
	return logger
}

func GetLogger() *slog.Logger {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// NewModuleLogger tags every record with the owning module and component.
func NewModuleLogger(module, component string) *slog.Logger {
	return GetLogger().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
