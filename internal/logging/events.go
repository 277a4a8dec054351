package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// EventLog records one line per admin or user action.
type EventLog struct {
	logger *slog.Logger
	closer io.Closer
}

// OpenEventLog appends to path. An empty path discards events.
func OpenEventLog(path string) (*EventLog, error) {
	if path == "" {
		return NewEventLog(io.Discard), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log dir failed: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log failed: %w", err)
	}
	ev := NewEventLog(f)
	ev.closer = f
	return ev, nil
}

func NewEventLog(w io.Writer) *EventLog {
	return &EventLog{logger: slog.New(slog.NewTextHandler(w, nil))}
}

func (e *EventLog) Record(user, event, details string) {
	if e == nil {
		return
	}
	e.logger.Info("event", "user", user, "event", event, "details", details)
}

func (e *EventLog) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer.Close()
}
