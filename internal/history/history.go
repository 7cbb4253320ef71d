// Package history persists relayed server output and lifecycle events
// so the UI can show recent activity across supervisor restarts.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/servman/servman/internal/event"
)

// EventType classifies lifecycle records.
type EventType string

const (
	EventStart       EventType = "start"
	EventStop        EventType = "stop"
	EventRestart     EventType = "restart"
	EventBindFailure EventType = "bind_failure"
)

// OutputRecord is one persisted output line.
type OutputRecord struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Stream  string    `json:"stream"`
	Content string    `json:"content"`
}

// LifecycleRecord is one persisted lifecycle event.
type LifecycleRecord struct {
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`
	PID    int       `json:"pid"`
	Port   int       `json:"port"`
	Detail string    `json:"detail,omitempty"`
}

// Store is a persistence backend for output lines and lifecycle events.
// Implementations must be safe for concurrent use: the two relay
// goroutines and the command path write without coordination.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordOutput(ctx context.Context, r OutputRecord) error
	RecordLifecycle(ctx context.Context, r LifecycleRecord) error
	RecentOutput(ctx context.Context, limit int) ([]OutputRecord, error)
	Close() error
}

// Sink exports lifecycle events to an external analytics system.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, r LifecycleRecord) error
}

// Recorder adapts a Store to the event.Sink interface so relayed output
// flows into history without the supervisor knowing about storage.
// Failures are logged and dropped: history is best-effort.
type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Emit(e event.Event) {
	if r.store == nil {
		return
	}
	rec := OutputRecord{At: time.Now(), Stream: e.Output.Stream, Content: e.Output.Content}
	if err := r.store.RecordOutput(context.Background(), rec); err != nil {
		r.log.Debug("history write failed", "error", err)
	}
	if e.Type == event.TypeServerStartupFailed {
		lr := LifecycleRecord{Type: EventBindFailure, At: time.Now(), Detail: e.Output.Content}
		if err := r.store.RecordLifecycle(context.Background(), lr); err != nil {
			r.log.Debug("history write failed", "error", err)
		}
	}
}
