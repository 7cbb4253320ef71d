package event

import (
	"log/slog"
	"sync"
	"time"
)

// Stream identifies the origin of a relayed output line.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamError  = "error"
)

// Event type names as delivered to consumers (UI, SSE, history).
const (
	TypeServerOutput        = "server-output"
	TypeServerStartupFailed = "server-startup-failed"
)

// Output is a single timestamped line captured from the supervised process.
// It is transient: emitted once and never mutated afterwards.
type Output struct {
	Timestamp string `json:"timestamp"` // wall clock, HH:MM:SS
	Stream    string `json:"stream"`    // stdout | stderr | error
	Content   string `json:"content"`
}

// Event pairs an Output with its event type.
type Event struct {
	Type   string `json:"type"`
	Output Output `json:"output"`
}

// NewOutput stamps content with the current wall-clock time.
func NewOutput(stream, content string) Output {
	return Output{
		Timestamp: time.Now().Format("15:04:05"),
		Stream:    stream,
		Content:   content,
	}
}

// Sink receives events emitted by the supervisor and its output relays.
// Delivery is best-effort: implementations must not block the caller
// indefinitely and must tolerate concurrent, unordered Emit calls.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// SlogSink mirrors events into structured logs. Startup failures are
// logged at error level, regular output at debug.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(e Event) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	if e.Type == TypeServerStartupFailed || e.Output.Stream == StreamError {
		l.Error("server output", "type", e.Type, "stream", e.Output.Stream, "content", e.Output.Content)
		return
	}
	l.Debug("server output", "type", e.Type, "stream", e.Output.Stream, "content", e.Output.Content)
}

// Bus distributes events to dynamically attached subscribers. Each
// subscriber owns a bounded channel; when a subscriber falls behind its
// oldest pending event is dropped rather than blocking the emitter.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
	size int
}

// NewBus creates a Bus whose subscriber channels buffer size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{subs: make(map[int]chan Event), size: size}
}

// Subscribe attaches a new subscriber. The returned cancel function
// detaches it and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, b.size)
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers e to every subscriber, dropping the oldest pending
// event per subscriber when its buffer is full.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- e:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
