package dashboard

import (
	"io"
	"log/slog"
	"sync"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/gibs"
)

// EventKind names a dashboard state change.
type EventKind string

const (
	EventLayerChanged     EventKind = "layer_changed"
	EventDateChanged      EventKind = "date_changed"
	EventLocationDetected EventKind = "location_detected"
)

// Event describes a state change. Only the field matching Kind is set.
type Event struct {
	Kind     EventKind
	Layer    gibs.Layer
	Date     string
	Location *environment.Location
}

// Bus is a fan-out pub/sub for dashboard events.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates a new event bus. A nil logger discards drop warnings.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{logger: logger, subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking). An event that
// does not fit a subscriber's buffer is dropped for that subscriber and
// logged. A nil bus drops it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("dashboard event dropped, subscriber buffer full", "kind", e.Kind, "buffer", cap(ch))
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
