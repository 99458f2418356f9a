// ABOUTME: In-process dispatcher that hands "content ready" events to listeners
// ABOUTME: Listeners register per kind and are called synchronously in registration order

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind names what a listener should do with an event.
type Kind string

const (
	KindSendText  Kind = "send_text"
	KindSendPhoto Kind = "send_photo"
)

// Photo is the attachment of a KindSendPhoto event. Either URL (a URL or
// file_id) or Data is set.
type Photo struct {
	URL      string
	Data     []byte
	FileName string
	Caption  string
}

// Event is produced once and never persisted. Source identifies the
// producer; listeners use it to select destinations.
type Event struct {
	Kind   Kind
	Source string
	Text   string
	Photo  *Photo
}

// Empty reports whether the event carries nothing to deliver.
func (e Event) Empty() bool {
	switch e.Kind {
	case KindSendText:
		return e.Text == ""
	case KindSendPhoto:
		return e.Photo == nil || (e.Photo.URL == "" && len(e.Photo.Data) == 0)
	default:
		return true
	}
}

// Listener handles one event. It must not block longer than the work it does.
type Listener func(ctx context.Context, ev Event)

type subscription struct {
	id string
	fn Listener
}

// Dispatcher maps event kinds to listeners.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[Kind][]subscription
	closed    bool
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil logger for default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		listeners: make(map[Kind][]subscription),
		logger:    logger.With("component", "dispatcher"),
	}
}

// Subscribe registers fn for kind and returns a subscription id.
func (d *Dispatcher) Subscribe(kind Kind, fn Listener) string {
	id := uuid.New().String()

	d.mu.Lock()
	d.listeners[kind] = append(d.listeners[kind], subscription{id: id, fn: fn})
	d.mu.Unlock()

	d.logger.Debug("listener added", "kind", kind, "sub_id", id)
	return id
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for kind, subs := range d.listeners {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			d.listeners[kind] = append(subs[:i:i], subs[i+1:]...)
			if len(d.listeners[kind]) == 0 {
				delete(d.listeners, kind)
			}
			d.logger.Debug("listener removed", "kind", kind, "sub_id", id)
			return
		}
	}
}

// Dispatch calls every listener of ev.Kind and returns how many ran.
// Listeners are copied under the read lock so they may subscribe or
// unsubscribe while running.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) int {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return 0
	}
	targets := make([]Listener, 0, len(d.listeners[ev.Kind]))
	for _, s := range d.listeners[ev.Kind] {
		targets = append(targets, s.fn)
	}
	d.mu.RUnlock()

	if len(targets) == 0 {
		d.logger.Debug("no listener for event", "kind", ev.Kind, "source", ev.Source)
		return 0
	}

	for _, fn := range targets {
		fn(ctx, ev)
	}
	return len(targets)
}

// Close drops all listeners. Later dispatches are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.listeners)
	d.closed = true
	d.logger.Debug("dispatcher closed")
}
