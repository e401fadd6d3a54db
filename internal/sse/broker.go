// Package sse streams export and vault notifications as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	ExportStarted = "export.started"
	ExportSaved   = "export.saved"
	ExportFailed  = "export.failed"
	VaultChanged  = "vault.changed"
)

const (
	clientBuffer     = 64
	defaultKeepAlive = 15 * time.Second
)

// Event is one notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams receive a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// hub is owned by the broker loop and never touched elsewhere.
type hub struct {
	clients    map[chan []byte]struct{}
	seq        uint64
	lastChange time.Time
	// lastExport is the framed outcome of the latest export, replayed to
	// new subscribers.
	lastExport []byte
}

// Broker fans events out to SSE clients. All state lives in one loop
// goroutine; callers submit operations to it.
type Broker struct {
	changeMin time.Duration
	keepAlive time.Duration

	ops     chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one vault.changed event per
// changeThrottle.
func NewBroker(changeThrottle time.Duration, opts ...Option) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}
	b := &Broker{
		changeMin: changeThrottle,
		keepAlive: defaultKeepAlive,
		ops:       make(chan func(*hub), 256),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)
	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// do runs op on the loop. It reports false once the broker is closed.
func (b *Broker) do(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// call runs op on the loop and waits for it to finish.
func (b *Broker) call(op func(*hub)) bool {
	done := make(chan struct{})
	if !b.do(func(h *hub) { op(h); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-b.stopped:
		return false
	}
}

func (h *hub) frame(e Event) []byte {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil
	}
	h.seq++
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, e.Type, payload)
}

func (h *hub) broadcast(e Event) {
	raw := h.frame(e)
	if raw == nil {
		return
	}
	if e.Type == ExportSaved || e.Type == ExportFailed {
		h.lastExport = raw
	}
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The latest export outcome, if any, is
// queued on the returned channel right away.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	ok := b.call(func(h *hub) {
		h.clients[ch] = struct{}{}
		if h.lastExport != nil {
			ch <- h.lastExport
		}
	})
	if !ok {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	n := 0
	b.call(func(h *hub) { n = len(h.clients) })
	return n
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(e Event) {
	b.do(func(h *hub) { h.broadcast(e) })
}

// PublishExportEvent publishes an export lifecycle event such as ExportSaved.
func (b *Broker) PublishExportEvent(eventType string, data any) {
	b.Publish(Event{Type: eventType, Data: data})
}

// PublishNoteEvent publishes "note.<kind>" for path, followed by a
// vault.changed event unless one went out within the throttle window.
func (b *Broker) PublishNoteEvent(kind, path string) {
	b.do(func(h *hub) {
		h.broadcast(Event{Type: "note." + kind, Data: map[string]string{"path": path}})
		if now := time.Now(); now.Sub(h.lastChange) >= b.changeMin {
			h.lastChange = now
			h.broadcast(Event{Type: VaultChanged, Data: map[string]string{}})
		}
	})
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
