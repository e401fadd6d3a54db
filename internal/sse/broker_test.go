package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return ""
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after unsubscribe = %d, want 0", n)
	}
}

func TestExportEventFraming(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishExportEvent(ExportStarted, map[string]string{"root": "/"})
	b.PublishExportEvent(ExportSaved, map[string]any{"destination": "out.json", "count": 2})

	first := receive(t, ch)
	if !strings.HasPrefix(first, "id: 1\nevent: export.started\n") {
		t.Errorf("first = %q", first)
	}
	second := receive(t, ch)
	if !strings.HasPrefix(second, "id: 2\nevent: export.saved\n") || !strings.Contains(second, `"destination":"out.json"`) {
		t.Errorf("second = %q", second)
	}
}

func TestSubscribeReplaysLastExport(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	b.PublishExportEvent(ExportSaved, map[string]any{"count": 1})
	b.PublishExportEvent(ExportFailed, map[string]any{"error": "disk full"})
	b.PublishExportEvent(ExportStarted, map[string]any{"root": "/"})

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	got := receive(t, ch)
	if !strings.Contains(got, "event: export.failed") || !strings.Contains(got, "disk full") {
		t.Errorf("replayed = %q", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra message %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNoteEvent_VaultChangedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// The first change emits vault.changed; the second inside the window does not.
	b.PublishNoteEvent("created", "a.md")
	b.PublishNoteEvent("updated", "b.md")
	b.ClientCount() // wait for the loop to drain

	var changed, notes int
	for len(ch) > 0 {
		if strings.Contains(string(<-ch), "event: vault.changed") {
			changed++
		} else {
			notes++
		}
	}
	if notes != 2 {
		t.Errorf("note events = %d, want 2", notes)
	}
	if changed != 1 {
		t.Errorf("vault.changed events = %d, want 1", changed)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for range clientBuffer + 6 {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	b.ClientCount()
	if len(ch) != clientBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), clientBuffer)
	}
}

// syncRecorder guards the body so the test can read it while the handler runs.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.PublishExportEvent(ExportStarted, map[string]string{"root": "/"})
	time.Sleep(80 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: export.started") {
		t.Errorf("missing event: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("missing keepalive: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients after disconnect = %d, want 0", n)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients after close = %d, want 0", n)
	}

	// Operations after close are no-ops.
	b.PublishExportEvent(ExportFailed, map[string]string{"error": "x"})
	b.PublishNoteEvent("updated", "x.md")
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close returned an open channel")
	}
}
