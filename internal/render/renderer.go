// Package render obtains rendered HTML for notes from a preview surface.
//
// A surface shows one note at a time. Rendering a note means asking the
// surface to show it in preview mode, waiting until the note is active,
// waiting again until its preview has rendered, and only then reading the
// markup. Renderer drives that sequence for one note at a time.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/feta/internal/apperr"
)

// Mode is the display mode requested from a surface.
type Mode int

const (
	ModeEdit Mode = iota
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "edit"
}

// Surface is a display that shows a single active note.
type Surface interface {
	// ActiveNote returns the path of the note currently shown, or "".
	ActiveNote() string
	// Open shows the note in the given mode. Opening the active note again
	// is allowed and still applies the mode.
	Open(notePath string, mode Mode) error
	// OnActivated registers fn to run whenever a note becomes active.
	OnActivated(fn func(notePath string)) (cancel func())
	// OnRendered registers fn to run whenever a note's preview finishes rendering.
	OnRendered(fn func(notePath string)) (cancel func())
	// Markup returns the rendered markup of the active note.
	Markup() string
}

// State is the progress of a single render request.
type State int

const (
	StateRequested State = iota
	StateActive
	StateRendered
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRendered:
		return "rendered"
	default:
		return "requested"
	}
}

// TimeoutError reports a render request stuck waiting for a surface signal.
type TimeoutError struct {
	Note  string
	State State // last state reached
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render: %s stuck in state %s after %s", e.Note, e.State, e.After)
}

// Is makes errors.Is(err, apperr.ErrRenderTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == apperr.ErrRenderTimeout
}

// Renderer renders notes through a Surface, one request at a time.
type Renderer struct {
	surface Surface
	// timeout bounds each wait; zero waits until ctx is done.
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
}

// NewRenderer creates a Renderer. A zero timeout waits indefinitely for the
// surface, bounded only by the caller's context.
func NewRenderer(surface Surface, timeout time.Duration, logger *slog.Logger) *Renderer {
	return &Renderer{surface: surface, timeout: timeout, logger: logger}
}

// Render shows notePath in preview mode and returns its rendered markup.
func (r *Renderer) Render(ctx context.Context, notePath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := &request{
		note:     notePath,
		active:   make(chan struct{}, 1),
		rendered: make(chan struct{}, 1),
	}

	// Subscribe before opening so no signal can slip past.
	offActive := r.surface.OnActivated(func(p string) {
		if p == notePath {
			signal(req.active)
		}
	})
	defer offActive()
	offRendered := r.surface.OnRendered(func(p string) {
		if p == notePath {
			signal(req.rendered)
		}
	})
	defer offRendered()

	if r.surface.ActiveNote() == notePath {
		signal(req.active)
	}
	if err := r.surface.Open(notePath, ModePreview); err != nil {
		return "", fmt.Errorf("render: open %s: %w", notePath, err)
	}

	if err := r.await(ctx, req, req.active); err != nil {
		return "", err
	}
	req.state = StateActive

	if err := r.await(ctx, req, req.rendered); err != nil {
		return "", err
	}
	req.state = StateRendered

	r.logger.Debug("render: done", slog.String("path", notePath))
	return r.surface.Markup(), nil
}

type request struct {
	note     string
	state    State
	active   chan struct{}
	rendered chan struct{}
}

func (r *Renderer) await(ctx context.Context, req *request, ch <-chan struct{}) error {
	var timeout <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ch:
		return nil
	case <-timeout:
		r.logger.Warn("render: timed out",
			slog.String("path", req.note),
			slog.String("state", req.state.String()))
		return &TimeoutError{Note: req.note, State: req.state, After: r.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signal performs a non-blocking send on a one-slot channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
