package render

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/feta/internal/parser"
)

// Source reads raw note content by vault path.
type Source interface {
	Read(path string) ([]byte, error)
}

// Preview is a single-pane note viewer over a vault. Opening a note reads
// it right away; focus change and rendering then complete in the
// background and are announced through the OnActivated and OnRendered
// listeners, in that order.
type Preview struct {
	src    Source
	md     *Markdown
	logger *slog.Logger

	mu        sync.Mutex
	active    string
	mode      Mode
	markup    string
	gen       uint64
	nextID    int
	activated map[int]func(string)
	rendered  map[int]func(string)
}

// Verify *Preview satisfies Surface at compile time.
var _ Surface = (*Preview)(nil)

// NewPreview creates an empty preview pane.
func NewPreview(src Source, md *Markdown, logger *slog.Logger) *Preview {
	return &Preview{
		src:       src,
		md:        md,
		logger:    logger,
		activated: make(map[int]func(string)),
		rendered:  make(map[int]func(string)),
	}
}

// ActiveNote implements Surface.
func (p *Preview) ActiveNote() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Markup implements Surface.
func (p *Preview) Markup() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markup
}

// Mode returns the current display mode.
func (p *Preview) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Open implements Surface. Every call re-renders in preview mode, so a
// caller that opens the already active note still gets a rendered signal.
func (p *Preview) Open(notePath string, mode Mode) error {
	data, err := p.src.Read(notePath)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	p.mu.Lock()
	changed := p.active != notePath
	p.active = notePath
	p.mode = mode
	if changed {
		p.markup = ""
	}
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	go p.load(gen, notePath, mode, changed, data)
	return nil
}

func (p *Preview) load(gen uint64, notePath string, mode Mode, changed bool, data []byte) {
	if changed {
		p.emit(p.activated, notePath)
	}
	if mode != ModePreview {
		return
	}

	res, err := parser.Parse(data)
	if err != nil {
		p.logger.Warn("preview: parse failed", slog.String("path", notePath), slog.String("error", err.Error()))
		return
	}
	html := p.md.HTML([]byte(res.Body))

	p.mu.Lock()
	if p.gen != gen {
		// Superseded by a later Open.
		p.mu.Unlock()
		return
	}
	p.markup = html
	p.mu.Unlock()

	p.emit(p.rendered, notePath)
}

// OnActivated implements Surface.
func (p *Preview) OnActivated(fn func(string)) func() {
	return p.subscribe(p.activated, fn)
}

// OnRendered implements Surface.
func (p *Preview) OnRendered(fn func(string)) func() {
	return p.subscribe(p.rendered, fn)
}

func (p *Preview) subscribe(set map[int]func(string), fn func(string)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	set[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(set, id)
			p.mu.Unlock()
		})
	}
}

func (p *Preview) emit(set map[int]func(string), notePath string) {
	p.mu.Lock()
	fns := make([]func(string), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(notePath)
	}
}
