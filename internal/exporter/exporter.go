// Package exporter turns a vault folder into a single JSON export document.
//
// The pipeline is strictly sequential: notes are walked, filtered, converted
// and added one at a time, and the finished document is handed to a Sink.
// Rendering to HTML goes through a preview surface that shows one note at a
// time, so no step is ever run concurrently.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/feta/internal/apperr"
	"github.com/starford/feta/internal/models"
	"github.com/starford/feta/internal/slug"
	"github.com/starford/feta/internal/vault"
)

// DefaultDestination is used when a request names no destination.
const DefaultDestination = ".feta/export.json"

// ErrRendererUnavailable is returned for HTML requests when no renderer is set.
var ErrRendererUnavailable = errors.New("exporter: html rendering not configured")

// ValidateDestination checks that dest is a vault-relative path that stays
// inside the vault and does not name a note. Notes are only ever read.
func ValidateDestination(dest string) error {
	p := strings.ReplaceAll(dest, "\\", "/")
	switch {
	case dest == "":
		return fmt.Errorf("%w: empty path", apperr.ErrInvalidDestination)
	case path.IsAbs(p) || (len(p) > 1 && p[1] == ':'):
		return fmt.Errorf("%w: %q must be relative to the vault", apperr.ErrInvalidDestination, dest)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q is outside the vault", apperr.ErrInvalidDestination, dest)
	}
	if strings.EqualFold(strings.TrimPrefix(path.Ext(clean), "."), vault.NoteExtension) {
		return fmt.Errorf("%w: %q would overwrite a note", apperr.ErrInvalidDestination, dest)
	}
	return nil
}

// Source is the vault collaborator the pipeline reads from.
type Source interface {
	Folder(path string) (*vault.Folder, error)
	Metadata(f *vault.File) (*vault.Metadata, error)
	Read(path string) ([]byte, error)
}

// HTMLRenderer produces the rendered markup of a note.
type HTMLRenderer interface {
	Render(ctx context.Context, notePath string) (string, error)
}

// Reporter receives the persistence outcome of every export.
type Reporter func(req Request, outcome Outcome)

// Request describes one export run.
type Request struct {
	Root                   string
	RenderHTML             bool
	RequiredTag            string
	RequiredFrontmatterKey string
	Destination            string
}

// Criteria returns the request's note filter.
func (r Request) Criteria() Criteria {
	return Criteria{Tag: r.RequiredTag, FrontmatterKey: r.RequiredFrontmatterKey}
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRenderer enables HTML output.
func WithRenderer(r HTMLRenderer) Option {
	return func(e *Exporter) { e.renderer = r }
}

// WithReporter sets the callback receiving sink outcomes.
func WithReporter(r Reporter) Option {
	return func(e *Exporter) { e.report = r }
}

// Exporter assembles exports. It is not safe for concurrent use; callers
// serialize runs (see exportservice).
type Exporter struct {
	src      Source
	sink     *Sink
	renderer HTMLRenderer
	report   Reporter
	logger   *slog.Logger
}

// New creates an Exporter reading from src and saving through sink.
func New(src Source, sink *Sink, logger *slog.Logger, opts ...Option) *Exporter {
	e := &Exporter{src: src, sink: sink, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportFolder exports every matching note under req.Root.
//
// An unknown root or an invalid destination is rejected before any note
// is read. Once assembled, the
// export is saved and the outcome goes to the Reporter; the export is
// returned whether or not the save succeeded. Metadata and read failures
// and render errors abort the run and nothing is saved.
func (e *Exporter) ExportFolder(ctx context.Context, req Request) (*models.JSONExport, error) {
	if req.RenderHTML && e.renderer == nil {
		return nil, ErrRendererUnavailable
	}
	if req.Destination == "" {
		req.Destination = DefaultDestination
	}
	if err := ValidateDestination(req.Destination); err != nil {
		return nil, fmt.Errorf("exporter: %w", err)
	}

	root, err := e.src.Folder(req.Root)
	if err != nil {
		return nil, fmt.Errorf("exporter: resolve root %q: %w", req.Root, err)
	}

	files := vault.CollectNotes(root)
	e.logger.Info("export: started",
		slog.String("root", root.Path),
		slog.Int("candidates", len(files)),
		slog.Bool("render_html", req.RenderHTML))

	out := models.NewJSONExport()
	criteria := req.Criteria()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		note, ok, err := e.exportFile(ctx, f, req.RenderHTML, criteria)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.logger.Debug("export: skipped", slog.String("path", f.Path))
			continue
		}
		if prev, dup := out.Notes[note.Meta.Slug]; dup {
			e.logger.Warn("export: slug collision, later note wins",
				slog.String("slug", note.Meta.Slug),
				slog.String("replaced", prev.Meta.Path),
				slog.String("path", f.Path))
		}
		out.Add(note)
	}

	outcome := e.sink.Save(ctx, out, req.Destination)
	if e.report != nil {
		e.report(req, outcome)
	}
	return out, nil
}

// exportFile converts one note. ok is false when the note is filtered out.
func (e *Exporter) exportFile(ctx context.Context, f *vault.File, renderHTML bool, criteria Criteria) (models.ExportedNote, bool, error) {
	meta, err := e.src.Metadata(f)
	if err != nil {
		return models.ExportedNote{}, false, fmt.Errorf("exporter: metadata %s: %w", f.Path, err)
	}
	if !criteria.Match(meta) {
		return models.ExportedNote{}, false, nil
	}

	var content string
	if renderHTML {
		content, err = e.renderer.Render(ctx, f.Path)
		if err != nil {
			return models.ExportedNote{}, false, fmt.Errorf("exporter: render %s: %w", f.Path, err)
		}
	} else {
		raw, err := e.src.Read(f.Path)
		if err != nil {
			return models.ExportedNote{}, false, fmt.Errorf("exporter: read %s: %w", f.Path, err)
		}
		content = StripFrontmatter(string(raw), meta.FrontmatterEnd)
	}

	fm := meta.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}

	return models.ExportedNote{
		Meta: models.NoteMeta{
			Title:       f.Name,
			Slug:        slug.Make(f.Name),
			Frontmatter: fm,
			Tags:        tags,
			Stat:        f.Stat,
			Path:        f.Path,
		},
		Content: content,
	}, true, nil
}
