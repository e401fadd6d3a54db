// Package exportservice coordinates export runs: request defaults, the
// single-run guard, history and event notifications.
package exportservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/starford/feta/internal/apperr"
	"github.com/starford/feta/internal/exporter"
	"github.com/starford/feta/internal/history"
	"github.com/starford/feta/internal/models"
	"github.com/starford/feta/internal/sse"
	"github.com/starford/feta/internal/vault"
)

// Publisher receives export lifecycle events.
type Publisher interface {
	PublishExportEvent(eventType string, data any)
}

// Defaults are the configured export settings applied to empty request fields.
type Defaults struct {
	Root                   string
	RequiredTag            string
	RequiredFrontmatterKey string
	RenderHTML             bool
	Destination            string
}

// Request is an export request. Empty Root and Destination and nil
// pointer fields fall back to Defaults. A non-nil empty filter clears the
// configured one.
type Request struct {
	Root                   string  `json:"root,omitempty"`
	RequiredTag            *string `json:"required_tag,omitempty"`
	RequiredFrontmatterKey *string `json:"required_frontmatter_key,omitempty"`
	RenderHTML             *bool   `json:"render_html,omitempty"`
	Destination            string  `json:"destination,omitempty"`
}

// Result is a finished export together with its save outcome.
type Result struct {
	Export  *models.JSONExport
	Outcome exporter.Outcome
}

// TagCount is a tag and the number of notes carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Service runs exports against one vault.
type Service struct {
	src      exporter.Source
	exporter *exporter.Exporter
	history  history.Store
	events   Publisher
	defaults Defaults
	logger   *slog.Logger

	busy atomic.Bool
	last exporter.Outcome
}

// New creates a Service. history and events may be nil.
func New(src exporter.Source, sink *exporter.Sink, store history.Store, events Publisher,
	defaults Defaults, logger *slog.Logger, opts ...exporter.Option,
) *Service {
	s := &Service{
		src:      src,
		history:  store,
		events:   events,
		defaults: defaults,
		logger:   logger,
	}
	opts = append(opts, exporter.WithReporter(s.report))
	s.exporter = exporter.New(src, sink, logger, opts...)
	return s
}

// Resolve fills empty request fields from the configured defaults.
func (s *Service) Resolve(req Request) exporter.Request {
	out := exporter.Request{
		Root:                   req.Root,
		RequiredTag:            s.defaults.RequiredTag,
		RequiredFrontmatterKey: s.defaults.RequiredFrontmatterKey,
		RenderHTML:             s.defaults.RenderHTML,
		Destination:            req.Destination,
	}
	if req.RequiredTag != nil {
		out.RequiredTag = *req.RequiredTag
	}
	if req.RequiredFrontmatterKey != nil {
		out.RequiredFrontmatterKey = *req.RequiredFrontmatterKey
	}
	if req.RenderHTML != nil {
		out.RenderHTML = *req.RenderHTML
	}
	if out.Root == "" {
		out.Root = s.defaults.Root
	}
	if out.Destination == "" {
		out.Destination = s.defaults.Destination
	}
	if out.Destination == "" {
		out.Destination = exporter.DefaultDestination
	}
	return out
}

// Export runs one export. It fails with apperr.ErrBusy while another run
// is in progress and with apperr.ErrInvalidDestination when the resolved
// destination is not a writable export path.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	resolved := s.Resolve(req)
	if err := exporter.ValidateDestination(resolved.Destination); err != nil {
		return nil, fmt.Errorf("exportservice: %w", err)
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, apperr.ErrBusy
	}
	defer s.busy.Store(false)

	s.publish(sse.ExportStarted, map[string]any{
		"root":        resolved.Root,
		"render_html": resolved.RenderHTML,
	})

	s.last = exporter.Outcome{}
	export, err := s.exporter.ExportFolder(ctx, resolved)
	if err != nil {
		s.logger.Error("export: failed",
			slog.String("root", resolved.Root),
			slog.String("error", err.Error()))
		s.publish(sse.ExportFailed, map[string]string{
			"root":  resolved.Root,
			"error": err.Error(),
		})
		return nil, err
	}
	return &Result{Export: export, Outcome: s.last}, nil
}

// Busy reports whether an export is running.
func (s *Service) Busy() bool { return s.busy.Load() }

// report is the exporter's Reporter. It runs on the exporting goroutine.
func (s *Service) report(req exporter.Request, outcome exporter.Outcome) {
	s.last = outcome

	run := history.Run{
		Root:                   req.Root,
		RenderHTML:             req.RenderHTML,
		RequiredTag:            req.RequiredTag,
		RequiredFrontmatterKey: req.RequiredFrontmatterKey,
		Destination:            outcome.Destination,
		NoteCount:              outcome.Count,
		Bytes:                  outcome.Bytes,
		Checksum:               outcome.Checksum,
		Saved:                  outcome.Saved(),
		FinishedAt:             outcome.At,
	}
	if outcome.Err != nil {
		run.Error = outcome.Err.Error()
	}
	if s.history != nil {
		if _, err := s.history.Record(run); err != nil {
			s.logger.Warn("export: record history failed", slog.String("error", err.Error()))
		}
	}

	if outcome.Saved() {
		s.publish(sse.ExportSaved, map[string]any{
			"destination": outcome.Destination,
			"count":       outcome.Count,
			"checksum":    outcome.Checksum,
		})
		return
	}
	s.publish(sse.ExportFailed, map[string]any{
		"destination": outcome.Destination,
		"count":       outcome.Count,
		"error":       run.Error,
	})
}

func (s *Service) publish(eventType string, data any) {
	if s.events != nil {
		s.events.PublishExportEvent(eventType, data)
	}
}

// Folders returns the path of every folder in the vault, root first.
func (s *Service) Folders(_ context.Context) ([]string, error) {
	root, err := s.src.Folder(vault.RootPath)
	if err != nil {
		return nil, fmt.Errorf("exportservice: folders: %w", err)
	}
	folders := vault.CollectFolders(root)
	out := make([]string, len(folders))
	for i, f := range folders {
		out[i] = f.Path
	}
	return out, nil
}

// Tags returns every tag in the vault with its note count, most used first.
func (s *Service) Tags(ctx context.Context) ([]TagCount, error) {
	root, err := s.src.Folder(vault.RootPath)
	if err != nil {
		return nil, fmt.Errorf("exportservice: tags: %w", err)
	}
	counts := make(map[string]int)
	for _, f := range vault.CollectNotes(root) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := s.src.Metadata(f)
		if err != nil {
			return nil, fmt.Errorf("exportservice: tags: %s: %w", f.Path, err)
		}
		for _, t := range meta.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TagCount{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

// History returns up to limit recent export runs, newest first.
func (s *Service) History(_ context.Context, limit int) ([]history.Run, error) {
	if s.history == nil {
		return []history.Run{}, nil
	}
	return s.history.List(limit)
}

// Latest returns the most recent export run.
func (s *Service) Latest(_ context.Context) (*history.Run, error) {
	if s.history == nil {
		return nil, apperr.ErrNotFound
	}
	run, err := s.history.Latest()
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("exportservice: latest: %w", err)
	}
	return run, err
}
