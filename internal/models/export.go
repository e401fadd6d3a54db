// Package models defines the export document types for feta.
package models

// FileStat mirrors the file statistics a vault host reports for a note.
// Timestamps are Unix milliseconds.
type FileStat struct {
	Size       int64 `json:"size"`
	CreatedAt  int64 `json:"ctime"`
	ModifiedAt int64 `json:"mtime"`
}

// NoteMeta describes one exported note.
type NoteMeta struct {
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Frontmatter map[string]any `json:"frontmatter"`
	Tags        []string       `json:"tags"`
	Stat        FileStat       `json:"stat"`
	Path        string         `json:"path"`
}

// ExportedNote pairs a note's metadata with its exported content, which is
// either frontmatter-free Markdown or rendered HTML.
type ExportedNote struct {
	Meta    NoteMeta `json:"meta"`
	Content string   `json:"content"`
}

// JSONExport is the aggregate export document.
//
// Meta keeps every exported note in traversal order. Notes is keyed by slug;
// when two notes share a slug the later one replaces the earlier entry while
// both remain in Meta.
type JSONExport struct {
	Meta  []NoteMeta              `json:"meta"`
	Notes map[string]ExportedNote `json:"notes"`
}

// NewJSONExport returns an empty export that serializes as {"meta":[],"notes":{}}.
func NewJSONExport() *JSONExport {
	return &JSONExport{
		Meta:  []NoteMeta{},
		Notes: map[string]ExportedNote{},
	}
}

// Add appends the note's metadata and stores it under its slug,
// overwriting any earlier note with the same slug.
func (e *JSONExport) Add(n ExportedNote) {
	e.Meta = append(e.Meta, n.Meta)
	e.Notes[n.Meta.Slug] = n
}

// Count returns the number of exported notes, including slug duplicates.
func (e *JSONExport) Count() int {
	return len(e.Meta)
}
