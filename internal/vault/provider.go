// Package vault exposes a Markdown vault directory as a folder tree with
// per-note metadata, content reads and atomic writes.
package vault

import "github.com/starford/feta/internal/parser"

// NoFrontmatter marks metadata of a note without a frontmatter block.
const NoFrontmatter = parser.NoFrontmatter

// Metadata is the parsed metadata of one note.
type Metadata struct {
	Tags []string
	// Frontmatter is nil when the note has no frontmatter block.
	Frontmatter map[string]any
	// FrontmatterEnd is the zero-based line of the closing "---", or NoFrontmatter.
	FrontmatterEnd int
}

// FrontmatterKeys returns the set of frontmatter keys.
func (m *Metadata) FrontmatterKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(m.Frontmatter))
	for k := range m.Frontmatter {
		keys[k] = struct{}{}
	}
	return keys
}

// Provider is the interface for vault operations.
type Provider interface {
	// Folder returns the folder tree rooted at path (relative to vault root).
	Folder(path string) (*Folder, error)
	// Metadata returns the parsed tags and frontmatter of a note.
	Metadata(f *File) (*Metadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
}
