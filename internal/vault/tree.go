package vault

import (
	"strings"

	"github.com/starford/feta/internal/models"
)

// NoteExtension is the extension, without dot, of files treated as notes.
const NoteExtension = "md"

// Node is a member of a vault folder: either a *Folder or a *File.
type Node interface {
	NodePath() string
}

// Folder is a directory in the vault. Children are listed in name order.
type Folder struct {
	Path     string
	Name     string
	Children []Node
}

// NodePath implements Node.
func (f *Folder) NodePath() string { return f.Path }

// File is a non-directory vault entry.
type File struct {
	Path      string // relative to the vault root, forward slashes
	Name      string // base name including extension
	Extension string // without leading dot
	Stat      models.FileStat
}

// NodePath implements Node.
func (f *File) NodePath() string { return f.Path }

// IsNote reports whether the file is a Markdown note.
func (f *File) IsNote() bool {
	return strings.EqualFold(f.Extension, NoteExtension)
}

// CollectNotes returns every note reachable from root, each exactly once,
// in depth-first order following each folder's child order. Non-note files
// are skipped.
func CollectNotes(root *Folder) []*File {
	if root == nil {
		return nil
	}
	var out []*File
	for _, child := range root.Children {
		switch c := child.(type) {
		case *File:
			if c.IsNote() {
				out = append(out, c)
			}
		case *Folder:
			out = append(out, CollectNotes(c)...)
		}
	}
	return out
}

// CollectFolders returns root and all nested folders in depth-first order.
func CollectFolders(root *Folder) []*Folder {
	if root == nil {
		return nil
	}
	out := []*Folder{root}
	for _, child := range root.Children {
		if c, ok := child.(*Folder); ok {
			out = append(out, CollectFolders(c)...)
		}
	}
	return out
}
