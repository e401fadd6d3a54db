package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/feta/internal/apperr"
	"github.com/starford/feta/internal/models"
	"github.com/starford/feta/internal/parser"
)

// RootPath is the path of the vault's root folder.
const RootPath = "/"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to vault directory
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.FromSlash(rel), string(os.PathSeparator))
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("vault: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("vault: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// rel converts an absolute path under root to a slash-separated vault path.
func (f *FS) rel(abs string) string {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." {
		return RootPath
	}
	return filepath.ToSlash(r)
}

// Folder builds the folder tree rooted at dir. "" and "/" name the vault
// root. Hidden entries (names starting with ".") are left out.
func (f *FS) Folder(dir string) (*Folder, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vault: folder %q: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("vault: stat folder %q: %w", dir, err)
	}
	if !info.IsDir() || (abs != f.root && IsHidden(filepath.Base(abs))) {
		return nil, fmt.Errorf("vault: folder %q: %w", dir, apperr.ErrNotFound)
	}
	return f.buildFolder(abs)
}

func (f *FS) buildFolder(abs string) (*Folder, error) {
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: read dir %s: %w", f.rel(abs), err)
	}
	relPath := f.rel(abs)
	folder := &Folder{Path: relPath, Name: path.Base(relPath)}
	if relPath == RootPath {
		folder.Name = ""
	}
	for _, e := range entries {
		if IsHidden(e.Name()) {
			continue
		}
		childAbs := filepath.Join(abs, e.Name())
		if e.IsDir() {
			child, err := f.buildFolder(childAbs)
			if err != nil {
				return nil, err
			}
			folder.Children = append(folder.Children, child)
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // removed while listing
			}
			return nil, fmt.Errorf("vault: stat %s: %w", e.Name(), err)
		}
		folder.Children = append(folder.Children, &File{
			Path:      f.rel(childAbs),
			Name:      e.Name(),
			Extension: strings.TrimPrefix(filepath.Ext(e.Name()), "."),
			Stat:      statOf(info),
		})
	}
	return folder, nil
}

// statOf reports size and timestamps. Portable birth times are not available,
// so the creation time falls back to the modification time.
func statOf(info fs.FileInfo) models.FileStat {
	mtime := info.ModTime().UnixMilli()
	return models.FileStat{
		Size:       info.Size(),
		CreatedAt:  mtime,
		ModifiedAt: mtime,
	}
}

// Metadata reads and parses the note to report its tags and frontmatter.
func (f *FS) Metadata(file *File) (*Metadata, error) {
	data, err := f.Read(file.Path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vault: parse %s: %w", file.Path, err)
	}
	return &Metadata{
		Tags:           res.Tags,
		Frontmatter:    res.Frontmatter,
		FrontmatterEnd: res.FrontmatterEnd,
	}, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", p, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("vault: write: empty path")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".feta-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// IsHidden reports whether a file or directory name is hidden from the tree.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
