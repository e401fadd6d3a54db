package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/feta/internal/apperr"
)

// Store defines the history operations consumers depend on.
type Store interface {
	Record(r Run) (int64, error)
	List(limit int) ([]Run, error)
	Latest() (*Run, error)
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Run is one recorded export.
type Run struct {
	ID                     int64     `json:"id"`
	Root                   string    `json:"root"`
	RenderHTML             bool      `json:"render_html"`
	RequiredTag            string    `json:"required_tag,omitempty"`
	RequiredFrontmatterKey string    `json:"required_frontmatter_key,omitempty"`
	Destination            string    `json:"destination"`
	NoteCount              int       `json:"note_count"`
	Bytes                  int       `json:"bytes"`
	Checksum               string    `json:"checksum,omitempty"`
	Saved                  bool      `json:"saved"`
	Error                  string    `json:"error,omitempty"`
	FinishedAt             time.Time `json:"finished_at"`
}

const selectRuns = `
	SELECT id, root, render_html, required_tag, required_frontmatter_key,
	       destination, note_count, bytes, checksum, saved, error, finished_at
	FROM export_runs`

// Record stores a run and returns its id.
func (db *DB) Record(r Run) (int64, error) {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	res, err := db.conn.Exec(`
		INSERT INTO export_runs (root, render_html, required_tag, required_frontmatter_key,
			destination, note_count, bytes, checksum, saved, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Root, r.RenderHTML, r.RequiredTag, r.RequiredFrontmatterKey,
		r.Destination, r.NoteCount, r.Bytes, r.Checksum, r.Saved, r.Error, r.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: record: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit runs, newest first.
func (db *DB) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(selectRuns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Latest returns the most recent run, or apperr.ErrNotFound.
func (db *DB) Latest() (*Run, error) {
	r, err := scanRun(db.conn.QueryRow(selectRuns + ` ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	err := s.Scan(&r.ID, &r.Root, &r.RenderHTML, &r.RequiredTag, &r.RequiredFrontmatterKey,
		&r.Destination, &r.NoteCount, &r.Bytes, &r.Checksum, &r.Saved, &r.Error, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	return &r, nil
}
