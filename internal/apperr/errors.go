// Package apperr holds the sentinel errors shared across feta packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidDestination is returned for an export destination that is
	// absolute, leaves the vault or would overwrite a note.
	ErrInvalidDestination = errors.New("invalid export destination")
	// ErrBusy is returned when an export is requested while another one runs.
	ErrBusy = errors.New("export already in progress")
	// ErrRenderTimeout is matched by render errors raised when the preview
	// surface did not signal readiness in time.
	ErrRenderTimeout = errors.New("render timeout")
)
