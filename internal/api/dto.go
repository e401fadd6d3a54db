package api

import (
	"github.com/starford/feta/internal/exportservice"
	"github.com/starford/feta/internal/history"
)

// ExportRequest is the optional body of POST /api/export. Omitted fields
// fall back to the configured export settings.
type ExportRequest = exportservice.Request

// Headers describing where an export was saved.
const (
	HeaderDestination = "X-Export-Destination"
	HeaderSaved       = "X-Export-Saved"
	HeaderChecksum    = "X-Export-Checksum"
	HeaderSaveError   = "X-Export-Error"
)

// FolderListResponse wraps the vault's folder paths.
type FolderListResponse struct {
	Folders []string `json:"folders"`
}

// TagListResponse wraps tag counts.
type TagListResponse struct {
	Tags []exportservice.TagCount `json:"tags"`
}

// ExportRun is a recorded export (aliased from the history layer).
type ExportRun = history.Run

// ExportListResponse wraps recent export runs.
type ExportListResponse struct {
	Exports []ExportRun `json:"exports"`
}
