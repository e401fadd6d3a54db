package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/starford/feta/internal/exportservice"
	"github.com/starford/feta/internal/history"
)

// Service is the export service the handlers depend on.
type Service interface {
	Export(ctx context.Context, req exportservice.Request) (*exportservice.Result, error)
	Folders(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]exportservice.TagCount, error)
	History(ctx context.Context, limit int) ([]history.Run, error)
	Latest(ctx context.Context) (*history.Run, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Export handles POST /api/export.
//
// The response body is the export document. Whether it was saved is
// reported in the X-Export-* headers; a failed save still returns 200.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	res, err := h.svc.Export(r.Context(), req)
	if err != nil {
		writeError(w, "export", err)
		return
	}

	w.Header().Set(HeaderDestination, res.Outcome.Destination)
	w.Header().Set(HeaderSaved, strconv.FormatBool(res.Outcome.Saved()))
	if res.Outcome.Checksum != "" {
		w.Header().Set(HeaderChecksum, res.Outcome.Checksum)
	}
	if res.Outcome.Err != nil {
		w.Header().Set(HeaderSaveError, res.Outcome.Err.Error())
	}
	writeJSON(w, http.StatusOK, res.Export)
}

// Folders handles GET /api/folders.
func (h *Handler) Folders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.svc.Folders(r.Context())
	if err != nil {
		writeError(w, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: folders})
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// ListExports handles GET /api/exports?limit=N.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeError(w, "list exports", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportListResponse{Exports: runs})
}

// LatestExport handles GET /api/exports/latest.
func (h *Handler) LatestExport(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Latest(r.Context())
	if err != nil {
		writeError(w, "latest export", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
