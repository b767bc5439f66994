package app

import (
	"errors"
	"net/http"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/snapshot"
	"siecore/apps/console/internal/workspace"
)

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type restoreRequest struct {
	Path     string `json:"path"`
	Snapshot string `json:"snapshot"`
}

type writeFileResponse struct {
	Success  bool             `json:"success"`
	Path     string           `json:"path"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.files.List(r.URL.Query().Get("path"))
	if err != nil {
		writeFSErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.files.Read(r.URL.Query().Get("path"))
	if err != nil {
		writeFSErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) writeFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.files.Write(req.Path, req.Content)
	if err != nil {
		writeFSErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeFileResponse{Success: true, Path: result.Path, Snapshot: result.Snapshot})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.files.Snapshots(r.URL.Query().Get("path"))
	if err != nil {
		writeFSErr(w, err)
		return
	}
	if snaps == nil {
		snaps = []domain.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.files.Restore(req.Path, req.Snapshot)
	if err != nil {
		writeFSErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeFileResponse{Success: true, Path: result.Path, Snapshot: result.Snapshot})
}

func writeFSErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sandbox.ErrAccessDenied):
		writeErr(w, http.StatusForbidden, "access_denied", "path resolves outside the project root", nil)
	case errors.Is(err, workspace.ErrNotFound):
		writeErr(w, http.StatusNotFound, "file_not_found", "file not found", nil)
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		writeErr(w, http.StatusNotFound, "snapshot_not_found", "snapshot not found", nil)
	case errors.Is(err, workspace.ErrInvalidPath), errors.Is(err, snapshot.ErrInvalidName):
		writeErr(w, http.StatusBadRequest, "invalid_path", err.Error(), nil)
	case errors.Is(err, workspace.ErrIsDirectory), errors.Is(err, workspace.ErrNotDirectory):
		writeErr(w, http.StatusBadRequest, "invalid_path_kind", err.Error(), nil)
	case errors.Is(err, workspace.ErrFileTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), nil)
	default:
		writeErr(w, http.StatusInternalServerError, "fs_error", err.Error(), nil)
	}
}
