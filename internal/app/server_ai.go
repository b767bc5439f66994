package app

import (
	"errors"
	"net/http"
	"strings"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/review"
	"siecore/apps/console/internal/service/proposal"
	"siecore/apps/console/internal/workspace"
)

type proposeRequest struct {
	SessionID    string `json:"session_id"`
	Prompt       string `json:"prompt"`
	OpenPath     string `json:"open_path,omitempty"`
	AutoRunShell *bool  `json:"auto_run_shell,omitempty"`
}

type proposeResponse struct {
	Proposal domain.Proposal         `json:"proposal"`
	Review   review.Review           `json:"review"`
	Writes   []workspace.WriteResult `json:"writes"`
	Skipped  []review.SkippedEdit    `json:"skipped,omitempty"`
	Shell    *domain.ShellResult     `json:"shell,omitempty"`
}

// propose asks the model for a proposal, routes its edits through the review
// gate and, unless disabled, runs the suggested shell command.
func (s *Server) propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeErr(w, http.StatusBadRequest, "invalid_proposal_request", "session_id and prompt are required", nil)
		return
	}

	file := proposal.FileContext{}
	if strings.TrimSpace(req.OpenPath) != "" {
		content, err := s.files.Read(req.OpenPath)
		switch {
		case err == nil:
			file = proposal.FileContext{Path: req.OpenPath, Content: content}
		case errors.Is(err, workspace.ErrNotFound):
			file = proposal.FileContext{Path: req.OpenPath}
		default:
			writeFSErr(w, err)
			return
		}
	}

	generated := s.proposals.Generate(r.Context(), req.Prompt, file)
	routed, err := s.gate.Route(req.SessionID, generated, req.OpenPath)
	if err != nil {
		writeReviewErr(w, err)
		return
	}

	resp := proposeResponse{
		Proposal: generated,
		Review:   routed.Review,
		Writes:   routed.Writes,
		Skipped:  routed.Skipped,
	}
	if resp.Writes == nil {
		resp.Writes = []workspace.WriteResult{}
	}
	autoRun := req.AutoRunShell == nil || *req.AutoRunShell
	if command := strings.TrimSpace(generated.ShellCommand); command != "" && autoRun {
		result := s.shell.Run(r.Context(), command)
		resp.Shell = &result
	}
	writeJSON(w, http.StatusOK, resp)
}
