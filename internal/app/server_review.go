package app

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"siecore/apps/console/internal/review"
)

type openReviewRequest struct {
	Path string `json:"path"`
}

type confirmReviewRequest struct {
	ReviewID         string `json:"review_id"`
	ConfirmHash      string `json:"confirm_hash"`
	ConfirmProtected bool   `json:"confirm_protected"`
}

type cancelReviewRequest struct {
	ReviewID string `json:"review_id"`
}

type reviewSessionResponse struct {
	SessionID string         `json:"session_id"`
	OpenPath  string         `json:"open_path,omitempty"`
	Review    *review.Review `json:"review,omitempty"`
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	openPath, _ := s.gate.OpenFile(sessionID)
	resp := reviewSessionResponse{SessionID: sessionID, OpenPath: openPath}
	if current, ok := s.gate.Current(sessionID); ok {
		resp.Review = &current
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) openReview(w http.ResponseWriter, r *http.Request) {
	var req openReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opened, err := s.gate.Open(chi.URLParam(r, "session_id"), req.Path)
	if err != nil {
		writeReviewErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opened)
}

func (s *Server) confirmReview(w http.ResponseWriter, r *http.Request) {
	var req confirmReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.gate.Confirm(chi.URLParam(r, "session_id"), req.ReviewID, req.ConfirmHash, req.ConfirmProtected)
	if err != nil {
		writeReviewErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelReview(w http.ResponseWriter, r *http.Request) {
	var req cancelReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cancelled, err := s.gate.Cancel(chi.URLParam(r, "session_id"), req.ReviewID)
	if err != nil {
		writeReviewErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func writeReviewErr(w http.ResponseWriter, err error) {
	var reviewErr *review.Error
	if !errors.As(err, &reviewErr) {
		writeFSErr(w, err)
		return
	}
	status := http.StatusBadRequest
	switch reviewErr.Code {
	case review.CodeNotFound:
		status = http.StatusNotFound
	case review.CodeInvalidTransition, review.CodeApplyConflict, review.CodeHashMismatch:
		status = http.StatusConflict
	case review.CodeProtectedConfirmationMissing:
		status = http.StatusPreconditionRequired
	}
	writeErr(w, status, reviewErr.Code, reviewErr.Message, reviewErr.Details)
}
