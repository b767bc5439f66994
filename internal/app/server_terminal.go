package app

import (
	"net/http"
	"strings"
)

type execRequest struct {
	Command string `json:"command"`
}

// execCommand always answers 200: failures travel in exitCode and error.
func (s *Server) execCommand(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeErr(w, http.StatusBadRequest, "command_required", "command is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.shell.Run(r.Context(), req.Command))
}
