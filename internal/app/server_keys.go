package app

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"siecore/apps/console/internal/credential"
	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/provider"
)

type createKeyRequest struct {
	Provider string `json:"provider"`
	KeyValue string `json:"key_value"`
	Label    string `json:"label"`
	Priority int    `json:"priority"`
}

type providersResponse struct {
	Providers             []provider.ProviderSpec `json:"providers"`
	DeactivationThreshold int                     `json:"deactivation_threshold"`
}

// listProviders reports what a key can be registered for and after how many
// consecutive errors a key leaves the rotation.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Providers:             provider.ListProviders(),
		DeactivationThreshold: s.keys.Threshold(),
	})
}

// listKeys masks key values unless reveal=true is passed explicitly.
func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	creds, err := s.keys.List(r.Context(), queryBool(r, "active_only"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	reveal := queryBool(r, "reveal")
	out := make([]domain.Credential, 0, len(creds))
	for _, cred := range creds {
		if !reveal {
			cred = provider.MaskCredential(cred)
		}
		out = append(out, cred)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cred, err := s.keys.Add(r.Context(), credential.AddInput{
		Provider: req.Provider,
		KeyValue: req.KeyValue,
		Label:    req.Label,
		Priority: req.Priority,
	})
	if err != nil {
		writeKeyErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, provider.MaskCredential(cred))
}

func (s *Server) updateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	var patch domain.CredentialPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	cred, err := s.keys.Update(r.Context(), id, patch)
	if err != nil {
		writeKeyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider.MaskCredential(cred))
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	if err := s.keys.Remove(r.Context(), id); err != nil {
		writeKeyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) reportKeyError(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	cred, err := s.keys.RecordFailure(r.Context(), id)
	if err != nil {
		writeKeyErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider.MaskCredential(cred))
}

func keyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid_key_id", "key id must be a positive integer", map[string]string{"id": chi.URLParam(r, "id")})
		return 0, false
	}
	return id, true
}

func writeKeyErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credential.ErrCredentialNotFound):
		writeErr(w, http.StatusNotFound, "credential_not_found", "credential not found", nil)
	case errors.Is(err, credential.ErrInvalidCredential):
		writeErr(w, http.StatusBadRequest, "invalid_credential", "provider and key_value are required; priority must be positive", nil)
	default:
		writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
	}
}
