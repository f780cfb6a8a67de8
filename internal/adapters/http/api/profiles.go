// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"
)

// ProfileHandler handles profile read and recompute requests.
type ProfileHandler struct {
	deps ProfileDependencies
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps ProfileDependencies) *ProfileHandler {
	return &ProfileHandler{deps: deps}
}

// HandleProfile routes requests under /profiles/{user_id}:
//
//	GET  /profiles/{user_id}           current profile (neutral when absent)
//	POST /profiles/{user_id}/generate  full recompute from all ratings
//	POST /profiles/{user_id}/refine    collaborative-filtering blend
//	GET  /profiles/{user_id}/history   recent update records, newest first
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/profiles/")
	userID, action, _ := strings.Cut(rest, "/")
	if userID == "" || strings.Contains(action, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		p, err := h.deps.GetProfile(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case action == "generate" && r.Method == http.MethodPost:
		p, err := h.deps.GenerateProfile(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case action == "refine" && r.Method == http.MethodPost:
		p, err := h.deps.RefineProfile(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case action == "history" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.UpdateHistory(userID))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}
