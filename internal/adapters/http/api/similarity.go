// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/brewtaste/internal/domain/similarity"
)

// SimilarityHandler handles affinity and clustering queries.
type SimilarityHandler struct {
	deps SimilarityDependencies
}

// NewSimilarityHandler creates a new similarity handler.
func NewSimilarityHandler(deps SimilarityDependencies) *SimilarityHandler {
	return &SimilarityHandler{deps: deps}
}

type userAffinityResponse struct {
	UserA    string  `json:"user_a"`
	UserB    string  `json:"user_b"`
	Affinity float64 `json:"affinity"`
}

// HandleUserAffinity handles GET /affinity/users?a={id}&b={id}.
func (h *SimilarityHandler) HandleUserAffinity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	userA := r.URL.Query().Get("a")
	userB := r.URL.Query().Get("b")
	if userA == "" || userB == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing a or b query parameter"))
		return
	}

	affinity, err := h.deps.UserAffinity(r.Context(), userA, userB)
	if err != nil {
		if errors.Is(err, similarity.ErrSelfComparison) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, userAffinityResponse{UserA: userA, UserB: userB, Affinity: affinity})
}

// HandleCoffeeAffinity handles GET /affinity/coffee?user={id}&item={id}.
func (h *SimilarityHandler) HandleCoffeeAffinity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user")
	itemID := r.URL.Query().Get("item")
	if userID == "" || itemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing user or item query parameter"))
		return
	}

	match, err := h.deps.CoffeeAffinity(r.Context(), userID, itemID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleSimilarUsers handles GET /users/{user_id}/similar?limit={n}.
func (h *SimilarityHandler) HandleSimilarUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/users/")
	userID, action, ok := strings.Cut(rest, "/")
	if !ok || userID == "" || action != "similar" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	users, err := h.deps.FindSimilarUsers(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if users == nil {
		users = []similarity.SimilarUser{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleClusters handles GET /clusters?k={n}.
func (h *SimilarityHandler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	k := 3
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("k must be a positive integer"))
			return
		}
		k = n
	}

	clusters, err := h.deps.ClusterUsersByTaste(r.Context(), k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if clusters == nil {
		clusters = []similarity.ClusterResult{}
	}
	writeJSON(w, http.StatusOK, clusters)
}
