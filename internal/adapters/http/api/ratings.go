// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
)

// RatingHandler handles rating ingestion and explicit update triggers.
type RatingHandler struct {
	deps RatingDependencies
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(deps RatingDependencies) *RatingHandler {
	return &RatingHandler{deps: deps}
}

// ratingRequest mirrors the wire schema for POST /ratings. Sub-scores
// are keyed by canonical attribute name.
type ratingRequest struct {
	UserID    string             `json:"user_id"`
	ItemID    string             `json:"item_id"`
	Overall   float64            `json:"overall"`
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
	Note      string             `json:"note,omitempty"`
	TS        string             `json:"ts,omitempty"`
}

func (req ratingRequest) validate() error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(req.ItemID) == "":
		return errors.New("missing item_id")
	case req.Overall < 1 || req.Overall > 5:
		return errors.New("overall must be between 1 and 5")
	}
	for name, v := range req.SubScores {
		if _, err := attribute.Parse(name); err != nil {
			return fmt.Errorf("sub_scores: %w", err)
		}
		if v < 1 || v > 5 {
			return fmt.Errorf("sub_scores.%s must be between 1 and 5", name)
		}
	}
	if req.TS != "" {
		if _, err := time.Parse(time.RFC3339, req.TS); err != nil {
			return errors.New("invalid ts; must be RFC3339")
		}
	}
	return nil
}

func (req ratingRequest) toModel() model.RatingEvent {
	r := model.RatingEvent{
		UserID:    req.UserID,
		ItemID:    req.ItemID,
		Overall:   req.Overall,
		Note:      req.Note,
		CreatedAt: time.Now(),
	}
	if req.TS != "" {
		if ts, err := time.Parse(time.RFC3339, req.TS); err == nil {
			r.CreatedAt = ts
		}
	}
	if len(req.SubScores) > 0 {
		r.SubScores = make(map[attribute.Attribute]float64, len(req.SubScores))
		for name, v := range req.SubScores {
			attr, err := attribute.Parse(name)
			if err != nil {
				continue
			}
			r.SubScores[attr] = v
		}
	}
	return r
}

// HandlePostRating handles POST /ratings requests.
func (h *RatingHandler) HandlePostRating(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid json body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	stored, err := h.deps.AddRating(r.Context(), req.toModel())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, stored)
}

// HandleDeleteRating handles DELETE /ratings/{user_id}/{rating_id}.
func (h *RatingHandler) HandleDeleteRating(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/ratings/")
	userID, ratingID, ok := strings.Cut(rest, "/")
	if !ok || userID == "" || ratingID == "" || strings.Contains(ratingID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	if err := h.deps.DeleteRating(r.Context(), userID, ratingID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// triggerRequest mirrors the wire schema for POST /triggers.
type triggerRequest struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"type"`
	RatingID string            `json:"rating_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandlePostTrigger handles POST /triggers requests.
func (h *RatingHandler) HandlePostTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid json body"))
		return
	}

	res, err := h.deps.TriggerUpdate(r.Context(), model.UpdateTrigger{
		UserID:    req.UserID,
		Type:      model.TriggerType(req.Type),
		RatingID:  req.RatingID,
		Metadata:  req.Metadata,
		Timestamp: time.Now(),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
