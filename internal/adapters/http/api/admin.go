// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/brewtaste/internal/domain/scheduler"
)

// AdminHandler handles the operational surface: queue inspection,
// batch processing and runtime policy changes.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleQueueStatus handles GET /queue requests.
func (h *AdminHandler) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.QueueStatus())
}

// HandleProcessQueue handles POST /queue/process requests.
func (h *AdminHandler) HandleProcessQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	outcome, err := h.deps.ProcessPendingUpdates(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrBatchDisabled) {
			writeError(w, http.StatusConflict, "batch_disabled", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// schedulerConfigRequest mirrors the wire schema for PUT
// /scheduler/config. Pointer fields distinguish absent from zero.
type schedulerConfigRequest struct {
	DebounceWindowMS   *int     `json:"debounce_window_ms,omitempty"`
	BatchSize          *int     `json:"batch_size,omitempty"`
	RetryCount         *int     `json:"retry_count,omitempty"`
	RetryDelayMS       *int     `json:"retry_delay_ms,omitempty"`
	RealTimeUpdates    *bool    `json:"real_time_updates,omitempty"`
	BatchUpdates       *bool    `json:"batch_updates,omitempty"`
	FullUpdateRatio    *float64 `json:"full_update_ratio,omitempty"`
	MaxProfileAgeHours *int     `json:"max_profile_age_hours,omitempty"`
	RecentRatingsLimit *int     `json:"recent_ratings_limit,omitempty"`
}

type schedulerConfigResponse struct {
	DebounceWindowMS   int     `json:"debounce_window_ms"`
	BatchSize          int     `json:"batch_size"`
	RetryCount         int     `json:"retry_count"`
	RetryDelayMS       int     `json:"retry_delay_ms"`
	RealTimeUpdates    bool    `json:"real_time_updates"`
	BatchUpdates       bool    `json:"batch_updates"`
	FullUpdateRatio    float64 `json:"full_update_ratio"`
	MaxProfileAgeHours int     `json:"max_profile_age_hours"`
	RecentRatingsLimit int     `json:"recent_ratings_limit"`
}

func toConfigResponse(cfg scheduler.Config) schedulerConfigResponse {
	return schedulerConfigResponse{
		DebounceWindowMS:   int(cfg.DebounceWindow / time.Millisecond),
		BatchSize:          cfg.BatchSize,
		RetryCount:         cfg.RetryCount,
		RetryDelayMS:       int(cfg.RetryDelay / time.Millisecond),
		RealTimeUpdates:    cfg.RealTime,
		BatchUpdates:       cfg.Batch,
		FullUpdateRatio:    cfg.FullRatio,
		MaxProfileAgeHours: int(cfg.MaxProfileAge / time.Hour),
		RecentRatingsLimit: cfg.RecentRatingsLimit,
	}
}

// HandleSchedulerConfig handles GET and PUT /scheduler/config.
func (h *AdminHandler) HandleSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toConfigResponse(h.deps.SchedulerConfig()))

	case http.MethodPut:
		var req schedulerConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid json body"))
			return
		}

		cfg := h.deps.SchedulerConfig()
		if req.DebounceWindowMS != nil {
			cfg.DebounceWindow = time.Duration(*req.DebounceWindowMS) * time.Millisecond
		}
		if req.BatchSize != nil {
			cfg.BatchSize = *req.BatchSize
		}
		if req.RetryCount != nil {
			cfg.RetryCount = *req.RetryCount
		}
		if req.RetryDelayMS != nil {
			cfg.RetryDelay = time.Duration(*req.RetryDelayMS) * time.Millisecond
		}
		if req.RealTimeUpdates != nil {
			cfg.RealTime = *req.RealTimeUpdates
		}
		if req.BatchUpdates != nil {
			cfg.Batch = *req.BatchUpdates
		}
		if req.FullUpdateRatio != nil {
			cfg.FullRatio = *req.FullUpdateRatio
		}
		if req.MaxProfileAgeHours != nil {
			cfg.MaxProfileAge = time.Duration(*req.MaxProfileAgeHours) * time.Hour
		}
		if req.RecentRatingsLimit != nil {
			cfg.RecentRatingsLimit = *req.RecentRatingsLimit
		}

		if err := h.deps.SetSchedulerConfig(cfg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(cfg))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}

func maxAgeFromQuery(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("max_age_hours")
	if raw == "" {
		return 0, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, errors.New("max_age_hours must be a positive integer")
	}
	return time.Duration(hours) * time.Hour, nil
}

// HandleStaleProfiles handles GET /admin/stale?max_age_hours={n}.
func (h *AdminHandler) HandleStaleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	maxAge, err := maxAgeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	stale, err := h.deps.FindStaleProfiles(r.Context(), maxAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if stale == nil {
		stale = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_ids": stale, "count": len(stale)})
}

// HandleBatchUpdate handles POST /admin/batch-update?max_age_hours={n}.
func (h *AdminHandler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	maxAge, err := maxAgeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	queued, err := h.deps.BatchUpdateProfiles(r.Context(), maxAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}
