// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/internal/domain/scheduler"
	"github.com/okian/brewtaste/internal/domain/similarity"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ProfileDependencies
	RatingDependencies
	SimilarityDependencies
	AdminDependencies
}

// ProfileDependencies covers the profile read and recompute surface.
type ProfileDependencies interface {
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	GenerateProfile(ctx context.Context, userID string) (profile.Profile, error)
	RefineProfile(ctx context.Context, userID string) (profile.Profile, error)
	UpdateHistory(userID string) []scheduler.HistoryEntry
}

// RatingDependencies covers rating ingestion and the trigger surface.
type RatingDependencies interface {
	AddRating(ctx context.Context, r model.RatingEvent) (model.RatingEvent, error)
	DeleteRating(ctx context.Context, userID, ratingID string) error
	TriggerUpdate(ctx context.Context, trigger model.UpdateTrigger) (scheduler.Result, error)
}

// SimilarityDependencies covers affinity and clustering queries.
type SimilarityDependencies interface {
	UserAffinity(ctx context.Context, userA, userB string) (float64, error)
	CoffeeAffinity(ctx context.Context, userID, itemID string) (similarity.CoffeeMatch, error)
	FindSimilarUsers(ctx context.Context, userID string, limit int) ([]similarity.SimilarUser, error)
	ClusterUsersByTaste(ctx context.Context, k int) ([]similarity.ClusterResult, error)
}

// AdminDependencies covers the operational surface.
type AdminDependencies interface {
	QueueStatus() scheduler.QueueStatus
	ProcessPendingUpdates(ctx context.Context) (scheduler.BatchOutcome, error)
	SchedulerConfig() scheduler.Config
	SetSchedulerConfig(cfg scheduler.Config) error
	FindStaleProfiles(ctx context.Context, maxAge time.Duration) ([]string, error)
	BatchUpdateProfiles(ctx context.Context, maxAge time.Duration) (int, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	profileHandler    *ProfileHandler
	ratingHandler     *RatingHandler
	similarityHandler *SimilarityHandler
	adminHandler      *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		profileHandler:    NewProfileHandler(deps),
		ratingHandler:     NewRatingHandler(deps),
		similarityHandler: NewSimilarityHandler(deps),
		adminHandler:      NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/profiles/", MetricsMiddleware(s.profileHandler.HandleProfile, "profiles"))
	mux.HandleFunc("/ratings", MetricsMiddleware(s.ratingHandler.HandlePostRating, "ratings"))
	mux.HandleFunc("/ratings/", MetricsMiddleware(s.ratingHandler.HandleDeleteRating, "ratings"))
	mux.HandleFunc("/triggers", MetricsMiddleware(s.ratingHandler.HandlePostTrigger, "triggers"))

	mux.HandleFunc("/affinity/users", MetricsMiddleware(s.similarityHandler.HandleUserAffinity, "affinity_users"))
	mux.HandleFunc("/affinity/coffee", MetricsMiddleware(s.similarityHandler.HandleCoffeeAffinity, "affinity_coffee"))
	mux.HandleFunc("/users/", MetricsMiddleware(s.similarityHandler.HandleSimilarUsers, "similar_users"))
	mux.HandleFunc("/clusters", MetricsMiddleware(s.similarityHandler.HandleClusters, "clusters"))

	mux.HandleFunc("/queue", MetricsMiddleware(s.adminHandler.HandleQueueStatus, "queue"))
	mux.HandleFunc("/queue/process", MetricsMiddleware(s.adminHandler.HandleProcessQueue, "queue_process"))
	mux.HandleFunc("/scheduler/config", MetricsMiddleware(s.adminHandler.HandleSchedulerConfig, "scheduler_config"))
	mux.HandleFunc("/admin/stale", MetricsMiddleware(s.adminHandler.HandleStaleProfiles, "admin_stale"))
	mux.HandleFunc("/admin/batch-update", MetricsMiddleware(s.adminHandler.HandleBatchUpdate, "admin_batch_update"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
