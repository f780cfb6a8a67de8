// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/okian/brewtaste/internal/adapters/cache"
	"github.com/okian/brewtaste/internal/adapters/repository"
	"github.com/okian/brewtaste/internal/config"
	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/internal/domain/scheduler"
	"github.com/okian/brewtaste/internal/domain/similarity"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// RatingWriter is implemented by rating stores that accept writes. The
// Mongo store is read-only from this service's point of view; the
// memory store accepts ingestion directly.
type RatingWriter interface {
	Add(ctx context.Context, r model.RatingEvent) (model.RatingEvent, error)
	Delete(ctx context.Context, userID, ratingID string) error
}

// Service wires the stores, the aggregator, the similarity engine and
// the update scheduler behind one facade.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Stores
	ratings  repository.RatingStore
	catalog  repository.CatalogStore
	profiles repository.ProfileStore

	// Core components
	aggregator *profile.Aggregator
	engine     *similarity.Engine
	sched      *scheduler.Scheduler
	cache      *cache.Cache

	// State
	started   bool
	startedAt time.Time
	stopCh    chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithStores overrides the config-selected stores, mainly for tests.
func WithStores(ratings repository.RatingStore, catalog repository.CatalogStore, profiles repository.ProfileStore) Option {
	return func(s *Service) {
		s.ratings = ratings
		s.catalog = catalog
		s.profiles = profiles
	}
}

// WithCache sets the read cache; nil disables caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// New builds a service from cfg. Store and cache connections are
// established here; Start only flips the running state.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}

	s := &Service{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.ratings == nil || s.catalog == nil || s.profiles == nil {
		if err := s.openStores(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if s.cache == nil && cfg.RedisAddr != "" {
		s.cache = cache.New(cfg.RedisAddr, cfg.RedisPassword,
			cache.WithTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second))
		if err := s.cache.Ping(ctx); err != nil {
			s.logger.Warn(ctx, "redis unreachable, caching disabled", logger.Error(err))
			s.cache = nil
		}
	}

	s.aggregator = profile.NewAggregator(
		repository.NewJoinedSource(s.ratings, s.catalog),
		s.profiles,
	)

	engineOpts := []similarity.Option{}
	if cfg.ClusterSeed != 0 {
		engineOpts = append(engineOpts, similarity.WithRand(rand.New(rand.NewSource(cfg.ClusterSeed)))) //nolint:gosec // statistical clustering, not crypto
	}
	s.engine = similarity.NewEngine(s.profiles, s.profiles, s.catalog, engineOpts...)

	s.sched = scheduler.New(s.aggregator, s.profiles, s.ratings,
		scheduler.WithConfig(schedulerConfig(cfg)),
	)

	return s, nil
}

func (s *Service) openStores(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store {
	case "mongo":
		db, err := repository.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fmt.Errorf("open mongo stores: %w", err)
		}
		s.ratings = repository.NewMongoRatingStore(db)
		s.catalog = repository.NewMongoCatalogStore(db)
		s.profiles = repository.NewMongoProfileStore(db)
	default:
		s.ratings = repository.NewMemoryRatingStore()
		s.catalog = repository.NewMemoryCatalogStore()
		s.profiles = repository.NewMemoryProfileStore()
	}
	return nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig()
	if cfg.DebounceWindowMS > 0 {
		sc.DebounceWindow = time.Duration(cfg.DebounceWindowMS) * time.Millisecond
	}
	if cfg.BatchSize > 0 {
		sc.BatchSize = cfg.BatchSize
	}
	sc.RetryCount = cfg.RetryCount
	if cfg.RetryDelayMS > 0 {
		sc.RetryDelay = time.Duration(cfg.RetryDelayMS) * time.Millisecond
	}
	sc.RealTime = cfg.RealTimeUpdates
	sc.Batch = cfg.BatchUpdates
	if cfg.FullUpdateRatio > 0 {
		sc.FullRatio = cfg.FullUpdateRatio
	}
	if cfg.MaxProfileAgeHours > 0 {
		sc.MaxProfileAge = time.Duration(cfg.MaxProfileAgeHours) * time.Hour
	}
	if cfg.RecentRatingsLimit > 0 {
		sc.RecentRatingsLimit = cfg.RecentRatingsLimit
	}
	return sc
}

// Start marks the service running and begins background upkeep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true
	s.startedAt = time.Now()

	go s.systemMetricsLoop()

	s.logger.Info(ctx, "service started",
		logger.String("store", s.cfg.Store),
		logger.Bool("cache", s.cache != nil),
	)
	return nil
}

// Stop cancels pending scheduler timers and releases resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)

	s.sched.Stop()
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn(context.Background(), "cache close failed", logger.Error(err))
		}
	}
	s.logger.Info(context.Background(), "service stopped")
}

func (s *Service) systemMetricsLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}

func profileCacheKey(userID string) string {
	return "profile:" + userID
}

// GenerateProfile recomputes the user's profile from all stored
// ratings and persists it.
func (s *Service) GenerateProfile(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.aggregator.Generate(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	s.cache.SetJSON(ctx, profileCacheKey(userID), p)
	return p, nil
}

// GetProfile returns the stored profile, or a neutral empty profile
// when none has been generated yet.
func (s *Service) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var cached profile.Profile
	if s.cache.GetJSON(ctx, profileCacheKey(userID), &cached) {
		return cached, nil
	}

	p, ok, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if !ok {
		return profile.Empty(userID), nil
	}
	s.cache.SetJSON(ctx, profileCacheKey(userID), p)
	return p, nil
}

// TriggerUpdate routes an update trigger through the scheduler and
// invalidates the cached profile.
func (s *Service) TriggerUpdate(ctx context.Context, trigger model.UpdateTrigger) (scheduler.Result, error) {
	res, err := s.sched.TriggerUpdate(ctx, trigger)
	if err != nil {
		return res, err
	}
	s.cache.Invalidate(ctx, profileCacheKey(trigger.UserID))
	return res, nil
}

// AddRating ingests a rating and schedules a profile update. Only
// writable stores support this.
func (s *Service) AddRating(ctx context.Context, r model.RatingEvent) (model.RatingEvent, error) {
	writer, ok := s.ratings.(RatingWriter)
	if !ok {
		return model.RatingEvent{}, ErrReadOnlyStore
	}

	stored, err := writer.Add(ctx, r)
	if err != nil {
		return model.RatingEvent{}, err
	}

	if _, err := s.TriggerUpdate(ctx, model.UpdateTrigger{
		UserID:    stored.UserID,
		Type:      model.TriggerRatingAdded,
		RatingID:  stored.ID,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Warn(ctx, "rating stored but update trigger failed",
			logger.String("user_id", stored.UserID), logger.Error(err))
	}
	return stored, nil
}

// DeleteRating removes a rating and forces an immediate recompute.
func (s *Service) DeleteRating(ctx context.Context, userID, ratingID string) error {
	writer, ok := s.ratings.(RatingWriter)
	if !ok {
		return ErrReadOnlyStore
	}

	if err := writer.Delete(ctx, userID, ratingID); err != nil {
		return err
	}

	_, err := s.TriggerUpdate(ctx, model.UpdateTrigger{
		UserID:    userID,
		Type:      model.TriggerRatingDeleted,
		RatingID:  ratingID,
		Timestamp: time.Now(),
	})
	return err
}

// UserAffinity returns the 0..1 taste affinity between two users.
func (s *Service) UserAffinity(ctx context.Context, userA, userB string) (float64, error) {
	return s.engine.UserAffinity(ctx, userA, userB)
}

// CoffeeAffinity predicts how well an item matches a user's taste.
func (s *Service) CoffeeAffinity(ctx context.Context, userID, itemID string) (similarity.CoffeeMatch, error) {
	return s.engine.CoffeeAffinity(ctx, userID, itemID)
}

// FindSimilarUsers returns the user's taste neighbors, best first.
func (s *Service) FindSimilarUsers(ctx context.Context, userID string, limit int) ([]similarity.SimilarUser, error) {
	if limit <= 0 || limit > s.cfg.MaxSimilarUsers {
		limit = s.cfg.MaxSimilarUsers
	}
	return s.engine.FindSimilarUsers(ctx, userID, limit)
}

// ClusterUsersByTaste groups confident users into k taste clusters.
func (s *Service) ClusterUsersByTaste(ctx context.Context, k int) ([]similarity.ClusterResult, error) {
	return s.engine.ClusterUsersByTaste(ctx, k)
}

// RefineProfile blends the user's profile with their taste neighbors
// and persists the result.
func (s *Service) RefineProfile(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.engine.RefineWithCollaborativeFiltering(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	s.cache.SetJSON(ctx, profileCacheKey(userID), p)
	return p, nil
}

// QueueStatus reports the scheduler's pending and in-flight work.
func (s *Service) QueueStatus() scheduler.QueueStatus {
	return s.sched.Status()
}

// UpdateHistory returns the user's recent update records, newest first.
func (s *Service) UpdateHistory(userID string) []scheduler.HistoryEntry {
	return s.sched.History(userID)
}

// SchedulerConfig returns the live scheduling policy.
func (s *Service) SchedulerConfig() scheduler.Config {
	return s.sched.Config()
}

// SetSchedulerConfig replaces the scheduling policy at runtime.
func (s *Service) SetSchedulerConfig(cfg scheduler.Config) error {
	return s.sched.SetConfig(cfg)
}

// ProcessPendingUpdates drains queued updates in one batch pass.
func (s *Service) ProcessPendingUpdates(ctx context.Context) (scheduler.BatchOutcome, error) {
	return s.sched.ProcessPendingUpdates(ctx)
}

// FindStaleProfiles lists users whose profiles were last calculated
// before now minus maxAge.
func (s *Service) FindStaleProfiles(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		maxAge = time.Duration(s.cfg.MaxProfileAgeHours) * time.Hour
	}
	return s.profiles.StaleBefore(ctx, time.Now().Add(-maxAge))
}

// BatchUpdateProfiles queues scheduled recomputes for every stale
// profile and reports how many were queued.
func (s *Service) BatchUpdateProfiles(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.FindStaleProfiles(ctx, maxAge)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, userID := range stale {
		if _, err := s.sched.TriggerUpdate(ctx, model.UpdateTrigger{
			UserID:    userID,
			Type:      model.TriggerScheduled,
			Timestamp: time.Now(),
		}); err != nil {
			s.logger.Warn(ctx, "stale profile trigger failed",
				logger.String("user_id", userID), logger.Error(err))
			continue
		}
		s.cache.Invalidate(ctx, profileCacheKey(userID))
		queued++
	}
	return queued, nil
}

// Stats summarizes the running service.
type Stats struct {
	TotalProfiles int                   `json:"total_profiles"`
	Queue         scheduler.QueueStatus `json:"queue"`
	Store         string                `json:"store"`
	CacheEnabled  bool                  `json:"cache_enabled"`
	UptimeSeconds float64               `json:"uptime_seconds"`
}

// GetStats returns operational counters for the admin surface.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	total := s.profiles.Count(ctx)
	metrics.UpdateTotalProfiles(total)

	return Stats{
		TotalProfiles: total,
		Queue:         s.sched.Status(),
		Store:         s.cfg.Store,
		CacheEnabled:  s.cache != nil,
		UptimeSeconds: time.Since(startedAt).Seconds(),
	}
}
