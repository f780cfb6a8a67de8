// Package scheduler decides when and how a user's taste profile is
// recomputed as rating mutations arrive. It owns the per-user debounce
// queue, the processing set, and the update history behind one mutex;
// there is no process-wide state.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// UpdateType is the resolved kind of a profile recomputation.
type UpdateType string

// Resolved update types.
const (
	UpdateFull    UpdateType = "full"
	UpdatePartial UpdateType = "partial"
	UpdateSkipped UpdateType = "skipped"
	UpdateFailed  UpdateType = "failed"
)

// Aggregator performs a full profile recomputation.
type Aggregator interface {
	Generate(ctx context.Context, userID string) (profile.Profile, error)
}

// ProfileStore reads and writes stored profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (profile.Profile, bool, error)
	Upsert(ctx context.Context, p profile.Profile) error
}

// RatingStore reads rating events for scheduling decisions.
type RatingStore interface {
	// RecentByUser returns up to limit of the user's newest ratings,
	// newest first.
	RecentByUser(ctx context.Context, userID string, limit int) ([]model.RatingEvent, error)
}

// Config is the runtime-mutable scheduler policy.
type Config struct {
	// DebounceWindow delays non-immediate triggers so bursts collapse.
	DebounceWindow time.Duration
	// BatchSize bounds how many users one ProcessPendingUpdates pass
	// handles before yielding; <=0 means no bound.
	BatchSize int
	// RetryCount and RetryDelay govern re-attempts of a failed run.
	RetryCount int
	RetryDelay time.Duration
	// RealTime enables debounce timers; when false, triggers sit in the
	// queue until ProcessPendingUpdates drains them.
	RealTime bool
	// Batch enables ProcessPendingUpdates.
	Batch bool
	// FullRatio is the new-rating fraction above which a partial update
	// is promoted to a full recomputation.
	FullRatio float64
	// MaxProfileAge promotes to a full recomputation once LastCalculated
	// is older than this.
	MaxProfileAge time.Duration
	// RecentRatingsLimit caps how many ratings a classification loads.
	RecentRatingsLimit int
}

// DefaultConfig returns the stock scheduling policy.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:     5 * time.Second,
		BatchSize:          50,
		RetryCount:         0,
		RetryDelay:         time.Second,
		RealTime:           true,
		Batch:              true,
		FullRatio:          0.2,
		MaxProfileAge:      168 * time.Hour,
		RecentRatingsLimit: 100,
	}
}

// Result tells a trigger's caller what happened to it. Callers must not
// block a user-facing response on this.
type Result struct {
	Queued    bool   `json:"queued"`
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason"`
}

// BatchOutcome tallies one batch run.
type BatchOutcome struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// pendingEntry is the single debounced trigger for a user. A newer
// trigger replaces it wholesale; earlier metadata is discarded.
type pendingEntry struct {
	trigger model.UpdateTrigger
	timer   *time.Timer // nil when real-time updates are off
}

// Scheduler coordinates profile recomputation per user.
type Scheduler struct {
	mu         sync.Mutex
	pending    map[string]*pendingEntry
	processing map[string]struct{}
	history    map[string]*historyRing
	cfg        Config
	stopped    bool

	aggregator Aggregator
	profiles   ProfileStore
	ratings    RatingStore

	now func() time.Time
	log logger.Logger
}

// New creates a scheduler over the given aggregator and stores.
func New(aggregator Aggregator, profiles ProfileStore, ratings RatingStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		pending:    make(map[string]*pendingEntry),
		processing: make(map[string]struct{}),
		history:    make(map[string]*historyRing),
		cfg:        DefaultConfig(),
		aggregator: aggregator,
		profiles:   profiles,
		ratings:    ratings,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logger.Get().Named("scheduler")
	}

	return s
}

// Stop cancels all pending debounce timers. In-flight runs finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for userID, entry := range s.pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.pending, userID)
	}
	metrics.UpdateQueueSize(0)
}

// Config returns a snapshot of the current policy.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the runtime policy. Invalid values are rejected.
func (s *Scheduler) SetConfig(cfg Config) error {
	if cfg.DebounceWindow <= 0 {
		return fmt.Errorf("%w: debounce window must be positive", ErrInvalidConfig)
	}
	if cfg.FullRatio <= 0 || cfg.FullRatio > 1 {
		return fmt.Errorf("%w: full ratio must be in (0,1]", ErrInvalidConfig)
	}
	if cfg.MaxProfileAge <= 0 {
		return fmt.Errorf("%w: max profile age must be positive", ErrInvalidConfig)
	}
	if cfg.RecentRatingsLimit <= 0 {
		return fmt.Errorf("%w: recent ratings limit must be positive", ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// TriggerUpdate submits a change notification for a user. Manual and
// rating-deleted triggers run synchronously; everything else is debounced
// with last-trigger-wins semantics.
func (s *Scheduler) TriggerUpdate(ctx context.Context, trigger model.UpdateTrigger) (Result, error) {
	if trigger.UserID == "" {
		return Result{}, ErrInvalidUserID
	}
	if !trigger.Type.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger.Type)
	}
	if trigger.Timestamp.IsZero() {
		trigger.Timestamp = s.now()
	}

	metrics.RecordUpdateTrigger(string(trigger.Type))

	if trigger.Type.Immediate() {
		s.cancelPending(trigger.UserID)
		if err := s.dispatch(ctx, trigger); err != nil {
			return Result{Immediate: true, Reason: "update failed"}, err
		}
		return Result{Immediate: true, Reason: "immediate trigger"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Result{}, ErrStopped
	}

	if existing, ok := s.pending[trigger.UserID]; ok {
		// Last trigger wins; the earlier one and its timer are discarded.
		if existing.timer != nil {
			existing.timer.Stop()
		}
		metrics.RecordTriggerCollapsed()
	}

	entry := &pendingEntry{trigger: trigger}
	if s.cfg.RealTime {
		userID := trigger.UserID
		entry.timer = time.AfterFunc(s.cfg.DebounceWindow, func() {
			s.fire(userID)
		})
		s.pending[userID] = entry
		metrics.UpdateQueueSize(len(s.pending))
		return Result{Queued: true, Reason: "debounced"}, nil
	}

	s.pending[trigger.UserID] = entry
	metrics.UpdateQueueSize(len(s.pending))
	return Result{Queued: true, Reason: "queued for batch"}, nil
}

// fire runs when a user's debounce timer expires.
func (s *Scheduler) fire(userID string) {
	s.mu.Lock()
	entry, ok := s.pending[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, userID)
	metrics.UpdateQueueSize(len(s.pending))
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.dispatch(ctx, entry.trigger); err != nil {
		// Debounced callers are gone; the history entry carries the error.
		s.log.Error(ctx, "debounced update failed",
			logger.String("userID", userID),
			logger.Time("triggered_at", entry.trigger.Timestamp),
			logger.Error(err),
		)
	}
}

// cancelPending drops any queued trigger for userID.
func (s *Scheduler) cancelPending(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.pending[userID]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.pending, userID)
		metrics.UpdateQueueSize(len(s.pending))
	}
}

// dispatch executes one trigger, guarding against re-entrant processing
// for the same user.
func (s *Scheduler) dispatch(ctx context.Context, trigger model.UpdateTrigger) error {
	s.mu.Lock()
	if _, busy := s.processing[trigger.UserID]; busy {
		s.mu.Unlock()
		// Re-entrant update attempt; deduplicated, not an error.
		metrics.RecordTriggerDropped()
		s.log.Debug(ctx, "user already processing, dropping trigger",
			logger.String("userID", trigger.UserID),
			logger.String("trigger", string(trigger.Type)),
		)
		return nil
	}
	s.processing[trigger.UserID] = struct{}{}
	metrics.UpdateProcessingCount(len(s.processing))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.processing, trigger.UserID)
		metrics.UpdateProcessingCount(len(s.processing))
		s.mu.Unlock()
	}()

	cfg := s.Config()

	var updateType UpdateType
	var outcome string
	var err error
	for attempt := 0; ; attempt++ {
		updateType, outcome, err = s.process(ctx, trigger, cfg)
		if err == nil || attempt >= cfg.RetryCount {
			break
		}
		s.log.Warn(ctx, "update attempt failed, retrying",
			logger.String("userID", trigger.UserID),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			err = fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(cfg.RetryDelay):
			continue
		}
		break
	}

	if err != nil {
		updateType = UpdateFailed
		outcome = err.Error()
	}

	metrics.RecordProfileUpdate(string(updateType))
	s.recordHistory(trigger, updateType, outcome)

	if err != nil {
		return fmt.Errorf("update %s: %w", trigger.UserID, err)
	}
	return nil
}

// process classifies and executes a single recomputation.
func (s *Scheduler) process(ctx context.Context, trigger model.UpdateTrigger, cfg Config) (UpdateType, string, error) {
	current, hasProfile, err := s.profiles.Get(ctx, trigger.UserID)
	if err != nil {
		return UpdateFailed, "", fmt.Errorf("load profile: %w", err)
	}

	recent, err := s.ratings.RecentByUser(ctx, trigger.UserID, cfg.RecentRatingsLimit)
	if err != nil {
		return UpdateFailed, "", fmt.Errorf("load ratings: %w", err)
	}

	newRatings := ratingsSince(recent, current.LastCalculated)

	switch {
	case !hasProfile:
		// First contact with this user: always a full build.
	case s.needsFull(&current, len(newRatings), cfg):
		// Staleness wins over skipping: an expired profile rebuilds even
		// when no new ratings arrived.
	case len(newRatings) == 0:
		return UpdateSkipped, "no ratings newer than last calculation", nil
	default:
		if err := s.applyPartial(ctx, &current, newRatings); err != nil {
			return UpdateFailed, "", err
		}
		return UpdatePartial, fmt.Sprintf("patched %d new ratings", len(newRatings)), nil
	}

	p, err := s.aggregator.Generate(ctx, trigger.UserID)
	if err != nil {
		return UpdateFailed, "", err
	}
	return UpdateFull, fmt.Sprintf("recomputed from %d ratings", p.TotalRatings), nil
}

// needsFull reports whether the staleness policy demands a full rebuild.
func (s *Scheduler) needsFull(current *profile.Profile, newCount int, cfg Config) bool {
	if current.TotalRatings == 0 {
		return true
	}
	if float64(newCount)/float64(current.TotalRatings) > cfg.FullRatio {
		return true
	}
	return s.now().Sub(current.LastCalculated) > cfg.MaxProfileAge
}

// applyPartial patches counts, the last rating date, and the incremental
// overall mean, leaving attribute/flavor/characteristic preferences
// untouched until the next full recomputation.
func (s *Scheduler) applyPartial(ctx context.Context, current *profile.Profile, newRatings []model.RatingEvent) error {
	oldCount := current.TotalRatings
	var sum float64
	for _, r := range newRatings {
		sum += r.Overall
		if r.CreatedAt.After(current.LastRatingAt) {
			current.LastRatingAt = r.CreatedAt
		}
	}

	newCount := len(newRatings)
	oldAvg := current.Patterns.AverageOverallRating
	current.Patterns.AverageOverallRating = (oldAvg*float64(oldCount) + sum) / float64(oldCount+newCount)
	current.TotalRatings = oldCount + newCount
	current.LastCalculated = s.now()

	if err := s.profiles.Upsert(ctx, *current); err != nil {
		return fmt.Errorf("persist partial update: %w", err)
	}
	return nil
}

// ProcessPendingUpdates synchronously drains the queue, continuing past
// individual failures. Timers for drained entries are cancelled.
func (s *Scheduler) ProcessPendingUpdates(ctx context.Context) (BatchOutcome, error) {
	cfg := s.Config()
	if !cfg.Batch {
		return BatchOutcome{}, ErrBatchDisabled
	}

	start := time.Now()

	s.mu.Lock()
	drained := make([]model.UpdateTrigger, 0, len(s.pending))
	for userID, entry := range s.pending {
		if cfg.BatchSize > 0 && len(drained) >= cfg.BatchSize {
			break
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		drained = append(drained, entry.trigger)
		delete(s.pending, userID)
	}
	metrics.UpdateQueueSize(len(s.pending))
	s.mu.Unlock()

	outcome := BatchOutcome{Failures: make(map[string]string)}
	for _, trigger := range drained {
		outcome.Processed++
		if err := s.dispatch(ctx, trigger); err != nil {
			outcome.Failed++
			outcome.Failures[trigger.UserID] = err.Error()
			continue
		}
		outcome.Succeeded++
	}

	s.log.Info(ctx, "batch update pass complete",
		logger.Int("processed", outcome.Processed),
		logger.Int("failed", outcome.Failed),
		logger.Duration("elapsed", time.Since(start)),
	)

	return outcome, nil
}

// ratingsSince returns ratings created strictly after cutoff. A zero
// cutoff (never calculated) keeps everything.
func ratingsSince(ratings []model.RatingEvent, cutoff time.Time) []model.RatingEvent {
	out := make([]model.RatingEvent, 0, len(ratings))
	for _, r := range ratings {
		if cutoff.IsZero() || r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
