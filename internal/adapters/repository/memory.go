package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/metrics"
)

// MemoryRatingStore implements RatingStore over process memory. It doubles
// as the ingestion surface in single-process deployments and in tests.
type MemoryRatingStore struct {
	mu     sync.RWMutex
	byUser map[string][]model.RatingEvent
}

// NewMemoryRatingStore creates an empty in-memory rating store.
func NewMemoryRatingStore() *MemoryRatingStore {
	return &MemoryRatingStore{byUser: make(map[string][]model.RatingEvent)}
}

// Add stores a rating, assigning an id when the caller left it empty, and
// returns the stored event.
func (s *MemoryRatingStore) Add(ctx context.Context, r model.RatingEvent) (model.RatingEvent, error) {
	if r.UserID == "" || r.ItemID == "" {
		return model.RatingEvent{}, ErrInvalidRecord
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[r.UserID] = append(s.byUser[r.UserID], r)
	return r, nil
}

// Delete removes a rating by id, mirroring the external delete path.
func (s *MemoryRatingStore) Delete(ctx context.Context, userID, ratingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := s.byUser[userID]
	for i, r := range ratings {
		if r.ID == ratingID {
			s.byUser[userID] = append(ratings[:i], ratings[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ByUser returns all ratings for a user, newest first.
func (s *MemoryRatingStore) ByUser(ctx context.Context, userID string) ([]model.RatingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ratings := s.byUser[userID]
	out := make([]model.RatingEvent, len(ratings))
	copy(out, ratings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RecentByUser returns up to limit newest ratings for a user.
func (s *MemoryRatingStore) RecentByUser(ctx context.Context, userID string, limit int) ([]model.RatingEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	all, err := s.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MemoryCatalogStore implements CatalogStore over process memory.
type MemoryCatalogStore struct {
	mu    sync.RWMutex
	items map[string]model.ItemMetadata
}

// NewMemoryCatalogStore creates an empty in-memory catalog.
func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{items: make(map[string]model.ItemMetadata)}
}

// Put stores or replaces an item.
func (s *MemoryCatalogStore) Put(ctx context.Context, item model.ItemMetadata) error {
	if item.ID == "" {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

// Item returns the item and whether it exists.
func (s *MemoryCatalogStore) Item(ctx context.Context, itemID string) (model.ItemMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	return item, ok, nil
}

// MemoryProfileStore implements ProfileStore over process memory.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]profile.Profile)}
}

// Get returns the profile for userID and whether one exists.
func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (profile.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok, nil
}

// Upsert replaces the whole profile document for its user id.
func (s *MemoryProfileStore) Upsert(ctx context.Context, p profile.Profile) error {
	if p.UserID == "" {
		return ErrInvalidRecord
	}

	start := time.Now()
	s.mu.Lock()
	s.profiles[p.UserID] = p
	count := len(s.profiles)
	s.mu.Unlock()

	metrics.RecordStoreLatency("profile_upsert", float64(time.Since(start).Milliseconds()))
	metrics.UpdateTotalProfiles(count)
	return nil
}

// All returns a snapshot of every stored profile.
func (s *MemoryProfileStore) All(ctx context.Context) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	// Stable order keeps scans deterministic for tests and candidate caps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// Count returns the number of stored profiles.
func (s *MemoryProfileStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// StaleBefore returns ids of profiles last calculated before cutoff.
func (s *MemoryProfileStore) StaleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for userID, p := range s.profiles {
		if p.LastCalculated.Before(cutoff) {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}
