// Package repository defines the store interfaces the profile engine
// consumes and their in-memory and MongoDB implementations. Ratings and
// catalog items are externally owned; the engine only reads them. The
// profile store is owned by the engine and keyed by user id.
package repository

import (
	"context"
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
)

// RatingStore reads rating events. Implementations never expose mutation
// to the engine beyond what the external ingestion layer performs.
type RatingStore interface {
	// ByUser returns all of the user's ratings, newest first.
	ByUser(ctx context.Context, userID string) ([]model.RatingEvent, error)

	// RecentByUser returns up to limit of the user's newest ratings,
	// newest first.
	RecentByUser(ctx context.Context, userID string, limit int) ([]model.RatingEvent, error)
}

// CatalogStore resolves item metadata by id.
type CatalogStore interface {
	// Item returns the item and whether it exists.
	Item(ctx context.Context, itemID string) (model.ItemMetadata, bool, error)
}

// ProfileStore reads and writes taste profiles. Exactly one profile
// exists per user id; Upsert replaces the whole document atomically.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (profile.Profile, bool, error)
	Upsert(ctx context.Context, p profile.Profile) error
	All(ctx context.Context) ([]profile.Profile, error)
	Count(ctx context.Context) int

	// StaleBefore returns ids of profiles whose LastCalculated precedes
	// cutoff.
	StaleBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// JoinedSource joins ratings with catalog metadata for aggregation.
// Ratings whose item is missing from the catalog are dropped, not errors.
type JoinedSource struct {
	ratings RatingStore
	catalog CatalogStore
}

// NewJoinedSource builds the rating-to-item join used by the aggregator.
func NewJoinedSource(ratings RatingStore, catalog CatalogStore) *JoinedSource {
	return &JoinedSource{ratings: ratings, catalog: catalog}
}

// RatedItemsByUser returns the user's ratings joined with item metadata,
// newest first.
func (j *JoinedSource) RatedItemsByUser(ctx context.Context, userID string) ([]model.RatedItem, error) {
	ratings, err := j.ratings.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]model.RatedItem, 0, len(ratings))
	for _, r := range ratings {
		item, ok, err := j.catalog.Item(ctx, r.ItemID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, model.RatedItem{Rating: r, Item: item})
	}
	return out, nil
}
