// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
)

// RoastLevel enumerates the roast levels a catalog item can carry.
type RoastLevel string

// Known roast levels.
const (
	RoastLight       RoastLevel = "light"
	RoastMediumLight RoastLevel = "medium_light"
	RoastMedium      RoastLevel = "medium"
	RoastMediumDark  RoastLevel = "medium_dark"
	RoastDark        RoastLevel = "dark"
)

// ProcessMethod enumerates coffee processing methods.
type ProcessMethod string

// Known processing methods.
const (
	ProcessWashed    ProcessMethod = "washed"
	ProcessNatural   ProcessMethod = "natural"
	ProcessHoney     ProcessMethod = "honey"
	ProcessAnaerobic ProcessMethod = "anaerobic"
	ProcessWetHulled ProcessMethod = "wet_hulled"
)

// RatingEvent is a single per-user coffee rating. Owned by the external
// rating store; this engine reads it and never mutates it.
type RatingEvent struct {
	ID      string
	UserID  string
	ItemID  string
	Overall float64 // 1..5

	// Optional sub-scores, one per sensory attribute. A nil entry means
	// the rater did not score that dimension.
	SubScores map[attribute.Attribute]float64

	Note      string
	CreatedAt time.Time
}

// SubScore returns the sub-score for attr and whether it was recorded.
func (r RatingEvent) SubScore(attr attribute.Attribute) (float64, bool) {
	v, ok := r.SubScores[attr]
	return v, ok
}

// ItemMetadata describes a catalog coffee, joined to ratings by ItemID.
type ItemMetadata struct {
	ID            string
	OriginCountry string
	OriginRegion  string
	RoastLevel    RoastLevel
	ProcessMethod ProcessMethod
	FlavorNotes   []string
}

// RatedItem is a rating joined with its item metadata. Ratings whose item
// is missing from the catalog are dropped before aggregation.
type RatedItem struct {
	Rating RatingEvent
	Item   ItemMetadata
}

// TriggerType classifies why a profile update was requested.
type TriggerType string

// Trigger types accepted by the update scheduler.
const (
	TriggerRatingAdded   TriggerType = "rating_added"
	TriggerRatingUpdated TriggerType = "rating_updated"
	TriggerRatingDeleted TriggerType = "rating_deleted"
	TriggerManual        TriggerType = "manual"
	TriggerScheduled     TriggerType = "scheduled"
)

// Immediate reports whether this trigger type bypasses the debounce window.
func (t TriggerType) Immediate() bool {
	return t == TriggerManual || t == TriggerRatingDeleted
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerRatingAdded, TriggerRatingUpdated, TriggerRatingDeleted, TriggerManual, TriggerScheduled:
		return true
	}
	return false
}

// UpdateTrigger is a transient change notification for one user's profile.
// At most one trigger per user is pending at a time; a newer trigger for
// the same user replaces the older one.
type UpdateTrigger struct {
	UserID    string
	Type      TriggerType
	RatingID  string
	Metadata  map[string]string
	Timestamp time.Time
}
