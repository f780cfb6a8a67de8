// Package profile defines the taste-profile document and the aggregation
// engine that derives it from a user's rating history.
package profile

import (
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
)

// Score bounds shared by every preference and confidence value.
const (
	MinScore     = 0.0
	MaxScore     = 100.0
	NeutralScore = 50.0
)

// MaxFlavorProfiles caps the flavor preference list kept on a profile.
const MaxFlavorProfiles = 20

// AttributePreference holds the derived preference for one sensory attribute.
type AttributePreference struct {
	Attribute       attribute.Attribute `json:"attribute"`
	PreferenceScore float64             `json:"preference_score"` // 0..100
	Confidence      float64             `json:"confidence"`       // 0..100
	AverageRating   float64             `json:"average_rating"`   // mean raw sub-score
	SampleCount     int                 `json:"sample_count"`
}

// NeutralAttribute returns the no-data default for attr: neutral score,
// zero confidence.
func NeutralAttribute(attr attribute.Attribute) AttributePreference {
	return AttributePreference{
		Attribute:       attr,
		PreferenceScore: NeutralScore,
		Confidence:      0,
	}
}

// FlavorPreference holds the derived preference for one flavor note.
type FlavorPreference struct {
	Note            string  `json:"note"`
	Frequency       int     `json:"frequency"`
	PreferenceScore float64 `json:"preference_score"` // 0..100
	AverageRating   float64 `json:"average_rating"`   // mean overall score
}

// CharacteristicPreference holds frequency and average overall score for
// one characteristic value (a roast level, an origin, or a process
// method). Region is only set on origin entries, and only when every
// rating for that country named the same region.
type CharacteristicPreference struct {
	Key           string  `json:"key"`
	Region        string  `json:"region,omitempty"`
	Frequency     int     `json:"frequency"`
	AverageRating float64 `json:"average_rating"`
}

// ScoreBucket is one histogram cell of the overall-score distribution.
type ScoreBucket struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TrendEntry summarizes ratings inside one rolling window.
type TrendEntry struct {
	WindowDays    int     `json:"window_days"`
	AverageRating float64 `json:"average_rating"`
	Count         int     `json:"count"`
}

// RatingPatterns captures behavioral rating statistics.
type RatingPatterns struct {
	Histogram            map[int]ScoreBucket `json:"histogram"`
	AverageOverallRating float64             `json:"average_overall_rating"`
	RatingVariance       float64             `json:"rating_variance"`
	MostActiveHour       *int                `json:"most_active_hour,omitempty"` // 0..23
	MostActiveDay        *time.Weekday       `json:"most_active_day,omitempty"`
	Trends               []TrendEntry        `json:"trends"`
}

// Profile is the derived taste profile for one user. Exactly one profile
// exists per user id; a profile computed from zero ratings is a valid
// empty state, not absence.
type Profile struct {
	UserID string `json:"user_id"`

	Attributes     [attribute.Count]AttributePreference `json:"preferred_attributes"`
	FlavorProfiles []FlavorPreference                   `json:"preferred_flavor_profiles"`
	RoastLevels    []CharacteristicPreference           `json:"preferred_roast_levels"`
	Origins        []CharacteristicPreference           `json:"preferred_origins"`
	ProcessMethods []CharacteristicPreference           `json:"preferred_process_methods"`
	Patterns       RatingPatterns                       `json:"rating_patterns"`

	TotalRatings   int       `json:"total_ratings"`
	LastRatingAt   time.Time `json:"last_rating_at"`
	Confidence     float64   `json:"profile_confidence"` // 0..100
	LastCalculated time.Time `json:"last_calculated"`
}

// Empty returns the neutral default profile for userID: every attribute
// at the neutral score with zero confidence, empty preference lists, and
// zero profile confidence.
func Empty(userID string) Profile {
	p := Profile{
		UserID: userID,
		Patterns: RatingPatterns{
			Histogram: map[int]ScoreBucket{},
		},
	}
	for i, attr := range attribute.All() {
		p.Attributes[i] = NeutralAttribute(attr)
	}
	return p
}

// AttributeVector returns the nine preference scores in canonical order.
// Every profile has a full-length vector; missing data is neutral.
func (p *Profile) AttributeVector() [attribute.Count]float64 {
	var v [attribute.Count]float64
	for i := range p.Attributes {
		v[i] = p.Attributes[i].PreferenceScore
	}
	return v
}

// FlavorSet returns the set of flavor notes present on the profile.
func (p *Profile) FlavorSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.FlavorProfiles))
	for _, f := range p.FlavorProfiles {
		set[f.Note] = struct{}{}
	}
	return set
}
