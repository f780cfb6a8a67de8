package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// Collaborative-filtering blend parameters.
const (
	refineNeighborLimit  = 20
	ownWeight            = 0.6
	neighborWeightFactor = 0.4
	flavorOwnDiscount    = 0.6
	flavorIntroThreshold = 70.0
	flavorDropThreshold  = 30.0
	refineMaxFlavors     = 25
	refineConfidenceGain = 10.0
)

// RefineWithCollaborativeFiltering blends a user's attribute and flavor
// preferences with those of their nearest neighbors and persists the
// blended profile as an update. A user without a profile or without any
// similar users is returned unchanged.
func (e *Engine) RefineWithCollaborativeFiltering(ctx context.Context, userID string) (profile.Profile, error) {
	own, ok, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if !ok {
		return profile.Empty(userID), nil
	}

	neighbors, err := e.FindSimilarUsers(ctx, userID, refineNeighborLimit)
	if err != nil {
		return profile.Profile{}, err
	}
	if len(neighbors) == 0 {
		return own, nil
	}

	neighborProfiles := make([]profile.Profile, 0, len(neighbors))
	affinities := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		np, ok, err := e.profiles.Get(ctx, n.UserID)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("load neighbor %s: %w", n.UserID, err)
		}
		if !ok {
			// Neighbor vanished between the scan and this read; skip it.
			continue
		}
		neighborProfiles = append(neighborProfiles, np)
		affinities = append(affinities, n.Affinity)
	}
	if len(neighborProfiles) == 0 {
		return own, nil
	}

	blendAttributes(&own, neighborProfiles, affinities)
	own.FlavorProfiles = blendFlavors(&own, neighborProfiles, affinities)
	own.LastCalculated = time.Now()

	if err := e.writer.Upsert(ctx, own); err != nil {
		return profile.Profile{}, fmt.Errorf("persist refined profile %s: %w", userID, err)
	}

	metrics.RecordProfileRefined()
	e.log.Debug(ctx, "profile refined",
		logger.String("userID", userID),
		logger.Int("neighbors", len(neighborProfiles)),
	)

	return own, nil
}

// blendAttributes mixes each attribute score with a similarity-weighted
// average of the neighbors' matching attributes, then bumps each entry's
// confidence.
func blendAttributes(own *profile.Profile, neighbors []profile.Profile, affinities []float64) {
	for i := range own.Attributes {
		weighted := own.Attributes[i].PreferenceScore * ownWeight
		totalWeight := ownWeight

		for n := range neighbors {
			w := neighborWeightFactor * affinities[n]
			weighted += neighbors[n].Attributes[i].PreferenceScore * w
			totalWeight += w
		}

		own.Attributes[i].PreferenceScore = weighted / totalWeight
		own.Attributes[i].Confidence = math.Min(profile.MaxScore, own.Attributes[i].Confidence+refineConfidenceGain)
	}
}

// blendFlavors starts from the user's own flavor map discounted to 60%,
// folds in neighbor contributions, introduces strongly-liked neighbor
// flavors, and drops weak entries.
func blendFlavors(own *profile.Profile, neighbors []profile.Profile, affinities []float64) []profile.FlavorPreference {
	blended := make(map[string]profile.FlavorPreference, len(own.FlavorProfiles))
	var order []string
	for _, f := range own.FlavorProfiles {
		f.PreferenceScore *= flavorOwnDiscount
		blended[f.Note] = f
		order = append(order, f.Note)
	}

	for n := range neighbors {
		w := neighborWeightFactor * affinities[n]
		for _, nf := range neighbors[n].FlavorProfiles {
			if existing, ok := blended[nf.Note]; ok {
				existing.PreferenceScore = math.Min(profile.MaxScore, existing.PreferenceScore+nf.PreferenceScore*w)
				blended[nf.Note] = existing
				continue
			}
			if nf.PreferenceScore > flavorIntroThreshold {
				blended[nf.Note] = profile.FlavorPreference{
					Note:            nf.Note,
					PreferenceScore: math.Min(profile.MaxScore, nf.PreferenceScore*w),
					AverageRating:   nf.AverageRating,
				}
				order = append(order, nf.Note)
			}
		}
	}

	out := make([]profile.FlavorPreference, 0, len(blended))
	for _, note := range order {
		f := blended[note]
		if f.PreferenceScore <= flavorDropThreshold {
			continue
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PreferenceScore > out[j].PreferenceScore
	})
	if len(out) > refineMaxFlavors {
		out = out[:refineMaxFlavors]
	}
	return out
}
