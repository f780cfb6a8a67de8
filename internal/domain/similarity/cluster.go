package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// Clustering parameters.
const (
	clusterMinConfidence   = 40.0
	clusterMinRatings      = 10
	clusterMaxIterations   = 50
	clusterConvergenceStep = 1.0 // max centroid displacement to stop early
	clusterTopFlavors      = 5
	clusterTopOrigins      = 5
	clusterTopRoasts       = 3
)

// ClusterResult describes one non-empty taste cluster.
type ClusterResult struct {
	ID              int                           `json:"id"`
	Members         []string                      `json:"members"`
	Centroid        []profile.AttributePreference `json:"centroid"`
	Cohesion        float64                       `json:"cohesion"` // 0..1
	DominantFlavors []string                      `json:"dominant_flavors"`
	DominantOrigins []string                      `json:"dominant_origins"`
	DominantRoasts  []string                      `json:"dominant_roasts"`
}

// ClusterUsersByTaste partitions eligible users into k taste clusters
// using iterative refinement over their attribute vectors. A population
// smaller than k yields an empty result, not an error.
func (e *Engine) ClusterUsersByTaste(ctx context.Context, k int) ([]ClusterResult, error) {
	if k <= 0 {
		return nil, nil
	}

	all, err := e.profiles.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}

	eligible := make([]profile.Profile, 0, len(all))
	for _, p := range all {
		if p.Confidence >= clusterMinConfidence && p.TotalRatings >= clusterMinRatings {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) < k {
		e.log.Debug(ctx, "clustering skipped, population below k",
			logger.Int("eligible", len(eligible)),
			logger.Int("k", k),
		)
		return nil, nil
	}

	start := time.Now()

	vectors := make([][attribute.Count]float64, len(eligible))
	for i := range eligible {
		vectors[i] = eligible[i].AttributeVector()
	}

	// Random centroid initialization in score space.
	centroids := make([][attribute.Count]float64, k)
	for i := range centroids {
		for d := 0; d < attribute.Count; d++ {
			centroids[i][d] = e.rng.Float64() * profile.MaxScore
		}
	}

	assignments := make([]int, len(vectors))
	iterations := 0
	for ; iterations < clusterMaxIterations; iterations++ {
		// Assign every vector to its nearest centroid.
		for i := range vectors {
			best, bestDist := 0, math.MaxFloat64
			for c := range centroids {
				if d := euclidean(vectors[i], centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			assignments[i] = best
		}

		// Recompute centroids; empty clusters fall back to neutral.
		var maxShift float64
		for c := range centroids {
			var sum [attribute.Count]float64
			var count int
			for i := range vectors {
				if assignments[i] != c {
					continue
				}
				for d := 0; d < attribute.Count; d++ {
					sum[d] += vectors[i][d]
				}
				count++
			}

			var next [attribute.Count]float64
			if count == 0 {
				for d := 0; d < attribute.Count; d++ {
					next[d] = profile.NeutralScore
				}
			} else {
				for d := 0; d < attribute.Count; d++ {
					next[d] = sum[d] / float64(count)
				}
			}

			if shift := euclidean(centroids[c], next); shift > maxShift {
				maxShift = shift
			}
			centroids[c] = next
		}

		if maxShift <= clusterConvergenceStep {
			iterations++
			break
		}
	}

	results := make([]ClusterResult, 0, k)
	for c := range centroids {
		var members []profile.Profile
		var distSum float64
		for i := range vectors {
			if assignments[i] != c {
				continue
			}
			members = append(members, eligible[i])
			distSum += euclidean(vectors[i], centroids[c])
		}
		if len(members) == 0 {
			continue
		}

		memberIDs := make([]string, len(members))
		for i, m := range members {
			memberIDs[i] = m.UserID
		}

		centroid := make([]profile.AttributePreference, attribute.Count)
		for d, attr := range attribute.All() {
			centroid[d] = profile.AttributePreference{
				Attribute:       attr,
				PreferenceScore: centroids[c][d],
			}
		}

		meanDist := distSum / float64(len(members))
		results = append(results, ClusterResult{
			ID:              c,
			Members:         memberIDs,
			Centroid:        centroid,
			Cohesion:        math.Max(0, 1-meanDist/100),
			DominantFlavors: dominantFlavors(members, clusterTopFlavors),
			DominantOrigins: dominantCharacteristics(members, originsOf, clusterTopOrigins),
			DominantRoasts:  dominantCharacteristics(members, roastsOf, clusterTopRoasts),
		})
	}

	metrics.RecordClusteringRun(iterations, float64(time.Since(start).Milliseconds()))
	e.log.Info(ctx, "clustering complete",
		logger.Int("k", k),
		logger.Int("eligible", len(eligible)),
		logger.Int("iterations", iterations),
		logger.Int("clusters", len(results)),
	)

	return results, nil
}

func euclidean(a, b [attribute.Count]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// dominantFlavors returns the n most frequent flavor notes across the
// member profiles, most frequent first.
func dominantFlavors(members []profile.Profile, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		for _, f := range m.FlavorProfiles {
			if _, ok := counts[f.Note]; !ok {
				order = append(order, f.Note)
			}
			counts[f.Note]++
		}
	}
	return topKeys(counts, order, n)
}

func originsOf(p profile.Profile) []profile.CharacteristicPreference { return p.Origins }
func roastsOf(p profile.Profile) []profile.CharacteristicPreference  { return p.RoastLevels }

func dominantCharacteristics(members []profile.Profile, get func(profile.Profile) []profile.CharacteristicPreference, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		for _, c := range get(m) {
			if _, ok := counts[c.Key]; !ok {
				order = append(order, c.Key)
			}
			counts[c.Key]++
		}
	}
	return topKeys(counts, order, n)
}

// topKeys returns up to n keys ordered by descending count, first-seen
// order breaking ties.
func topKeys(counts map[string]int, order []string, n int) []string {
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}
