// Package similarity computes user-to-user and user-to-item affinity,
// nearest-neighbor search, taste clustering, and collaborative profile
// refinement over stored taste profiles.
package similarity

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// Affinity combination weights. The formula is an ad hoc weighted sum kept
// for behavioral compatibility; symmetry holds only because both inputs
// feed it symmetrically.
const (
	attributeWeight      = 0.40
	flavorWeight         = 0.35
	characteristicWeight = 0.25
)

// Coffee-affinity factor weights.
const (
	roastFactorWeight   = 0.30
	originFactorWeight  = 0.25
	flavorFactorWeight  = 0.35
	processFactorWeight = 0.10
)

// Candidate filters for neighbor search.
const (
	neighborMinConfidence = 30.0
	neighborMinRatings    = 5
	neighborCandidateCap  = 100
	neighborMinAffinity   = 0.1
	sharedAttributeDelta  = 20.0
)

// ProfileReader exposes read access to stored profiles. Reads are
// snapshots; a profile changing underneath a scan is tolerated.
type ProfileReader interface {
	// Get returns the profile for userID and whether one exists.
	Get(ctx context.Context, userID string) (profile.Profile, bool, error)

	// All returns every stored profile.
	All(ctx context.Context) ([]profile.Profile, error)
}

// ProfileWriter persists refined profiles.
type ProfileWriter interface {
	Upsert(ctx context.Context, p profile.Profile) error
}

// CatalogReader resolves item metadata for coffee affinity.
type CatalogReader interface {
	Item(ctx context.Context, itemID string) (model.ItemMetadata, bool, error)
}

// SimilarUser is one neighbor result from FindSimilarUsers.
type SimilarUser struct {
	UserID           string                `json:"user_id"`
	Affinity         float64               `json:"affinity"`
	SharedAttributes []attribute.Attribute `json:"shared_attributes"`
}

// CoffeeMatch is the result of a user-to-item affinity query.
type CoffeeMatch struct {
	Score           float64  `json:"score"` // 0..1
	MatchingFactors []string `json:"matching_factors"`
	Confidence      float64  `json:"confidence"` // 0..100
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRand sets the random source used for clustering initialization,
// making cluster runs reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Engine computes affinity and clustering over stored profiles.
type Engine struct {
	profiles ProfileReader
	writer   ProfileWriter
	catalog  CatalogReader
	rng      *rand.Rand
	log      logger.Logger
}

// NewEngine creates a similarity engine over the given stores.
func NewEngine(profiles ProfileReader, writer ProfileWriter, catalog CatalogReader, opts ...Option) *Engine {
	e := &Engine{
		profiles: profiles,
		writer:   writer,
		catalog:  catalog,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // statistical clustering, not crypto
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logger.Get().Named("similarity")
	}

	return e
}

// UserAffinity returns the 0..1 affinity between two users. Missing
// profiles yield 0; comparing a user with themselves is rejected.
func (e *Engine) UserAffinity(ctx context.Context, userA, userB string) (float64, error) {
	if userA == userB {
		return 0, fmt.Errorf("%w: %s", ErrSelfComparison, userA)
	}

	pa, okA, err := e.profiles.Get(ctx, userA)
	if err != nil {
		return 0, fmt.Errorf("load profile %s: %w", userA, err)
	}
	pb, okB, err := e.profiles.Get(ctx, userB)
	if err != nil {
		return 0, fmt.Errorf("load profile %s: %w", userB, err)
	}
	if !okA || !okB {
		return 0, nil
	}

	metrics.RecordAffinityQuery("user")
	return profileAffinity(&pa, &pb), nil
}

// profileAffinity combines attribute cosine, flavor Jaccard, and
// characteristic Jaccard similarities, scaled by the lower of the two
// profile confidences.
func profileAffinity(a, b *profile.Profile) float64 {
	va, vb := a.AttributeVector(), b.AttributeVector()
	sum := attributeWeight*cosine(va[:], vb[:]) +
		flavorWeight*jaccard(a.FlavorSet(), b.FlavorSet()) +
		characteristicWeight*characteristicSimilarity(a, b)

	sum *= math.Min(a.Confidence, b.Confidence) / 100

	return math.Max(0, math.Min(1, sum))
}

// characteristicSimilarity averages the roast/origin/process Jaccard
// similarities over the families that have data on both sides.
func characteristicSimilarity(a, b *profile.Profile) float64 {
	var sum float64
	var families int

	pairs := [3][2][]profile.CharacteristicPreference{
		{a.RoastLevels, b.RoastLevels},
		{a.Origins, b.Origins},
		{a.ProcessMethods, b.ProcessMethods},
	}
	for _, pair := range pairs {
		if len(pair[0]) == 0 || len(pair[1]) == 0 {
			continue
		}
		sum += jaccard(characteristicSet(pair[0]), characteristicSet(pair[1]))
		families++
	}

	if families == 0 {
		return 0
	}
	return sum / float64(families)
}

func characteristicSet(prefs []profile.CharacteristicPreference) map[string]struct{} {
	set := make(map[string]struct{}, len(prefs))
	for _, c := range prefs {
		set[c.Key] = struct{}{}
	}
	return set
}

// CoffeeAffinity scores how well an item matches a user's taste profile.
// Each factor family contributes only when the user has preference data
// for it and the item exhibits it; no matched factor means score 0.
func (e *Engine) CoffeeAffinity(ctx context.Context, userID, itemID string) (CoffeeMatch, error) {
	p, ok, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return CoffeeMatch{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if !ok {
		return CoffeeMatch{}, nil
	}

	item, ok, err := e.catalog.Item(ctx, itemID)
	if err != nil {
		return CoffeeMatch{}, fmt.Errorf("load item %s: %w", itemID, err)
	}
	if !ok {
		return CoffeeMatch{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}

	metrics.RecordAffinityQuery("coffee")

	var match CoffeeMatch
	var matched int

	if item.RoastLevel != "" {
		if pref, ok := findCharacteristic(p.RoastLevels, string(item.RoastLevel)); ok {
			match.Score += roastFactorWeight * (pref.AverageRating / 5)
			match.MatchingFactors = append(match.MatchingFactors,
				fmt.Sprintf("you rate %s roasts %.1f/5 on average", pref.Key, pref.AverageRating))
			matched++
		}
	}

	if item.OriginCountry != "" {
		if pref, ok := findCharacteristic(p.Origins, item.OriginCountry); ok {
			match.Score += originFactorWeight * (pref.AverageRating / 5)
			match.MatchingFactors = append(match.MatchingFactors,
				fmt.Sprintf("you rate coffees from %s %.1f/5 on average", pref.Key, pref.AverageRating))
			matched++
		}
	}

	if len(item.FlavorNotes) > 0 {
		var noteSum float64
		var noteCount int
		var names []string
		for _, note := range item.FlavorNotes {
			for _, f := range p.FlavorProfiles {
				if f.Note == note {
					noteSum += f.PreferenceScore / 100
					noteCount++
					names = append(names, note)
					break
				}
			}
		}
		if noteCount > 0 {
			match.Score += flavorFactorWeight * (noteSum / float64(noteCount))
			match.MatchingFactors = append(match.MatchingFactors,
				fmt.Sprintf("matches flavor notes you like: %s", joinNotes(names)))
			matched++
		}
	}

	if item.ProcessMethod != "" {
		if pref, ok := findCharacteristic(p.ProcessMethods, string(item.ProcessMethod)); ok {
			match.Score += processFactorWeight * (pref.AverageRating / 5)
			match.MatchingFactors = append(match.MatchingFactors,
				fmt.Sprintf("you rate %s process coffees %.1f/5 on average", pref.Key, pref.AverageRating))
			matched++
		}
	}

	if matched == 0 {
		return CoffeeMatch{Confidence: math.Min(100, p.Confidence)}, nil
	}

	match.Score = math.Max(0, math.Min(1, match.Score))
	match.Confidence = math.Min(100, p.Confidence+float64(matched)*10)
	return match, nil
}

// FindSimilarUsers returns up to limit users ranked by affinity to userID.
// Candidates need confidence >= 30 and at least 5 ratings; the pool is
// capped at 100 profiles for cost control.
func (e *Engine) FindSimilarUsers(ctx context.Context, userID string, limit int) ([]SimilarUser, error) {
	if limit <= 0 {
		return nil, nil
	}

	own, ok, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if !ok {
		return nil, nil
	}

	all, err := e.profiles.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}

	candidates := make([]profile.Profile, 0, len(all))
	for _, p := range all {
		if p.UserID == userID {
			continue
		}
		if p.Confidence < neighborMinConfidence || p.TotalRatings < neighborMinRatings {
			continue
		}
		candidates = append(candidates, p)
		if len(candidates) >= neighborCandidateCap {
			break
		}
	}

	results := make([]SimilarUser, 0, len(candidates))
	for i := range candidates {
		aff := profileAffinity(&own, &candidates[i])
		if aff <= neighborMinAffinity {
			continue
		}
		results = append(results, SimilarUser{
			UserID:           candidates[i].UserID,
			Affinity:         aff,
			SharedAttributes: sharedAttributes(&own, &candidates[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Affinity > results[j].Affinity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.log.Debug(ctx, "similar user search",
		logger.String("userID", userID),
		logger.Int("candidates", len(candidates)),
		logger.Int("matches", len(results)),
	)

	return results, nil
}

// sharedAttributes lists the attributes where both users' preference
// scores differ by less than the shared-attribute threshold.
func sharedAttributes(a, b *profile.Profile) []attribute.Attribute {
	var shared []attribute.Attribute
	for i, attr := range attribute.All() {
		if math.Abs(a.Attributes[i].PreferenceScore-b.Attributes[i].PreferenceScore) < sharedAttributeDelta {
			shared = append(shared, attr)
		}
	}
	return shared
}

func findCharacteristic(prefs []profile.CharacteristicPreference, key string) (profile.CharacteristicPreference, bool) {
	for _, c := range prefs {
		if c.Key == key {
			return c, true
		}
	}
	return profile.CharacteristicPreference{}, false
}

func joinNotes(notes []string) string {
	out := ""
	for i, n := range notes {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// jaccard computes |A∩B| / |A∪B| over two sets; two empty sets yield 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var inter int
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
