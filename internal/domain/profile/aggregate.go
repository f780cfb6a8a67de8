package profile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/pkg/logger"
	"github.com/okian/brewtaste/pkg/metrics"
)

// Trend windows computed on every full aggregation, in days.
var trendWindows = [3]int{7, 30, 90}

// Source provides a user's ratings joined with item metadata.
type Source interface {
	// RatedItemsByUser returns the user's ratings joined with catalog
	// metadata, newest first. Ratings whose item is missing from the
	// catalog are excluded from the result.
	RatedItemsByUser(ctx context.Context, userID string) ([]model.RatedItem, error)
}

// Sink persists computed profiles. Upsert must replace the whole document
// atomically; the engine never commits a partial profile.
type Sink interface {
	Upsert(ctx context.Context, p Profile) error
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithNow overrides the clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(log logger.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// Aggregator turns a user's rating history into a taste profile.
type Aggregator struct {
	source Source
	sink   Sink
	now    func() time.Time
	log    logger.Logger
}

// NewAggregator creates an aggregator reading from source and writing to sink.
func NewAggregator(source Source, sink Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		source: source,
		sink:   sink,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.log == nil {
		a.log = logger.Get().Named("aggregator")
	}

	return a
}

// Generate computes, persists, and returns the full taste profile for
// userID. A user with no ratings gets the neutral empty profile written
// and returned, not an error.
func (a *Aggregator) Generate(ctx context.Context, userID string) (Profile, error) {
	start := a.now()

	rated, err := a.source.RatedItemsByUser(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("load ratings for %s: %w", userID, err)
	}

	p := a.Compute(userID, rated)
	p.LastCalculated = a.now()

	if err := a.sink.Upsert(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("upsert profile for %s: %w", userID, err)
	}

	metrics.RecordProfileGenerated()
	metrics.RecordAggregationLatency(float64(time.Since(start).Milliseconds()))
	a.log.Debug(ctx, "profile generated",
		logger.String("userID", userID),
		logger.Int("ratings", len(rated)),
		logger.Float64("confidence", p.Confidence),
	)

	return p, nil
}

// Compute derives a profile from already-joined ratings without touching
// any store. LastCalculated is left zero; Generate stamps it.
func (a *Aggregator) Compute(userID string, rated []model.RatedItem) Profile {
	if len(rated) == 0 {
		return Empty(userID)
	}

	p := Empty(userID)
	p.TotalRatings = len(rated)

	for _, r := range rated {
		if r.Rating.CreatedAt.After(p.LastRatingAt) {
			p.LastRatingAt = r.Rating.CreatedAt
		}
	}

	computeAttributes(&p, rated)
	computeFlavors(&p, rated)
	computeCharacteristics(&p, rated)
	computePatterns(&p, rated, a.now())
	p.Confidence = profileConfidence(&p)

	return p
}

// computeAttributes fills the nine attribute preference entries. An
// attribute no rating scored keeps its neutral default.
func computeAttributes(p *Profile, rated []model.RatedItem) {
	for i, attr := range attribute.All() {
		var subs, overalls []float64
		for _, r := range rated {
			if sub, ok := r.Rating.SubScore(attr); ok {
				subs = append(subs, sub)
				overalls = append(overalls, r.Rating.Overall)
			}
		}
		if len(subs) == 0 {
			continue
		}

		avgSub := mean(subs)
		avgOverall := mean(overalls)
		subVariance := variance(subs, avgSub)

		p.Attributes[i] = AttributePreference{
			Attribute:       attr,
			PreferenceScore: clampScore((avgSub-1)*25 + (avgOverall-3)*10),
			Confidence:      clampScore(math.Min(50, float64(len(subs))*2) + math.Max(0, 50-subVariance*10)),
			AverageRating:   avgSub,
			SampleCount:     len(subs),
		}
	}
}

// computeFlavors aggregates flavor notes across rated items and keeps the
// top entries by preference score.
func computeFlavors(p *Profile, rated []model.RatedItem) {
	type flavorAgg struct {
		count int
		sum   float64
	}
	agg := make(map[string]*flavorAgg)
	var order []string // first-seen order for deterministic ties

	for _, r := range rated {
		for _, note := range r.Item.FlavorNotes {
			f, ok := agg[note]
			if !ok {
				f = &flavorAgg{}
				agg[note] = f
				order = append(order, note)
			}
			f.count++
			f.sum += r.Rating.Overall
		}
	}

	prefs := make([]FlavorPreference, 0, len(agg))
	for _, note := range order {
		f := agg[note]
		avg := f.sum / float64(f.count)
		prefs = append(prefs, FlavorPreference{
			Note:            note,
			Frequency:       f.count,
			PreferenceScore: clampScore((avg-1)*20 + math.Min(30, float64(f.count)*3)),
			AverageRating:   avg,
		})
	}

	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].PreferenceScore > prefs[j].PreferenceScore
	})
	if len(prefs) > MaxFlavorProfiles {
		prefs = prefs[:MaxFlavorProfiles]
	}
	p.FlavorProfiles = prefs
}

// computeCharacteristics groups ratings by roast level, origin country,
// and processing method, sorted descending by average overall score.
func computeCharacteristics(p *Profile, rated []model.RatedItem) {
	type charAgg struct {
		count   int
		sum     float64
		region  string
		mixed   bool // more than one region seen for this country
		hasItem bool
	}

	roasts := make(map[string]*charAgg)
	origins := make(map[string]*charAgg)
	methods := make(map[string]*charAgg)
	var roastOrder, originOrder, methodOrder []string

	touch := func(m map[string]*charAgg, order *[]string, key string) *charAgg {
		c, ok := m[key]
		if !ok {
			c = &charAgg{}
			m[key] = c
			*order = append(*order, key)
		}
		return c
	}

	for _, r := range rated {
		if r.Item.RoastLevel != "" {
			c := touch(roasts, &roastOrder, string(r.Item.RoastLevel))
			c.count++
			c.sum += r.Rating.Overall
		}
		if r.Item.OriginCountry != "" {
			c := touch(origins, &originOrder, r.Item.OriginCountry)
			c.count++
			c.sum += r.Rating.Overall
			if !c.hasItem {
				c.region = r.Item.OriginRegion
				c.hasItem = true
			} else if c.region != r.Item.OriginRegion {
				c.mixed = true
			}
		}
		if r.Item.ProcessMethod != "" {
			c := touch(methods, &methodOrder, string(r.Item.ProcessMethod))
			c.count++
			c.sum += r.Rating.Overall
		}
	}

	build := func(m map[string]*charAgg, order []string, keepRegion bool) []CharacteristicPreference {
		out := make([]CharacteristicPreference, 0, len(m))
		for _, key := range order {
			c := m[key]
			entry := CharacteristicPreference{
				Key:           key,
				Frequency:     c.count,
				AverageRating: c.sum / float64(c.count),
			}
			if keepRegion && !c.mixed {
				entry.Region = c.region
			}
			out = append(out, entry)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].AverageRating > out[j].AverageRating
		})
		return out
	}

	p.RoastLevels = build(roasts, roastOrder, false)
	p.Origins = build(origins, originOrder, true)
	p.ProcessMethods = build(methods, methodOrder, false)
}

// computePatterns builds the overall-score histogram, mean/variance, modal
// hour and weekday, and rolling-window trends.
func computePatterns(p *Profile, rated []model.RatedItem, now time.Time) {
	overalls := make([]float64, 0, len(rated))
	histogram := make(map[int]ScoreBucket)

	hourCounts := make(map[int]int)
	dayCounts := make(map[time.Weekday]int)
	var hourOrder []int
	var dayOrder []time.Weekday

	for _, r := range rated {
		overalls = append(overalls, r.Rating.Overall)

		bucket := int(math.Round(r.Rating.Overall))
		b := histogram[bucket]
		b.Count++
		histogram[bucket] = b

		h := r.Rating.CreatedAt.Hour()
		if _, ok := hourCounts[h]; !ok {
			hourOrder = append(hourOrder, h)
		}
		hourCounts[h]++

		d := r.Rating.CreatedAt.Weekday()
		if _, ok := dayCounts[d]; !ok {
			dayOrder = append(dayOrder, d)
		}
		dayCounts[d]++
	}

	total := float64(len(rated))
	for score, b := range histogram {
		b.Percentage = float64(b.Count) / total * 100
		histogram[score] = b
	}

	avg := mean(overalls)
	p.Patterns = RatingPatterns{
		Histogram:            histogram,
		AverageOverallRating: avg,
		RatingVariance:       variance(overalls, avg),
	}

	// Modal hour and weekday; ties keep the first-seen value.
	if h, ok := modalInt(hourCounts, hourOrder); ok {
		p.Patterns.MostActiveHour = &h
	}
	if d, ok := modalDay(dayCounts, dayOrder); ok {
		p.Patterns.MostActiveDay = &d
	}

	for _, days := range trendWindows {
		cutoff := now.AddDate(0, 0, -days)
		var sum float64
		var count int
		for _, r := range rated {
			if r.Rating.CreatedAt.After(cutoff) {
				sum += r.Rating.Overall
				count++
			}
		}
		if count == 0 {
			continue
		}
		p.Patterns.Trends = append(p.Patterns.Trends, TrendEntry{
			WindowDays:    days,
			AverageRating: sum / float64(count),
			Count:         count,
		})
	}
}

// profileConfidence combines sample size, attribute confidence, and rating
// consistency into the overall 0..100 confidence.
func profileConfidence(p *Profile) float64 {
	var confSum float64
	for i := range p.Attributes {
		confSum += p.Attributes[i].Confidence
	}
	avgAttrConf := confSum / float64(attribute.Count)

	raw := math.Min(40, float64(p.TotalRatings)*2) +
		(avgAttrConf/100)*30 +
		math.Max(0, 30-p.Patterns.RatingVariance*15)

	return clampScore(math.Round(raw))
}

func modalInt(counts map[int]int, order []int) (int, bool) {
	if len(counts) == 0 {
		return 0, false
	}
	best := order[0]
	for _, k := range order {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, true
}

func modalDay(counts map[time.Weekday]int, order []time.Weekday) (time.Weekday, bool) {
	if len(counts) == 0 {
		return 0, false
	}
	best := order[0]
	for _, k := range order {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, true
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func variance(vals []float64, avg float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - avg
		sum += d * d
	}
	return sum / float64(len(vals))
}

func clampScore(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
