package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/pkg/metrics"
)

// Collection names used by the Mongo-backed stores.
const (
	ratingsCollection  = "ratings"
	itemsCollection    = "items"
	profilesCollection = "profiles"
)

// MongoRatingStore implements RatingStore over a MongoDB collection
// maintained by the external rating ingestion layer.
type MongoRatingStore struct {
	col *mongo.Collection
}

// NewMongoRatingStore creates a rating store over db's ratings collection.
func NewMongoRatingStore(db *mongo.Database) *MongoRatingStore {
	return &MongoRatingStore{col: db.Collection(ratingsCollection)}
}

// ratingDoc is the BSON shape of a rating event. Sub-scores are keyed by
// canonical attribute name since BSON maps need string keys.
type ratingDoc struct {
	ID        string             `bson:"_id"`
	UserID    string             `bson:"userId"`
	ItemID    string             `bson:"itemId"`
	Overall   float64            `bson:"overall"`
	SubScores map[string]float64 `bson:"subScores,omitempty"`
	Note      string             `bson:"note,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d ratingDoc) toModel() model.RatingEvent {
	r := model.RatingEvent{
		ID:        d.ID,
		UserID:    d.UserID,
		ItemID:    d.ItemID,
		Overall:   d.Overall,
		Note:      d.Note,
		CreatedAt: d.CreatedAt,
	}
	if len(d.SubScores) > 0 {
		r.SubScores = make(map[attribute.Attribute]float64, len(d.SubScores))
		for name, v := range d.SubScores {
			attr, err := attribute.Parse(name)
			if err != nil {
				// Unknown attribute names from newer writers are skipped.
				continue
			}
			r.SubScores[attr] = v
		}
	}
	return r
}

func (s *MongoRatingStore) find(ctx context.Context, userID string, limit int64) ([]model.RatingEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.col.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		metrics.RecordStoreError("rating_find")
		return nil, fmt.Errorf("find ratings: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.RatingEvent
	for cur.Next(ctx) {
		var doc ratingDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode rating: %w", err)
		}
		out = append(out, doc.toModel())
	}
	return out, cur.Err()
}

// ByUser returns all ratings for a user, newest first.
func (s *MongoRatingStore) ByUser(ctx context.Context, userID string) ([]model.RatingEvent, error) {
	return s.find(ctx, userID, 0)
}

// RecentByUser returns up to limit newest ratings for a user.
func (s *MongoRatingStore) RecentByUser(ctx context.Context, userID string, limit int) ([]model.RatingEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.find(ctx, userID, int64(limit))
}

// MongoCatalogStore implements CatalogStore over a MongoDB collection
// maintained by the external catalog layer.
type MongoCatalogStore struct {
	col *mongo.Collection
}

// NewMongoCatalogStore creates a catalog store over db's items collection.
func NewMongoCatalogStore(db *mongo.Database) *MongoCatalogStore {
	return &MongoCatalogStore{col: db.Collection(itemsCollection)}
}

type itemDoc struct {
	ID            string   `bson:"_id"`
	OriginCountry string   `bson:"originCountry,omitempty"`
	OriginRegion  string   `bson:"originRegion,omitempty"`
	RoastLevel    string   `bson:"roastLevel,omitempty"`
	ProcessMethod string   `bson:"processMethod,omitempty"`
	FlavorNotes   []string `bson:"flavorNotes,omitempty"`
}

// Item returns the item and whether it exists.
func (s *MongoCatalogStore) Item(ctx context.Context, itemID string) (model.ItemMetadata, bool, error) {
	var doc itemDoc
	err := s.col.FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return model.ItemMetadata{}, false, nil
	}
	if err != nil {
		metrics.RecordStoreError("item_find")
		return model.ItemMetadata{}, false, fmt.Errorf("find item: %w", err)
	}
	return model.ItemMetadata{
		ID:            doc.ID,
		OriginCountry: doc.OriginCountry,
		OriginRegion:  doc.OriginRegion,
		RoastLevel:    model.RoastLevel(doc.RoastLevel),
		ProcessMethod: model.ProcessMethod(doc.ProcessMethod),
		FlavorNotes:   doc.FlavorNotes,
	}, true, nil
}

// MongoProfileStore implements ProfileStore over a MongoDB collection
// owned by this engine.
type MongoProfileStore struct {
	col *mongo.Collection
}

// NewMongoProfileStore creates a profile store over db's profiles collection.
func NewMongoProfileStore(db *mongo.Database) *MongoProfileStore {
	return &MongoProfileStore{col: db.Collection(profilesCollection)}
}

// profileDoc is the BSON shape of a stored profile. The histogram is
// keyed by the decimal score since BSON maps need string keys.
type profileDoc struct {
	UserID         string                               `bson:"_id"`
	Attributes     []profile.AttributePreference        `bson:"attributes"`
	FlavorProfiles []profile.FlavorPreference           `bson:"flavorProfiles,omitempty"`
	RoastLevels    []profile.CharacteristicPreference   `bson:"roastLevels,omitempty"`
	Origins        []profile.CharacteristicPreference   `bson:"origins,omitempty"`
	ProcessMethods []profile.CharacteristicPreference   `bson:"processMethods,omitempty"`
	Histogram      map[string]profile.ScoreBucket       `bson:"histogram,omitempty"`
	AverageOverall float64                              `bson:"averageOverall"`
	RatingVariance float64                              `bson:"ratingVariance"`
	MostActiveHour *int                                 `bson:"mostActiveHour,omitempty"`
	MostActiveDay  *int                                 `bson:"mostActiveDay,omitempty"`
	Trends         []profile.TrendEntry                 `bson:"trends,omitempty"`
	TotalRatings   int                                  `bson:"totalRatings"`
	LastRatingAt   time.Time                            `bson:"lastRatingAt"`
	Confidence     float64                              `bson:"confidence"`
	LastCalculated time.Time                            `bson:"lastCalculated"`
}

func toProfileDoc(p profile.Profile) profileDoc {
	doc := profileDoc{
		UserID:         p.UserID,
		Attributes:     p.Attributes[:],
		FlavorProfiles: p.FlavorProfiles,
		RoastLevels:    p.RoastLevels,
		Origins:        p.Origins,
		ProcessMethods: p.ProcessMethods,
		AverageOverall: p.Patterns.AverageOverallRating,
		RatingVariance: p.Patterns.RatingVariance,
		MostActiveHour: p.Patterns.MostActiveHour,
		Trends:         p.Patterns.Trends,
		TotalRatings:   p.TotalRatings,
		LastRatingAt:   p.LastRatingAt,
		Confidence:     p.Confidence,
		LastCalculated: p.LastCalculated,
	}
	if p.Patterns.MostActiveDay != nil {
		day := int(*p.Patterns.MostActiveDay)
		doc.MostActiveDay = &day
	}
	if len(p.Patterns.Histogram) > 0 {
		doc.Histogram = make(map[string]profile.ScoreBucket, len(p.Patterns.Histogram))
		for score, bucket := range p.Patterns.Histogram {
			doc.Histogram[strconv.Itoa(score)] = bucket
		}
	}
	return doc
}

func (d profileDoc) toProfile() profile.Profile {
	p := profile.Empty(d.UserID)
	for i := range d.Attributes {
		if i < len(p.Attributes) {
			p.Attributes[i] = d.Attributes[i]
		}
	}
	p.FlavorProfiles = d.FlavorProfiles
	p.RoastLevels = d.RoastLevels
	p.Origins = d.Origins
	p.ProcessMethods = d.ProcessMethods
	p.Patterns.AverageOverallRating = d.AverageOverall
	p.Patterns.RatingVariance = d.RatingVariance
	p.Patterns.MostActiveHour = d.MostActiveHour
	p.Patterns.Trends = d.Trends
	if d.MostActiveDay != nil {
		day := time.Weekday(*d.MostActiveDay)
		p.Patterns.MostActiveDay = &day
	}
	for key, bucket := range d.Histogram {
		if score, err := strconv.Atoi(key); err == nil {
			p.Patterns.Histogram[score] = bucket
		}
	}
	p.TotalRatings = d.TotalRatings
	p.LastRatingAt = d.LastRatingAt
	p.Confidence = d.Confidence
	p.LastCalculated = d.LastCalculated
	return p
}

// Get returns the profile for userID and whether one exists.
func (s *MongoProfileStore) Get(ctx context.Context, userID string) (profile.Profile, bool, error) {
	var doc profileDoc
	err := s.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return profile.Profile{}, false, nil
	}
	if err != nil {
		metrics.RecordStoreError("profile_find")
		return profile.Profile{}, false, fmt.Errorf("find profile: %w", err)
	}
	return doc.toProfile(), true, nil
}

// Upsert replaces the whole profile document atomically.
func (s *MongoProfileStore) Upsert(ctx context.Context, p profile.Profile) error {
	if p.UserID == "" {
		return ErrInvalidRecord
	}

	start := time.Now()
	_, err := s.col.ReplaceOne(ctx,
		bson.M{"_id": p.UserID},
		toProfileDoc(p),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		metrics.RecordStoreError("profile_upsert")
		return fmt.Errorf("upsert profile: %w", err)
	}
	metrics.RecordStoreLatency("profile_upsert", float64(time.Since(start).Milliseconds()))
	return nil
}

// All returns every stored profile.
func (s *MongoProfileStore) All(ctx context.Context) ([]profile.Profile, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		metrics.RecordStoreError("profile_scan")
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	defer cur.Close(ctx)

	var out []profile.Profile
	for cur.Next(ctx) {
		var doc profileDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		out = append(out, doc.toProfile())
	}
	return out, cur.Err()
}

// Count returns the number of stored profiles; errors count as zero.
func (s *MongoProfileStore) Count(ctx context.Context) int {
	n, err := s.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}

// StaleBefore returns ids of profiles last calculated before cutoff.
func (s *MongoProfileStore) StaleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	cur, err := s.col.Find(ctx,
		bson.M{"lastCalculated": bson.M{"$lt": cutoff}},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		metrics.RecordStoreError("profile_stale_scan")
		return nil, fmt.Errorf("scan stale profiles: %w", err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			UserID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode stale profile id: %w", err)
		}
		out = append(out, doc.UserID)
	}
	return out, cur.Err()
}

// Connect dials MongoDB and returns the configured database handle.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(database), nil
}
