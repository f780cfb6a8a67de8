package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/brewtaste/internal/adapters/repository"
	service "github.com/okian/brewtaste/internal/app"
	"github.com/okian/brewtaste/internal/config"
	"github.com/okian/brewtaste/internal/domain/attribute"
	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/scheduler"
	"github.com/okian/brewtaste/internal/testdata"
	"github.com/okian/brewtaste/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestService(ctx context.Context) (*service.Service, *repository.MemoryCatalogStore) {
	cfg := config.New()
	cfg.DebounceWindowMS = 20

	ratings := repository.NewMemoryRatingStore()
	catalog := repository.NewMemoryCatalogStore()
	profiles := repository.NewMemoryProfileStore()

	svc, err := service.New(ctx, cfg, service.WithStores(ratings, catalog, profiles))
	if err != nil {
		panic(err)
	}
	return svc, catalog
}

func seedUser(ctx context.Context, svc *service.Service, catalog *repository.MemoryCatalogStore, userID string, seed int64, n int) {
	gen := testdata.New(seed)
	items := gen.Items(8)
	for _, item := range items {
		if err := catalog.Put(ctx, item); err != nil {
			panic(err)
		}
	}
	for _, r := range gen.Ratings(userID, items, n) {
		if _, err := svc.AddRating(ctx, r); err != nil {
			panic(err)
		}
	}
}

func TestServiceProfileLifecycle(t *testing.T) {
	Convey("Given a running service over memory stores", t, func() {
		ctx := context.Background()
		svc, catalog := newTestService(ctx)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When reading a profile that was never generated", func() {
			p, err := svc.GetProfile(ctx, "stranger")

			Convey("Then the neutral empty profile comes back", func() {
				So(err, ShouldBeNil)
				So(p.UserID, ShouldEqual, "stranger")
				So(p.TotalRatings, ShouldEqual, 0)
				So(p.Confidence, ShouldEqual, 0)
			})
		})

		Convey("When a user's ratings are ingested and a profile is generated", func() {
			seedUser(ctx, svc, catalog, "alice", 1, 30)

			p, err := svc.GenerateProfile(ctx, "alice")

			Convey("Then the profile reflects the rating history", func() {
				So(err, ShouldBeNil)
				So(p.TotalRatings, ShouldEqual, 30)
				So(p.Confidence, ShouldBeGreaterThan, 0)
				So(len(p.FlavorProfiles), ShouldBeGreaterThan, 0)
				for _, a := range p.Attributes {
					So(a.PreferenceScore, ShouldBeBetweenOrEqual, 0, 100)
				}
			})

			Convey("Then a read returns the stored profile", func() {
				got, err := svc.GetProfile(ctx, "alice")
				So(err, ShouldBeNil)
				So(got.TotalRatings, ShouldEqual, 30)
			})

			Convey("Then the update history records the runs", func() {
				// AddRating triggers are debounced; give them time to fire.
				time.Sleep(150 * time.Millisecond)
				So(len(svc.UpdateHistory("alice")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When deleting a rating", func() {
			seedUser(ctx, svc, catalog, "bob", 2, 10)
			time.Sleep(150 * time.Millisecond) // let debounced adds settle

			ratings, err := svc.AddRating(ctx, model.RatingEvent{
				UserID:  "bob",
				ItemID:  "item-0",
				Overall: 3,
				SubScores: map[attribute.Attribute]float64{
					attribute.Body: 3,
				},
				CreatedAt: time.Now(),
			})
			So(err, ShouldBeNil)

			Convey("Then the recompute happens immediately", func() {
				So(svc.DeleteRating(ctx, "bob", ratings.ID), ShouldBeNil)

				p, err := svc.GetProfile(ctx, "bob")
				So(err, ShouldBeNil)
				So(p.TotalRatings, ShouldEqual, 10)
			})
		})

		Convey("When triggering an update with an invalid type", func() {
			_, err := svc.TriggerUpdate(ctx, model.UpdateTrigger{UserID: "alice", Type: "reboot"})

			Convey("Then the scheduler error surfaces", func() {
				So(errors.Is(err, scheduler.ErrInvalidTrigger), ShouldBeTrue)
			})
		})
	})
}

func TestServiceSimilaritySurface(t *testing.T) {
	Convey("Given two users with generated profiles", t, func() {
		ctx := context.Background()
		svc, catalog := newTestService(ctx)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		seedUser(ctx, svc, catalog, "alice", 1, 40)
		seedUser(ctx, svc, catalog, "bob", 1, 40) // same seed, same taste
		_, err := svc.GenerateProfile(ctx, "alice")
		So(err, ShouldBeNil)
		_, err = svc.GenerateProfile(ctx, "bob")
		So(err, ShouldBeNil)

		Convey("When computing user affinity", func() {
			aff, err := svc.UserAffinity(ctx, "alice", "bob")

			Convey("Then same-taste users score high", func() {
				So(err, ShouldBeNil)
				So(aff, ShouldBeBetweenOrEqual, 0, 1)
				So(aff, ShouldBeGreaterThan, 0.3)
			})
		})

		Convey("When predicting coffee affinity", func() {
			match, err := svc.CoffeeAffinity(ctx, "alice", "item-0")

			Convey("Then the score and confidence stay within bounds", func() {
				So(err, ShouldBeNil)
				So(match.Score, ShouldBeBetweenOrEqual, 0, 1)
				So(match.Confidence, ShouldBeBetweenOrEqual, 0, 100)
			})
		})

		Convey("When searching for similar users", func() {
			neighbors, err := svc.FindSimilarUsers(ctx, "alice", 10)

			Convey("Then bob appears as a neighbor", func() {
				So(err, ShouldBeNil)
				found := false
				for _, n := range neighbors {
					if n.UserID == "bob" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When refining with collaborative filtering", func() {
			refined, err := svc.RefineProfile(ctx, "alice")

			Convey("Then the refined profile stays within bounds", func() {
				So(err, ShouldBeNil)
				for _, a := range refined.Attributes {
					So(a.PreferenceScore, ShouldBeBetweenOrEqual, 0, 100)
					So(a.Confidence, ShouldBeBetweenOrEqual, 0, 100)
				}
			})
		})
	})
}

func TestServiceAdminSurface(t *testing.T) {
	Convey("Given a service with queued work", t, func() {
		ctx := context.Background()
		svc, catalog := newTestService(ctx)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When inspecting the queue", func() {
			status := svc.QueueStatus()

			Convey("Then the snapshot reflects the runtime policy", func() {
				So(status.RealTime, ShouldBeTrue)
				So(status.Batch, ShouldBeTrue)
				So(status.Pending, ShouldBeEmpty)
			})
		})

		Convey("When changing the scheduler policy at runtime", func() {
			cfg := svc.SchedulerConfig()
			cfg.DebounceWindow = 2 * time.Second

			Convey("Then valid changes apply and invalid ones are rejected", func() {
				So(svc.SetSchedulerConfig(cfg), ShouldBeNil)
				So(svc.SchedulerConfig().DebounceWindow, ShouldEqual, 2*time.Second)

				cfg.FullRatio = 0
				So(errors.Is(svc.SetSchedulerConfig(cfg), scheduler.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When batch-updating stale profiles", func() {
			seedUser(ctx, svc, catalog, "dusty", 3, 12)
			_, err := svc.GenerateProfile(ctx, "dusty")
			So(err, ShouldBeNil)

			Convey("Then a fresh profile is not considered stale", func() {
				stale, err := svc.FindStaleProfiles(ctx, time.Hour)
				So(err, ShouldBeNil)
				So(stale, ShouldBeEmpty)
			})

			Convey("Then a tiny max age marks it stale and queues an update", func() {
				time.Sleep(5 * time.Millisecond)
				stale, err := svc.FindStaleProfiles(ctx, time.Millisecond)
				So(err, ShouldBeNil)
				So(stale, ShouldResemble, []string{"dusty"})

				queued, err := svc.BatchUpdateProfiles(ctx, time.Millisecond)
				So(err, ShouldBeNil)
				So(queued, ShouldEqual, 1)
			})
		})

		Convey("When reading service stats", func() {
			stats := svc.GetStats(ctx)

			Convey("Then the counters describe the deployment", func() {
				So(stats.Store, ShouldEqual, "memory")
				So(stats.TotalProfiles, ShouldBeGreaterThanOrEqualTo, 0)
				So(stats.CacheEnabled, ShouldBeFalse)
			})
		})
	})
}
