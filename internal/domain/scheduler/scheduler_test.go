package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/brewtaste/internal/domain/model"
	"github.com/okian/brewtaste/internal/domain/profile"
	"github.com/okian/brewtaste/internal/domain/scheduler"
	"github.com/okian/brewtaste/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeAggregator struct {
	mu    sync.Mutex
	calls []string
	fail  error

	// block, when set, stalls Generate until the channel is closed.
	block chan struct{}
}

func (f *fakeAggregator) Generate(ctx context.Context, userID string) (profile.Profile, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return profile.Profile{}, f.fail
	}
	f.calls = append(f.calls, userID)
	p := profile.Empty(userID)
	p.TotalRatings = 1
	p.LastCalculated = time.Now()
	return p, nil
}

func (f *fakeAggregator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProfileStore struct {
	mu     sync.Mutex
	byUser map[string]profile.Profile
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{byUser: make(map[string]profile.Profile)}
}

func (f *fakeProfileStore) Get(ctx context.Context, userID string) (profile.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byUser[userID]
	return p, ok, nil
}

func (f *fakeProfileStore) Upsert(ctx context.Context, p profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[p.UserID] = p
	return nil
}

type fakeRatingStore struct {
	mu     sync.Mutex
	byUser map[string][]model.RatingEvent
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{byUser: make(map[string][]model.RatingEvent)}
}

func (f *fakeRatingStore) RecentByUser(ctx context.Context, userID string, limit int) ([]model.RatingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ratings := f.byUser[userID]
	if len(ratings) > limit {
		ratings = ratings[:limit]
	}
	return ratings, nil
}

func quickConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.DebounceWindow = 30 * time.Millisecond
	return cfg
}

func addedTrigger(userID string) model.UpdateTrigger {
	return model.UpdateTrigger{
		UserID:    userID,
		Type:      model.TriggerRatingAdded,
		Timestamp: time.Now(),
	}
}

func TestTriggerValidation(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		agg := &fakeAggregator{}
		sched := scheduler.New(agg, newFakeProfileStore(), newFakeRatingStore())
		defer sched.Stop()
		ctx := context.Background()

		Convey("When the trigger has no user id", func() {
			_, err := sched.TriggerUpdate(ctx, model.UpdateTrigger{Type: model.TriggerManual})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, scheduler.ErrInvalidUserID), ShouldBeTrue)
			})
		})

		Convey("When the trigger type is unknown", func() {
			_, err := sched.TriggerUpdate(ctx, model.UpdateTrigger{UserID: "u1", Type: "reboot"})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, scheduler.ErrInvalidTrigger), ShouldBeTrue)
			})
		})

		Convey("When the scheduler is stopped", func() {
			sched.Stop()
			_, err := sched.TriggerUpdate(ctx, addedTrigger("u1"))

			Convey("Then debounced triggers are refused", func() {
				So(errors.Is(err, scheduler.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestDebounce(t *testing.T) {
	Convey("Given a scheduler with a short debounce window", t, func() {
		agg := &fakeAggregator{}
		sched := scheduler.New(agg, newFakeProfileStore(), newFakeRatingStore(),
			scheduler.WithConfig(quickConfig()),
		)
		defer sched.Stop()
		ctx := context.Background()

		Convey("When five ratings arrive in a burst", func() {
			for i := 0; i < 5; i++ {
				res, err := sched.TriggerUpdate(ctx, addedTrigger("burst"))
				So(err, ShouldBeNil)
				So(res.Queued, ShouldBeTrue)
				So(res.Immediate, ShouldBeFalse)
			}

			Convey("Then exactly one recomputation runs after the window", func() {
				time.Sleep(200 * time.Millisecond)
				So(agg.callCount(), ShouldEqual, 1)
			})
		})

		Convey("When a manual trigger follows queued ones", func() {
			_, err := sched.TriggerUpdate(ctx, addedTrigger("eager"))
			So(err, ShouldBeNil)

			res, err := sched.TriggerUpdate(ctx, model.UpdateTrigger{
				UserID: "eager", Type: model.TriggerManual, Timestamp: time.Now(),
			})

			Convey("Then it runs synchronously and cancels the pending one", func() {
				So(err, ShouldBeNil)
				So(res.Immediate, ShouldBeTrue)
				So(agg.callCount(), ShouldEqual, 1)

				time.Sleep(200 * time.Millisecond)
				So(agg.callCount(), ShouldEqual, 1) // debounced timer was cancelled
			})
		})

		Convey("When a rating is deleted", func() {
			res, err := sched.TriggerUpdate(ctx, model.UpdateTrigger{
				UserID: "gone", Type: model.TriggerRatingDeleted, RatingID: "r9", Timestamp: time.Now(),
			})

			Convey("Then the recompute is immediate", func() {
				So(err, ShouldBeNil)
				So(res.Immediate, ShouldBeTrue)
				So(agg.callCount(), ShouldEqual, 1)
			})
		})

		Convey("When triggers for different users arrive together", func() {
			_, _ = sched.TriggerUpdate(ctx, addedTrigger("u1"))
			_, _ = sched.TriggerUpdate(ctx, addedTrigger("u2"))

			Convey("Then each user gets their own recomputation", func() {
				time.Sleep(200 * time.Millisecond)
				So(agg.callCount(), ShouldEqual, 2)
			})
		})
	})
}

func TestUpdateClassification(t *testing.T) {
	Convey("Given a scheduler over seeded stores", t, func() {
		agg := &fakeAggregator{}
		profileStore := newFakeProfileStore()
		ratingStore := newFakeRatingStore()
		now := time.Now()

		sched := scheduler.New(agg, profileStore, ratingStore)
		defer sched.Stop()
		ctx := context.Background()

		manual := func(userID string) model.UpdateTrigger {
			return model.UpdateTrigger{UserID: userID, Type: model.TriggerManual, Timestamp: now}
		}

		Convey("When the user has no profile yet", func() {
			_, err := sched.TriggerUpdate(ctx, manual("fresh"))

			Convey("Then a full build runs", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 1)
				history := sched.History("fresh")
				So(len(history), ShouldEqual, 1)
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdateFull)
			})
		})

		Convey("When no ratings are newer than the last calculation", func() {
			p := profile.Empty("idle")
			p.TotalRatings = 10
			p.LastCalculated = now
			So(profileStore.Upsert(ctx, p), ShouldBeNil)
			ratingStore.byUser["idle"] = []model.RatingEvent{
				{ID: "old", UserID: "idle", Overall: 4, CreatedAt: now.Add(-time.Hour)},
			}

			_, err := sched.TriggerUpdate(ctx, manual("idle"))

			Convey("Then the update is skipped without touching the aggregator", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 0)
				history := sched.History("idle")
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdateSkipped)
			})
		})

		Convey("When a few new ratings arrive on a large profile", func() {
			p := profile.Empty("steady")
			p.TotalRatings = 100
			p.LastCalculated = now.Add(-time.Hour)
			p.Patterns.AverageOverallRating = 4.0
			So(profileStore.Upsert(ctx, p), ShouldBeNil)
			ratingStore.byUser["steady"] = []model.RatingEvent{
				{ID: "n1", UserID: "steady", Overall: 5, CreatedAt: now.Add(-time.Minute)},
				{ID: "n2", UserID: "steady", Overall: 3, CreatedAt: now.Add(-2 * time.Minute)},
			}

			_, err := sched.TriggerUpdate(ctx, manual("steady"))

			Convey("Then a partial patch updates counts and the running mean", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 0)

				updated, ok, err := profileStore.Get(ctx, "steady")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(updated.TotalRatings, ShouldEqual, 102)
				So(updated.Patterns.AverageOverallRating, ShouldAlmostEqual, (4.0*100+8)/102, 0.0001)
				So(updated.LastRatingAt, ShouldEqual, now.Add(-time.Minute))

				history := sched.History("steady")
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdatePartial)
			})
		})

		Convey("When new ratings exceed the full-update ratio", func() {
			p := profile.Empty("churner")
			p.TotalRatings = 4
			p.LastCalculated = now.Add(-time.Hour)
			So(profileStore.Upsert(ctx, p), ShouldBeNil)
			ratingStore.byUser["churner"] = []model.RatingEvent{
				{ID: "a", UserID: "churner", Overall: 5, CreatedAt: now.Add(-time.Minute)},
				{ID: "b", UserID: "churner", Overall: 4, CreatedAt: now.Add(-2 * time.Minute)},
			}

			_, err := sched.TriggerUpdate(ctx, manual("churner"))

			Convey("Then the profile is fully recomputed", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 1)
				history := sched.History("churner")
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdateFull)
			})
		})

		Convey("When the profile is older than the maximum age", func() {
			p := profile.Empty("dusty")
			p.TotalRatings = 100
			p.LastCalculated = now.Add(-200 * time.Hour)
			So(profileStore.Upsert(ctx, p), ShouldBeNil)
			ratingStore.byUser["dusty"] = []model.RatingEvent{
				{ID: "z", UserID: "dusty", Overall: 4, CreatedAt: now.Add(-time.Minute)},
			}

			_, err := sched.TriggerUpdate(ctx, manual("dusty"))

			Convey("Then staleness forces a full recomputation", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 1)
			})
		})

		Convey("When an expired profile has no new ratings at all", func() {
			p := profile.Empty("dormant")
			p.TotalRatings = 50
			p.LastCalculated = now.Add(-300 * time.Hour)
			So(profileStore.Upsert(ctx, p), ShouldBeNil)
			ratingStore.byUser["dormant"] = []model.RatingEvent{
				{ID: "ancient", UserID: "dormant", Overall: 4, CreatedAt: now.Add(-400 * time.Hour)},
			}

			_, err := sched.TriggerUpdate(ctx, manual("dormant"))

			Convey("Then staleness still forces a full rebuild, not a skip", func() {
				So(err, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 1)
				history := sched.History("dormant")
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdateFull)
			})
		})

		Convey("When the aggregator fails", func() {
			agg.fail = errors.New("store offline")

			_, err := sched.TriggerUpdate(ctx, manual("broken"))

			Convey("Then the failure is surfaced and recorded", func() {
				So(err, ShouldNotBeNil)
				history := sched.History("broken")
				So(history[0].UpdateType, ShouldEqual, scheduler.UpdateFailed)
				So(history[0].Outcome, ShouldContainSubstring, "store offline")
			})
		})
	})
}

func TestReentrantTriggerDedup(t *testing.T) {
	Convey("Given an update already in flight for a user", t, func() {
		agg := &fakeAggregator{block: make(chan struct{})}
		sched := scheduler.New(agg, newFakeProfileStore(), newFakeRatingStore())
		defer sched.Stop()
		ctx := context.Background()

		manual := model.UpdateTrigger{
			UserID:    "alice",
			Type:      model.TriggerManual,
			Timestamp: time.Now(),
		}

		firstDone := make(chan error, 1)
		go func() {
			_, err := sched.TriggerUpdate(ctx, manual)
			firstDone <- err
		}()

		for i := 0; i < 200 && len(sched.Status().Processing) == 0; i++ {
			time.Sleep(time.Millisecond)
		}
		So(sched.Status().Processing, ShouldResemble, []string{"alice"})

		Convey("When a second trigger for the same user arrives mid-flight", func() {
			res, err := sched.TriggerUpdate(ctx, manual)

			Convey("Then it is deduplicated silently and only one run happens", func() {
				So(err, ShouldBeNil)
				So(res.Immediate, ShouldBeTrue)

				close(agg.block)
				So(<-firstDone, ShouldBeNil)
				So(agg.callCount(), ShouldEqual, 1)
				So(len(sched.History("alice")), ShouldEqual, 1)
			})
		})
	})
}

func TestBatchProcessing(t *testing.T) {
	Convey("Given a scheduler with real-time updates disabled", t, func() {
		agg := &fakeAggregator{}
		cfg := scheduler.DefaultConfig()
		cfg.RealTime = false

		sched := scheduler.New(agg, newFakeProfileStore(), newFakeRatingStore(),
			scheduler.WithConfig(cfg),
		)
		defer sched.Stop()
		ctx := context.Background()

		Convey("When triggers queue up and a batch pass runs", func() {
			for _, userID := range []string{"u1", "u2", "u3"} {
				res, err := sched.TriggerUpdate(ctx, addedTrigger(userID))
				So(err, ShouldBeNil)
				So(res.Queued, ShouldBeTrue)
			}
			So(len(sched.Status().Pending), ShouldEqual, 3)

			outcome, err := sched.ProcessPendingUpdates(ctx)

			Convey("Then every queued user is processed once", func() {
				So(err, ShouldBeNil)
				So(outcome.Processed, ShouldEqual, 3)
				So(outcome.Succeeded, ShouldEqual, 3)
				So(outcome.Failed, ShouldEqual, 0)
				So(agg.callCount(), ShouldEqual, 3)
				So(sched.Status().Pending, ShouldBeEmpty)
			})
		})

		Convey("When batch updates are disabled too", func() {
			cfg := sched.Config()
			cfg.Batch = false
			So(sched.SetConfig(cfg), ShouldBeNil)

			_, err := sched.ProcessPendingUpdates(ctx)

			Convey("Then the pass is refused", func() {
				So(errors.Is(err, scheduler.ErrBatchDisabled), ShouldBeTrue)
			})
		})
	})
}

func TestSetConfig(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		sched := scheduler.New(&fakeAggregator{}, newFakeProfileStore(), newFakeRatingStore())
		defer sched.Stop()

		Convey("When applying an invalid debounce window", func() {
			cfg := sched.Config()
			cfg.DebounceWindow = 0

			Convey("Then the change is rejected and the old policy survives", func() {
				So(errors.Is(sched.SetConfig(cfg), scheduler.ErrInvalidConfig), ShouldBeTrue)
				So(sched.Config().DebounceWindow, ShouldEqual, 5*time.Second)
			})
		})

		Convey("When applying an out-of-range full ratio", func() {
			cfg := sched.Config()
			cfg.FullRatio = 1.5

			Convey("Then the change is rejected", func() {
				So(errors.Is(sched.SetConfig(cfg), scheduler.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When applying a valid policy", func() {
			cfg := sched.Config()
			cfg.DebounceWindow = time.Second
			cfg.FullRatio = 0.5

			Convey("Then it takes effect", func() {
				So(sched.SetConfig(cfg), ShouldBeNil)
				So(sched.Config().DebounceWindow, ShouldEqual, time.Second)
				So(sched.Config().FullRatio, ShouldEqual, 0.5)
			})
		})
	})
}

func TestHistoryRing(t *testing.T) {
	Convey("Given a scheduler processing many updates for one user", t, func() {
		agg := &fakeAggregator{}
		sched := scheduler.New(agg, newFakeProfileStore(), newFakeRatingStore())
		defer sched.Stop()
		ctx := context.Background()

		Convey("When more updates run than the history holds", func() {
			for i := 0; i < 60; i++ {
				_, err := sched.TriggerUpdate(ctx, model.UpdateTrigger{
					UserID: "busy", Type: model.TriggerManual, Timestamp: time.Now(),
				})
				So(err, ShouldBeNil)
			}

			history := sched.History("busy")

			Convey("Then only the most recent fifty are kept, newest first", func() {
				So(len(history), ShouldEqual, 50)
				for i := 1; i < len(history); i++ {
					So(history[i].Timestamp.After(history[i-1].Timestamp), ShouldBeFalse)
				}
			})
		})

		Convey("When a user has never been updated", func() {
			Convey("Then their history is empty", func() {
				So(sched.History("stranger"), ShouldBeEmpty)
			})
		})
	})
}
